// internal/storage/file_repository.go
package storage

import (
	"context"
	"errors"
	"os"
	"strings"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
)

const storiesDir = "stories"

// FileStoryRepository 以 stories/<id>.json 形式保存故事
type FileStoryRepository struct {
	files *FileStorage
}

// NewFileStoryRepository 创建基于文件的故事仓库
func NewFileStoryRepository(files *FileStorage) *FileStoryRepository {
	return &FileStoryRepository{files: files}
}

func (r *FileStoryRepository) Save(ctx context.Context, story *models.Story) error {
	if story == nil || !validStoryID(story.ID) {
		return apperrors.NewValidationError("invalid story id", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.files.SaveJSONFile(storiesDir, story.ID+".json", story); err != nil {
		return apperrors.NewProcessingError("保存故事失败", err)
	}
	return nil
}

func (r *FileStoryRepository) Get(ctx context.Context, id string) (*models.Story, error) {
	if !validStoryID(id) {
		return nil, storyNotFound(id, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var story models.Story
	if err := r.files.LoadJSONFile(storiesDir, id+".json", &story); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storyNotFound(id, err)
		}
		return nil, apperrors.NewProcessingError("读取故事失败", err)
	}
	return &story, nil
}

func (r *FileStoryRepository) List(ctx context.Context, userID string) ([]*models.Story, error) {
	names, err := r.files.ListFiles(storiesDir, ".json")
	if err != nil {
		return nil, apperrors.NewProcessingError("列出故事失败", err)
	}

	stories := make([]*models.Story, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		story, err := r.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			// 列表期间被删除的文件直接跳过
			if apperrors.IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		if userID != "" && story.UserID != userID {
			continue
		}
		stories = append(stories, story)
	}

	sortNewestFirst(stories)
	return stories, nil
}

func (r *FileStoryRepository) Delete(ctx context.Context, id string) error {
	if !validStoryID(id) {
		return storyNotFound(id, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.files.DeleteFile(storiesDir, id+".json"); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storyNotFound(id, err)
		}
		return apperrors.NewProcessingError("删除故事失败", err)
	}
	return nil
}

func (r *FileStoryRepository) Close() error {
	return r.files.Close()
}
