// internal/storage/repository.go
package storage

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
)

// StoryRepository 故事持久化接口
type StoryRepository interface {
	// Save 插入或覆盖故事
	Save(ctx context.Context, story *models.Story) error
	// Get 按ID获取故事，不存在时返回 NotFound 错误
	Get(ctx context.Context, id string) (*models.Story, error)
	// List 返回用户的所有故事，按创建时间倒序；userID 为空时返回全部
	List(ctx context.Context, userID string) ([]*models.Story, error)
	// Delete 删除故事，不存在时返回 NotFound 错误
	Delete(ctx context.Context, id string) error
	Close() error
}

func storyNotFound(id string, err error) error {
	return apperrors.NewNotFoundError("story not found: "+id, err)
}

// validStoryID 拒绝可能逃逸存储目录的ID
func validStoryID(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") {
		return false
	}
	return filepath.Base(id) == id && !strings.ContainsAny(id, `/\`)
}

func sortNewestFirst(stories []*models.Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		if stories[i].CreatedAt.Equal(stories[j].CreatedAt) {
			return stories[i].ID < stories[j].ID
		}
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
}
