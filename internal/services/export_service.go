// internal/services/export_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/storage"
)

const exportsDir = "exports"

// 支持的导出格式
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
	FormatYAML     = "yaml"
)

var formatExtensions = map[string]string{
	FormatJSON:     "json",
	FormatMarkdown: "md",
	FormatText:     "txt",
	FormatYAML:     "yaml",
}

// ExportService 导出故事为不同格式
type ExportService struct {
	stories *StoryService
	files   *storage.FileStorage
	now     func() time.Time
}

// NewExportService 创建导出服务；files 为 nil 时只返回内容不写文件
func NewExportService(stories *StoryService, files *storage.FileStorage) *ExportService {
	return &ExportService{
		stories: stories,
		files:   files,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ContentType 返回格式对应的 MIME 类型
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ExportStory 导出用户的故事
func (s *ExportService) ExportStory(ctx context.Context, userID, storyID, format string) (*models.ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format == "md" {
		format = FormatMarkdown
	}
	if _, ok := formatExtensions[format]; !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的格式: %s", format), nil)
	}

	story, err := s.stories.Get(ctx, userID, storyID)
	if err != nil {
		return nil, err
	}

	content, err := FormatStory(story, format)
	if err != nil {
		return nil, apperrors.NewProcessingError("格式化故事失败", err)
	}

	result := &models.ExportResult{
		StoryID:     story.ID,
		Title:       story.Document.Title,
		Format:      format,
		Content:     content,
		FileSize:    int64(len(content)),
		GeneratedAt: s.now(),
	}

	if s.files != nil {
		fileName := fmt.Sprintf("%s_%s.%s", story.ID, result.GeneratedAt.Format("20060102_150405"), formatExtensions[format])
		if err := s.files.SaveTextFile(exportsDir, fileName, []byte(content)); err != nil {
			return nil, apperrors.NewProcessingError("写入导出文件失败", err)
		}
		result.FilePath = s.files.FilePath(exportsDir, fileName)
	}
	return result, nil
}

// FormatStory 将故事渲染为指定格式
func FormatStory(story *models.Story, format string) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(story.Document, "", "  ")
		if err != nil {
			return "", fmt.Errorf("JSON序列化失败: %w", err)
		}
		return string(data), nil
	case FormatYAML:
		data, err := yaml.Marshal(story.Document)
		if err != nil {
			return "", fmt.Errorf("YAML序列化失败: %w", err)
		}
		return string(data), nil
	case FormatMarkdown:
		return formatMarkdown(story.Document), nil
	case FormatText:
		return formatText(story.Document), nil
	default:
		return "", fmt.Errorf("不支持的格式: %s", format)
	}
}

func formatMarkdown(doc models.StoryDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", orUntitled(doc.Title))
	if doc.Theme != "" {
		fmt.Fprintf(&b, "*Theme: %s*\n\n", doc.Theme)
	}

	if len(doc.Characters) > 0 {
		b.WriteString("## Characters\n\n")
		for _, c := range doc.Characters {
			if c.Description != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", c.Name, c.Description)
			} else {
				fmt.Fprintf(&b, "- **%s**\n", c.Name)
			}
		}
		b.WriteString("\n")
	}

	for _, p := range doc.Pages {
		fmt.Fprintf(&b, "## Page %d\n\n", p.PageNumber)
		if p.ImageURL != "" {
			fmt.Fprintf(&b, "![%s](%s)\n\n", p.ImagePrompt, p.ImageURL)
		}
		if p.Text != "" {
			fmt.Fprintf(&b, "%s\n\n", p.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func formatText(doc models.StoryDocument) string {
	var b strings.Builder
	title := orUntitled(doc.Title)
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len([]rune(title))) + "\n")

	for _, p := range doc.Pages {
		fmt.Fprintf(&b, "\n[Page %d]\n%s\n", p.PageNumber, p.Text)
	}
	return b.String()
}

func orUntitled(title string) string {
	if title == "" {
		return "Untitled Story"
	}
	return title
}
