// internal/storyparse/validate.go
package storyparse

import (
	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
)

// DocumentSummary 文档概要，用于日志和接口响应
type DocumentSummary struct {
	Title            string `json:"title"`
	CharacterCount   int    `json:"character_count"`
	PageCount        int    `json:"page_count"`
	PagesWithText    int    `json:"pages_with_text"`
	PagesWithPrompts int    `json:"pages_with_prompts"`
}

// Summary 统计文档内容
func Summary(doc models.StoryDocument) DocumentSummary {
	summary := DocumentSummary{
		Title:          doc.Title,
		CharacterCount: len(doc.Characters),
		PageCount:      len(doc.Pages),
	}
	for _, p := range doc.Pages {
		if p.Text != "" {
			summary.PagesWithText++
		}
		if p.ImagePrompt != "" {
			summary.PagesWithPrompts++
		}
	}
	return summary
}

// Validate 检查解析结果是否可用：必须有标题且至少一页
func Validate(doc models.StoryDocument) error {
	if doc.Title == "" {
		return apperrors.NewValidationError("故事缺少标题", nil)
	}
	if len(doc.Pages) == 0 {
		return apperrors.NewValidationError("故事没有任何页面", nil)
	}
	return nil
}
