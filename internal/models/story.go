// internal/models/story.go
package models

import (
	"time"
)

// StoryStatus 表示故事生成的状态
type StoryStatus string

const (
	StoryStatusPending    StoryStatus = "pending"
	StoryStatusGenerating StoryStatus = "generating"
	StoryStatusCompleted  StoryStatus = "completed"
	StoryStatusFailed     StoryStatus = "failed"
)

// StoryDocument 是从模型输出中解析出的结构化故事
type StoryDocument struct {
	Title      string      `json:"title" yaml:"title"`
	Theme      string      `json:"theme" yaml:"theme"`
	Characters []Character `json:"characters" yaml:"characters"`
	Pages      []Page      `json:"pages" yaml:"pages"`
}

// Page 表示故事中的一页
type Page struct {
	PageNumber  int    `json:"pageNumber" yaml:"pageNumber"`
	Text        string `json:"text" yaml:"text"`
	ImagePrompt string `json:"imagePrompt" yaml:"imagePrompt"`
	ImageURL    string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"` // 插画地址
}

// NewStoryDocument 返回字段均为默认值的文档，切片非nil
func NewStoryDocument() StoryDocument {
	return StoryDocument{
		Characters: []Character{},
		Pages:      []Page{},
	}
}

// Story 表示一个已保存的故事记录
type Story struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Status     StoryStatus   `json:"status"`
	Request    StoryRequest  `json:"request"`
	Document   StoryDocument `json:"document"`
	RawText    string        `json:"raw_text,omitempty"` // 模型原始输出
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// StorySummary 用于列表展示
type StorySummary struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Theme          string      `json:"theme"`
	Status         StoryStatus `json:"status"`
	PageCount      int         `json:"page_count"`
	CharacterCount int         `json:"character_count"`
	CoverImageURL  string      `json:"cover_image_url,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Summary 生成故事的列表摘要
func (s *Story) Summary() StorySummary {
	summary := StorySummary{
		ID:             s.ID,
		Title:          s.Document.Title,
		Theme:          s.Document.Theme,
		Status:         s.Status,
		PageCount:      len(s.Document.Pages),
		CharacterCount: len(s.Document.Characters),
		CreatedAt:      s.CreatedAt,
	}
	if len(s.Document.Pages) > 0 {
		summary.CoverImageURL = s.Document.Pages[0].ImageURL
	}
	return summary
}
