// internal/models/export.go
package models

import (
	"time"
)

// ExportResult 导出结果
type ExportResult struct {
	StoryID     string    `json:"story_id"`
	Title       string    `json:"title"`
	Format      string    `json:"format"`
	Content     string    `json:"content"`
	FilePath    string    `json:"file_path"` // 导出文件路径
	FileSize    int64     `json:"file_size"` // 文件大小
	GeneratedAt time.Time `json:"generated_at"`
}
