// internal/models/character.go
package models

// Character 表示故事中的一个角色
type Character struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	ImagePrompt string `json:"imagePrompt" yaml:"imagePrompt"` // 角色插画提示词
}
