// internal/services/prompt_builder.go
package services

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/narratica/narratica/internal/llm"
	"github.com/narratica/narratica/internal/models"
)

const storySystemPrompt = `You are a children's book author. You write warm, age-appropriate picture book stories.
Always answer using exactly the markdown layout you are given. Do not add commentary before or after the story.`

var storyPromptTemplate = template.Must(template.New("story").Funcs(template.FuncMap{"join": strings.Join}).Parse(`Write a children's picture book story with these details:
- Child name: {{.ChildName}}
{{- if .ChildAge}}
- Child age: {{.ChildAge}}
{{- end}}
- Theme: {{.Theme}}
{{- if .Setting}}
- Setting: {{.Setting}}
{{- end}}
{{- if .Companions}}
- Companions: {{join .Companions ", "}}
{{- end}}
{{- if .Moral}}
- Moral: {{.Moral}}
{{- end}}
- Number of pages: {{.PageCount}}
- Illustration style: {{.IllustrationStyle}}
- Language: {{.Language}}

Use this exact format:

## **Story Title**: <title>
## **Story Theme**: <theme>

## **Story Characters**:
### Character 1
**name**: <name>
**description**: <one sentence>
**image_prompt**: <visual description in {{.IllustrationStyle}} style>

## **Story Text and Image Prompts**:
### Page 1
**Text**: <story text for the page>
**Image Prompt**: <illustration description in {{.IllustrationStyle}} style>

Repeat "### Character N" for every character and "### Page N" for all {{.PageCount}} pages.
`))

// PromptBuilder 根据故事请求生成模型提示词
type PromptBuilder struct {
	maxTokensPerPage int
	temperature      float32
}

// DefaultTemperature 生成故事时的默认采样温度
const DefaultTemperature float32 = 0.8

// NewPromptBuilder 创建提示词构建器
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{maxTokensPerPage: 300, temperature: DefaultTemperature}
}

// WithTemperature 设置采样温度；为 0 时输出确定，相同请求可命中缓存
func (b *PromptBuilder) WithTemperature(temperature float32) *PromptBuilder {
	b.temperature = temperature
	return b
}

// Build 渲染完整的补全请求
func (b *PromptBuilder) Build(req models.StoryRequest) (llm.CompletionRequest, error) {
	var sb strings.Builder
	if err := storyPromptTemplate.Execute(&sb, req); err != nil {
		return llm.CompletionRequest{}, fmt.Errorf("渲染提示词失败: %w", err)
	}

	return llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: storySystemPrompt,
		MaxTokens:    600 + req.PageCount*b.maxTokensPerPage,
		Temperature:  b.temperature,
	}, nil
}
