// internal/storyparse/state.go
package storyparse

import (
	"github.com/narratica/narratica/internal/models"
)

// Section 表示解析器当前所在的区块
type Section int

const (
	SectionNone Section = iota
	SectionCharacters
	SectionStoryPages
)

// String 返回区块名称
func (s Section) String() string {
	switch s {
	case SectionCharacters:
		return "characters"
	case SectionStoryPages:
		return "storyPages"
	default:
		return "none"
	}
}

// State 是折叠过程中逐行传递的解析状态。
// Step 总是返回新值，修改切片前先复制，已返回的 State 不会被后续步骤改动。
type State struct {
	Section          Section
	CurrentCharacter int // 当前角色下标，-1 表示尚无角色
	CurrentPage      int // 当前页下标，-1 表示尚无页面
	Accumulating     bool
	Buffer           string // 多行正文缓冲

	title      string
	theme      string
	characters []models.Character
	pages      []models.Page
}

// NewState 返回初始状态
func NewState() State {
	return State{
		Section:          SectionNone,
		CurrentCharacter: -1,
		CurrentPage:      -1,
	}
}

// Document 返回当前状态对应的文档副本
func (s State) Document() models.StoryDocument {
	doc := models.NewStoryDocument()
	doc.Title = s.title
	doc.Theme = s.theme
	doc.Characters = append(doc.Characters, s.characters...)
	doc.Pages = append(doc.Pages, s.pages...)
	return doc
}

func cloneCharacters(in []models.Character) []models.Character {
	out := make([]models.Character, len(in), len(in)+1)
	copy(out, in)
	return out
}

func clonePages(in []models.Page) []models.Page {
	out := make([]models.Page, len(in), len(in)+1)
	copy(out, in)
	return out
}
