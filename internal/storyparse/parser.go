// internal/storyparse/parser.go

// Package storyparse 将模型生成的半结构化故事文本解析为 StoryDocument。
// 解析是对行序列的一次线性折叠，不会返回错误。
package storyparse

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/narratica/narratica/internal/models"
)

// 行首标记
const (
	MarkerTitle       = "## **Story Title**:"
	MarkerTheme       = "## **Story Theme**:"
	MarkerCharacters  = "## **Story Characters**:"
	MarkerStoryPages  = "## **Story Text and Image Prompts**:"
	MarkerCharacter   = "### Character"
	MarkerPage        = "### Page"
	MarkerName        = "**name**:"
	MarkerDescription = "**description**:"
	MarkerCharImage   = "**image_prompt**:"
	MarkerText        = "**Text**:"
	MarkerImagePrompt = "**Image Prompt**:"
)

var pageNumberPattern = regexp.MustCompile(`Page\s+(\d+)`)

// Parse 把原始文本解析为故事文档
func Parse(rawText string) models.StoryDocument {
	state := NewState()
	for _, line := range Lines(rawText) {
		state = Step(state, line)
	}
	return state.Document()
}

// Lines 按行切分并去除首尾空白，丢弃空行
func Lines(rawText string) []string {
	raw := strings.Split(rawText, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Step 处理单行输入并返回新的状态，传入的状态不会被修改。
// 空白行原样返回状态。
func Step(s State, line string) State {
	line = strings.TrimSpace(line)
	if line == "" {
		return s
	}

	switch {
	case strings.HasPrefix(line, MarkerTitle):
		s.title = remainder(line, MarkerTitle)
		return s
	case strings.HasPrefix(line, MarkerTheme):
		s.theme = remainder(line, MarkerTheme)
		return s
	case strings.HasPrefix(line, MarkerCharacters):
		s.Section = SectionCharacters
		return s
	case strings.HasPrefix(line, MarkerStoryPages):
		s.Section = SectionStoryPages
		return s
	}

	switch s.Section {
	case SectionCharacters:
		return stepCharacters(s, line)
	case SectionStoryPages:
		return stepPages(s, line)
	}
	return s
}

func stepCharacters(s State, line string) State {
	if strings.HasPrefix(line, MarkerCharacter) {
		s.characters = append(cloneCharacters(s.characters), models.Character{})
		s.CurrentCharacter = len(s.characters) - 1
		return s
	}

	var set func(c *models.Character, value string)
	var marker string
	switch {
	case strings.HasPrefix(line, MarkerName):
		marker, set = MarkerName, func(c *models.Character, v string) { c.Name = v }
	case strings.HasPrefix(line, MarkerDescription):
		marker, set = MarkerDescription, func(c *models.Character, v string) { c.Description = v }
	case strings.HasPrefix(line, MarkerCharImage):
		marker, set = MarkerCharImage, func(c *models.Character, v string) { c.ImagePrompt = v }
	default:
		return s
	}

	if s.CurrentCharacter < 0 {
		return s
	}
	s.characters = cloneCharacters(s.characters)
	set(&s.characters[s.CurrentCharacter], remainder(line, marker))
	return s
}

func stepPages(s State, line string) State {
	switch {
	case strings.HasPrefix(line, MarkerPage):
		page := models.Page{PageNumber: len(s.pages) + 1}
		if n, ok := parsePageNumber(line); ok {
			page.PageNumber = n
		}
		s.pages = append(clonePages(s.pages), page)
		s.CurrentPage = len(s.pages) - 1
		s.Accumulating = false
		s.Buffer = ""
		return s

	case strings.HasPrefix(line, MarkerText):
		if s.CurrentPage < 0 {
			return s
		}
		text := remainder(line, MarkerText)
		if text != "" {
			s.pages = clonePages(s.pages)
			s.pages[s.CurrentPage].Text = text
			s.Accumulating = false
			return s
		}
		s.Accumulating = true
		s.Buffer = ""
		return s

	case strings.HasPrefix(line, MarkerImagePrompt):
		s.Accumulating = false
		if s.CurrentPage < 0 {
			return s
		}
		s.pages = clonePages(s.pages)
		s.pages[s.CurrentPage].ImagePrompt = remainder(line, MarkerImagePrompt)
		return s
	}

	if s.Accumulating && s.CurrentPage >= 0 {
		if s.Buffer == "" {
			s.Buffer = line
		} else {
			s.Buffer = s.Buffer + " " + line
		}
		s.pages = clonePages(s.pages)
		s.pages[s.CurrentPage].Text = s.Buffer
	}
	return s
}

// parsePageNumber 仅在标题中带有数字时返回 true；超出 int 范围的数字截断为 math.MaxInt
func parsePageNumber(line string) (int, bool) {
	m := pageNumberPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, true
	}
	if err != nil {
		return 0, false
	}
	return n, true
}

func remainder(line, marker string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, marker))
}
