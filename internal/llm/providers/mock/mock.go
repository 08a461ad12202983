// internal/llm/providers/mock/mock.go
package mock

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/narratica/narratica/internal/llm"
)

const Name = "mock"

var detailPattern = regexp.MustCompile(`(?m)^- (Child name|Theme|Setting|Companions|Number of pages):\s*(.*)$`)

var storyBeats = []string{
	"{child} woke up to a soft knock at the window.",
	"Outside, {child} found a trail of glowing pebbles leading into the {setting}.",
	"Together with {friend}, the path grew brighter with every brave step.",
	"A tiny voice asked for help, and {child} did not hesitate.",
	"They shared what they had, and the {setting} felt a little warmer.",
	"{child} learned that being {theme} is its own kind of magic.",
	"When the stars came out, {child} and {friend} waved goodbye to new friends.",
	"Back home, {child} fell asleep smiling about the day's adventure.",
}

// Provider 返回固定格式的示例故事，不访问网络
type Provider struct {
	reply string
}

// New 创建示例提供者
func New() llm.Provider {
	return &Provider{}
}

// NewWithReply 创建始终返回固定文本的提供者
func NewWithReply(reply string) *Provider {
	return &Provider{reply: reply}
}

func (p *Provider) Initialize(config map[string]string) error {
	if reply, ok := config["reply"]; ok {
		p.reply = reply
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Mock"
}

func (p *Provider) GetSupportedModels() []string {
	return []string{"mock-storyteller"}
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := p.reply
	if text == "" {
		text = composeStory(parseDetails(req.Prompt))
	}

	words := len(strings.Fields(text))
	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: "stop",
		TokensUsed:   words + len(strings.Fields(req.Prompt)),
		PromptTokens: len(strings.Fields(req.Prompt)),
		OutputTokens: words,
		ModelName:    "mock-storyteller",
		ProviderName: p.GetName(),
	}, nil
}

type storyDetails struct {
	child      string
	theme      string
	setting    string
	companions []string
	pages      int
}

func parseDetails(prompt string) storyDetails {
	d := storyDetails{child: "Sam", theme: "Friendship", setting: "forest", pages: 3}
	for _, m := range detailPattern.FindAllStringSubmatch(prompt, -1) {
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		switch m[1] {
		case "Child name":
			d.child = value
		case "Theme":
			d.theme = value
		case "Setting":
			d.setting = value
		case "Companions":
			for _, c := range strings.Split(value, ",") {
				if c = strings.TrimSpace(c); c != "" {
					d.companions = append(d.companions, c)
				}
			}
		case "Number of pages":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.pages = n
			}
		}
	}
	if len(d.companions) == 0 {
		d.companions = []string{"Pip the Owl"}
	}
	return d
}

func composeStory(d storyDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## **Story Title**: %s and the %s Adventure\n", d.child, d.theme)
	fmt.Fprintf(&b, "## **Story Theme**: %s\n\n", d.theme)

	b.WriteString("## **Story Characters**:\n")
	cast := append([]string{d.child}, d.companions...)
	for i, name := range cast {
		fmt.Fprintf(&b, "### Character %d\n", i+1)
		fmt.Fprintf(&b, "**name**: %s\n", name)
		if i == 0 {
			fmt.Fprintf(&b, "**description**: A curious child who loves the %s\n", d.setting)
		} else {
			fmt.Fprintf(&b, "**description**: A loyal friend of %s\n", d.child)
		}
		fmt.Fprintf(&b, "**image_prompt**: %s, friendly storybook character, soft colors\n\n", name)
	}

	b.WriteString("## **Story Text and Image Prompts**:\n")
	fill := strings.NewReplacer(
		"{child}", d.child,
		"{friend}", d.companions[0],
		"{setting}", d.setting,
		"{theme}", strings.ToLower(d.theme),
	)
	for i := 0; i < d.pages; i++ {
		line := fill.Replace(storyBeats[i%len(storyBeats)])

		fmt.Fprintf(&b, "### Page %d\n", i+1)
		if i%2 == 0 {
			fmt.Fprintf(&b, "**Text**: %s\n", line)
		} else {
			// 奇数页使用多行正文格式
			fmt.Fprintf(&b, "**Text**:\n%s\nThe %s seemed to smile back.\n", line, d.setting)
		}
		fmt.Fprintf(&b, "**Image Prompt**: %s in the %s, page %d, children's book illustration\n\n", d.child, d.setting, i+1)
	}
	return b.String()
}
