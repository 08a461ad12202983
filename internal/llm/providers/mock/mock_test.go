package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narratica/narratica/internal/llm"
	"github.com/narratica/narratica/internal/storyparse"
)

const samplePrompt = `Write a story with these details:
- Child name: Mia
- Theme: Courage
- Setting: mountain village
- Companions: Bolt the Dog, Luna
- Number of pages: 4
`

func TestCompleteTextProducesParsableStory(t *testing.T) {
	resp, err := New().CompleteText(context.Background(), llm.CompletionRequest{Prompt: samplePrompt})
	require.NoError(t, err)

	doc := storyparse.Parse(resp.Text)
	assert.Equal(t, "Mia and the Courage Adventure", doc.Title)
	assert.Equal(t, "Courage", doc.Theme)
	require.Len(t, doc.Characters, 3)
	assert.Equal(t, "Bolt the Dog", doc.Characters[1].Name)
	require.Len(t, doc.Pages, 4)

	for i, page := range doc.Pages {
		assert.Equal(t, i+1, page.PageNumber)
		assert.NotEmpty(t, page.Text)
		assert.Contains(t, page.ImagePrompt, "mountain village")
	}
	assert.Contains(t, doc.Pages[1].Text, "seemed to smile back")
	assert.Contains(t, doc.Pages[2].Text, "Bolt the Dog")
	assert.Equal(t, "Mock", resp.ProviderName)
	assert.Positive(t, resp.TokensUsed)
}

func TestCompleteTextDefaults(t *testing.T) {
	resp, err := New().CompleteText(context.Background(), llm.CompletionRequest{Prompt: "tell me anything"})
	require.NoError(t, err)

	doc := storyparse.Parse(resp.Text)
	assert.Len(t, doc.Pages, 3)
	require.Len(t, doc.Characters, 2)
	assert.Equal(t, "Sam", doc.Characters[0].Name)
	assert.Equal(t, "Pip the Owl", doc.Characters[1].Name)
}

func TestFixedReply(t *testing.T) {
	p := NewWithReply("## **Story Title**: Fixed")
	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: samplePrompt})
	require.NoError(t, err)
	assert.Equal(t, "## **Story Title**: Fixed", resp.Text)

	q := New()
	require.NoError(t, q.Initialize(map[string]string{"reply": "configured"}))
	resp, err = q.CompleteText(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "configured", resp.Text)
}

func TestCompleteTextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().CompleteText(ctx, llm.CompletionRequest{Prompt: samplePrompt})
	assert.ErrorIs(t, err, context.Canceled)
}
