package services

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/llm/providers/mock"
	"github.com/narratica/narratica/internal/models"
)

func exportFixture(t *testing.T) (*ExportService, *models.Story) {
	t.Helper()
	f := newStoryFixture(t, mock.New())
	story, err := f.service.Generate(context.Background(), "alice", validRequest(), nil)
	require.NoError(t, err)
	return NewExportService(f.service, f.files), story
}

func TestExportFormats(t *testing.T) {
	svc, story := exportFixture(t)
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		result, err := svc.ExportStory(ctx, "alice", story.ID, "")
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, result.Format)

		var doc models.StoryDocument
		require.NoError(t, json.Unmarshal([]byte(result.Content), &doc))
		assert.Equal(t, story.Document, doc)
	})

	t.Run("yaml", func(t *testing.T) {
		result, err := svc.ExportStory(ctx, "alice", story.ID, "YAML")
		require.NoError(t, err)

		var doc models.StoryDocument
		require.NoError(t, yaml.Unmarshal([]byte(result.Content), &doc))
		assert.Equal(t, story.Document.Title, doc.Title)
		assert.Len(t, doc.Pages, 3)
	})

	t.Run("markdown", func(t *testing.T) {
		result, err := svc.ExportStory(ctx, "alice", story.ID, "md")
		require.NoError(t, err)
		assert.Equal(t, FormatMarkdown, result.Format)
		assert.Contains(t, result.Content, "# Mia and the Courage Adventure\n")
		assert.Contains(t, result.Content, "## Page 2\n")
		assert.Contains(t, result.Content, "- **Mia**: ")
	})

	t.Run("txt", func(t *testing.T) {
		result, err := svc.ExportStory(ctx, "alice", story.ID, "txt")
		require.NoError(t, err)
		assert.Contains(t, result.Content, "[Page 3]")

		data, err := os.ReadFile(result.FilePath)
		require.NoError(t, err)
		assert.Equal(t, result.Content, string(data))
		assert.EqualValues(t, len(data), result.FileSize)
	})
}

func TestExportErrors(t *testing.T) {
	svc, story := exportFixture(t)
	ctx := context.Background()

	_, err := svc.ExportStory(ctx, "alice", story.ID, "pdf")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = svc.ExportStory(ctx, "bob", story.ID, "json")
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestFormatUntitledStory(t *testing.T) {
	story := &models.Story{Document: models.NewStoryDocument()}
	text, err := FormatStory(story, FormatText)
	require.NoError(t, err)
	assert.Equal(t, "Untitled Story\n==============\n", text)

	assert.Equal(t, "text/markdown; charset=utf-8", ContentType(FormatMarkdown))
}
