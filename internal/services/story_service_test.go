package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/llm/providers/mock"
	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/storage"
)

func validRequest() models.StoryRequest {
	return models.StoryRequest{ChildName: "Mia", Theme: "Courage", Setting: "forest", PageCount: 3}
}

func TestGenerateStory(t *testing.T) {
	f := newStoryFixture(t, mock.New())
	tracker := f.progress.CreateTracker("task")
	sub := tracker.Subscribe()

	story, err := f.service.Generate(context.Background(), "alice", validRequest(), tracker)
	require.NoError(t, err)

	assert.Equal(t, models.StoryStatusCompleted, story.Status)
	assert.Equal(t, "alice", story.UserID)
	assert.Equal(t, "Mia and the Courage Adventure", story.Document.Title)
	require.Len(t, story.Document.Pages, 3)
	for _, page := range story.Document.Pages {
		assert.NotEmpty(t, page.ImageURL)
	}
	assert.Equal(t, "test", story.Provider)
	assert.NotEmpty(t, story.RawText)

	var seen []int
	for update := range sub {
		seen = append(seen, update.Progress)
		if update.Finished() {
			assert.Equal(t, story.ID, update.StoryID)
			break
		}
	}
	assert.Equal(t, []int{0, 10, 40, 70, 90, 100}, seen)

	stored, err := f.repo.Get(context.Background(), story.ID)
	require.NoError(t, err)
	assert.Equal(t, story.Document, stored.Document)

	counters := f.metrics.Collector().GetMetrics()["counters"].(map[string]int64)
	assert.EqualValues(t, 1, counters["story_generations_completed"])
	assert.EqualValues(t, 1, counters["story_parses_total"])
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	f := newStoryFixture(t, mock.New())
	tracker := f.progress.CreateTracker("bad")

	_, err := f.service.Generate(context.Background(), "alice", models.StoryRequest{Theme: "x"}, tracker)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, ProgressStatusFailed, tracker.Snapshot().Status)

	_, err = f.service.GenerateAsync("alice", models.StoryRequest{ChildName: "Mia"})
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGenerateUnusableModelOutput(t *testing.T) {
	f := newStoryFixture(t, &scriptedProvider{reply: "Sorry, I cannot write that story."})

	_, err := f.service.Generate(context.Background(), "alice", validRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeProcessing, apperrors.TypeOf(err))

	// 失败记录被保存，便于排查
	stories, err := f.repo.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, models.StoryStatusFailed, stories[0].Status)
	assert.Equal(t, "Sorry, I cannot write that story.", stories[0].RawText)
}

func TestGenerateProviderFailure(t *testing.T) {
	f := newStoryFixture(t, &scriptedProvider{err: errors.New("upstream down")})
	tracker := f.progress.CreateTracker("t")

	_, err := f.service.Generate(context.Background(), "alice", validRequest(), tracker)
	require.Error(t, err)
	assert.Contains(t, tracker.Snapshot().Message, "upstream down")

	counters := f.metrics.Collector().GetMetrics()["counters"].(map[string]int64)
	assert.EqualValues(t, 1, counters["story_generations_failed"])
}

func TestGenerateAsync(t *testing.T) {
	f := newStoryFixture(t, mock.New())

	taskID, err := f.service.GenerateAsync("alice", validRequest())
	require.NoError(t, err)

	tracker, ok := f.progress.GetTracker(taskID)
	require.True(t, ok)
	select {
	case <-tracker.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("async generation did not finish")
	}

	snap := tracker.Snapshot()
	require.Equal(t, ProgressStatusCompleted, snap.Status, snap.Message)
	story, err := f.service.Get(context.Background(), "alice", snap.StoryID)
	require.NoError(t, err)
	assert.Len(t, story.Document.Pages, 3)
}

func TestGenerateAsyncAfterClose(t *testing.T) {
	f := newStoryFixture(t, mock.New())
	require.NoError(t, f.service.Close(context.Background()))

	_, err := f.service.GenerateAsync("alice", validRequest())
	assert.Equal(t, apperrors.ErrorTypeUnavailable, apperrors.TypeOf(err))
}

func TestCloseCancelsRunningGeneration(t *testing.T) {
	f := newStoryFixture(t, &scriptedProvider{reply: "x", delay: time.Minute})
	taskID, err := f.service.GenerateAsync("alice", validRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.service.Close(ctx))

	tracker, _ := f.progress.GetTracker(taskID)
	assert.Equal(t, ProgressStatusFailed, tracker.Snapshot().Status)
}

func TestStoriesAreOwnerScoped(t *testing.T) {
	f := newStoryFixture(t, mock.New())
	ctx := context.Background()

	story, err := f.service.Generate(ctx, "alice", validRequest(), nil)
	require.NoError(t, err)
	_, err = f.service.Generate(ctx, "bob", validRequest(), nil)
	require.NoError(t, err)

	_, err = f.service.Get(ctx, "bob", story.ID)
	assert.True(t, apperrors.IsNotFoundError(err))
	assert.True(t, apperrors.IsNotFoundError(f.service.Delete(ctx, "bob", story.ID)))

	summaries, err := f.service.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, story.ID, summaries[0].ID)
	assert.Equal(t, 3, summaries[0].PageCount)

	require.NoError(t, f.service.Delete(ctx, "alice", story.ID))
	_, err = f.service.Get(ctx, "alice", story.ID)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestRepeatedGenerationCallsModelEachTime(t *testing.T) {
	provider := &scriptedProvider{reply: "## **Story Title**: Twice Told\n## **Story Text and Image Prompts**:\n### Page 1\n**Text**: Hello again.\n**Image Prompt**: a door\n"}
	f := newStoryFixture(t, provider)
	ctx := context.Background()

	first, err := f.service.Generate(ctx, "alice", validRequest(), nil)
	require.NoError(t, err)
	second, err := f.service.Generate(ctx, "alice", validRequest(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.EqualValues(t, 2, provider.calls.Load())
}

// saveFailingRepository 保存总是失败
type saveFailingRepository struct {
	storage.StoryRepository
	err error
}

func (r *saveFailingRepository) Save(context.Context, *models.Story) error { return r.err }

func TestGenerateWrapsSaveFailure(t *testing.T) {
	f := newStoryFixture(t, mock.New())
	cause := errors.New("disk full")
	f.service.repo = &saveFailingRepository{StoryRepository: f.repo, err: cause}

	_, err := f.service.Generate(context.Background(), "alice", validRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, apperrors.ErrorTypeProcessing, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "保存故事失败")

	counters := f.metrics.Collector().GetMetrics()["counters"].(map[string]int64)
	assert.EqualValues(t, 1, counters["story_generations_failed"])
}

func TestParseTextRecordsMetrics(t *testing.T) {
	f := newStoryFixture(t, mock.New())
	doc := f.service.ParseText("")
	assert.Empty(t, doc.Pages)
	assert.NotNil(t, doc.Pages)

	counters := f.metrics.Collector().GetMetrics()["counters"].(map[string]int64)
	assert.EqualValues(t, 1, counters["story_parses_empty"])
}
