package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
)

func newFileRepo(t *testing.T) StoryRepository {
	t.Helper()
	files, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewFileStoryRepository(files)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newSQLiteRepo(t *testing.T) StoryRepository {
	t.Helper()
	repo, err := OpenSQLiteStoryRepository(filepath.Join(t.TempDir(), "db", "narratica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleStory(id, user string, created time.Time) *models.Story {
	doc := models.NewStoryDocument()
	doc.Title = "The Brave Fox"
	doc.Theme = "Courage"
	doc.Characters = append(doc.Characters, models.Character{Name: "Fox", Description: "brave", ImagePrompt: "red fox"})
	doc.Pages = append(doc.Pages, models.Page{PageNumber: 1, Text: "Once.", ImagePrompt: "forest", ImageURL: "https://img/1"})

	return &models.Story{
		ID:         id,
		UserID:     user,
		Status:     models.StoryStatusCompleted,
		Request:    models.StoryRequest{ChildName: "Mia", Theme: "Courage", PageCount: 1, Companions: []string{"Bolt"}},
		Document:   doc,
		RawText:    "## **Story Title**: The Brave Fox",
		Provider:   "mock",
		Model:      "mock-storyteller",
		TokensUsed: 42,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestStoryRepositories(t *testing.T) {
	backends := map[string]func(t *testing.T) StoryRepository{
		"file":   newFileRepo,
		"sqlite": newSQLiteRepo,
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("save and get", func(t *testing.T) {
				repo := open(t)
				ctx := context.Background()
				created := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
				story := sampleStory("story-1", "alice", created)

				require.NoError(t, repo.Save(ctx, story))
				got, err := repo.Get(ctx, "story-1")
				require.NoError(t, err)

				if diff := cmp.Diff(story, got); diff != "" {
					t.Fatalf("story mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("save overwrites", func(t *testing.T) {
				repo := open(t)
				ctx := context.Background()
				story := sampleStory("story-1", "alice", time.Now().UTC())
				require.NoError(t, repo.Save(ctx, story))

				story.Status = models.StoryStatusFailed
				story.Error = "boom"
				require.NoError(t, repo.Save(ctx, story))

				got, err := repo.Get(ctx, "story-1")
				require.NoError(t, err)
				assert.Equal(t, models.StoryStatusFailed, got.Status)
				assert.Equal(t, "boom", got.Error)
			})

			t.Run("list newest first per user", func(t *testing.T) {
				repo := open(t)
				ctx := context.Background()
				base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
				require.NoError(t, repo.Save(ctx, sampleStory("a", "alice", base)))
				require.NoError(t, repo.Save(ctx, sampleStory("b", "alice", base.Add(1500*time.Millisecond))))
				require.NoError(t, repo.Save(ctx, sampleStory("c", "bob", base.Add(time.Hour))))
				require.NoError(t, repo.Save(ctx, sampleStory("d", "alice", base.Add(100*time.Millisecond))))

				stories, err := repo.List(ctx, "alice")
				require.NoError(t, err)
				ids := make([]string, 0, len(stories))
				for _, s := range stories {
					ids = append(ids, s.ID)
				}
				assert.Equal(t, []string{"b", "d", "a"}, ids)

				all, err := repo.List(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, 4)
				assert.Equal(t, "c", all[0].ID)

				none, err := repo.List(ctx, "nobody")
				require.NoError(t, err)
				assert.NotNil(t, none)
				assert.Empty(t, none)
			})

			t.Run("not found", func(t *testing.T) {
				repo := open(t)
				ctx := context.Background()

				_, err := repo.Get(ctx, "missing")
				assert.True(t, apperrors.IsNotFoundError(err))
				assert.True(t, apperrors.IsNotFoundError(repo.Delete(ctx, "missing")))
			})

			t.Run("delete", func(t *testing.T) {
				repo := open(t)
				ctx := context.Background()
				require.NoError(t, repo.Save(ctx, sampleStory("gone", "alice", time.Now().UTC())))
				require.NoError(t, repo.Delete(ctx, "gone"))

				_, err := repo.Get(ctx, "gone")
				assert.True(t, apperrors.IsNotFoundError(err))
			})
		})
	}
}

func TestFileRepositoryRejectsTraversal(t *testing.T) {
	repo := newFileRepo(t)
	ctx := context.Background()

	for _, id := range []string{"../secret", "a/b", ".hidden", ""} {
		_, err := repo.Get(ctx, id)
		assert.True(t, apperrors.IsNotFoundError(err), id)
	}
	err := repo.Save(ctx, sampleStory("../escape", "alice", time.Now()))
	assert.True(t, apperrors.IsValidationError(err))
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narratica.db")
	ctx := context.Background()

	repo, err := OpenSQLiteStoryRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sampleStory("keep", "alice", time.Now().UTC())))
	require.NoError(t, repo.Close())

	// 重复打开不会重复执行迁移
	repo, err = OpenSQLiteStoryRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}
