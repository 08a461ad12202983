package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/narratica/narratica/internal/llm"
	"github.com/narratica/narratica/internal/llm/providers/mock"
	"github.com/narratica/narratica/internal/storage"
	"github.com/narratica/narratica/internal/utils"
)

// scriptedProvider 返回固定结果并统计调用次数
type scriptedProvider struct {
	calls atomic.Int32
	reply string
	err   error
	delay time.Duration
}

func (p *scriptedProvider) Initialize(map[string]string) error { return nil }
func (p *scriptedProvider) GetName() string                    { return "Scripted" }
func (p *scriptedProvider) GetSupportedModels() []string       { return []string{"scripted-1"} }

func (p *scriptedProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Text: p.reply, TokensUsed: 7, ModelName: "scripted-1"}, nil
}

func testMetrics() *utils.StoryMetrics {
	return utils.NewStoryMetrics(utils.NewMetricsCollector(), utils.NewNopLogger())
}

func newLLMServiceWith(t *testing.T, provider llm.Provider) *LLMService {
	t.Helper()
	reg := llm.NewRegistry()
	reg.Register("test", func() llm.Provider { return provider })
	reg.Register(mock.Name, mock.New)
	svc := NewLLMService(reg, "test", map[string]string{"default_model": "scripted-1"}, testMetrics(), utils.NewNopLogger())
	require.True(t, svc.IsReady())
	return svc
}

type storyFixture struct {
	service  *StoryService
	repo     storage.StoryRepository
	files    *storage.FileStorage
	progress *ProgressService
	metrics  *utils.StoryMetrics
}

func newStoryFixture(t *testing.T, provider llm.Provider) *storyFixture {
	t.Helper()
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	repo := storage.NewFileStoryRepository(files)

	metrics := testMetrics()
	logger := utils.NewNopLogger()
	reg := llm.NewRegistry()
	reg.Register("test", func() llm.Provider { return provider })
	progress := NewProgressService()

	svc := NewStoryService(StoryServiceDeps{
		Repository:    repo,
		LLM:           NewLLMService(reg, "test", map[string]string{}, metrics, logger),
		Prompts:       NewPromptBuilder(),
		Illustrations: NewIllustrationService(NewPlaceholderImageProvider("https://placehold.co"), 2, logger),
		Progress:      progress,
		Metrics:       metrics,
		Logger:        logger,
		Timeout:       5 * time.Second,
	})
	t.Cleanup(func() {
		_ = svc.Close(context.Background())
		_ = repo.Close()
	})
	return &storyFixture{service: svc, repo: repo, files: files, progress: progress, metrics: metrics}
}
