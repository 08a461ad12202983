// internal/services/story_service.go
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/storage"
	"github.com/narratica/narratica/internal/storyparse"
	"github.com/narratica/narratica/internal/utils"
)

// 生成流程各阶段的进度
const (
	progressPrompt      = 10
	progressDrafted     = 40
	progressParsed      = 70
	progressIllustrated = 90
)

// StoryServiceDeps StoryService 的依赖
type StoryServiceDeps struct {
	Repository    storage.StoryRepository
	LLM           *LLMService
	Prompts       *PromptBuilder
	Illustrations *IllustrationService
	Progress      *ProgressService
	Metrics       *utils.StoryMetrics
	Logger        *utils.Logger
	Timeout       time.Duration
}

// StoryService 故事生成与管理
type StoryService struct {
	repo          storage.StoryRepository
	llm           *LLMService
	prompts       *PromptBuilder
	illustrations *IllustrationService
	progress      *ProgressService
	metrics       *utils.StoryMetrics
	logger        *utils.Logger
	timeout       time.Duration

	// 后台任务的生命周期
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool

	newID func() string
	now   func() time.Time
}

// NewStoryService 创建故事服务
func NewStoryService(deps StoryServiceDeps) *StoryService {
	ctx, cancel := context.WithCancel(context.Background())
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &StoryService{
		repo:          deps.Repository,
		llm:           deps.LLM,
		prompts:       deps.Prompts,
		illustrations: deps.Illustrations,
		progress:      deps.Progress,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With(map[string]interface{}{"component": "story_service"}),
		timeout:       timeout,
		baseCtx:       ctx,
		cancel:        cancel,
		newID:         uuid.NewString,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ParseText 将模型输出解析为故事文档
func (s *StoryService) ParseText(raw string) models.StoryDocument {
	doc := storyparse.Parse(raw)
	s.metrics.RecordParse(len(doc.Pages), len(doc.Characters))
	return doc
}

// Generate 同步执行完整的生成流程并保存结果；tracker 可以为 nil
func (s *StoryService) Generate(ctx context.Context, userID string, req models.StoryRequest, tracker *ProgressTracker) (*models.Story, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		tracker.Fail(err.Error())
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	start := time.Now()
	s.metrics.GenerationStarted()
	story, err := s.generate(ctx, userID, req, tracker)
	if err != nil {
		s.metrics.GenerationFinished(string(models.StoryStatusFailed), time.Since(start))
		s.metrics.RecordError(string(apperrors.TypeOf(err)), "story_service")
		tracker.Fail(err.Error())
		return nil, err
	}

	s.metrics.GenerationFinished(string(models.StoryStatusCompleted), time.Since(start))
	tracker.Complete(story.ID, "Story ready")
	s.logger.Info("Story generated", map[string]interface{}{
		"story_id": story.ID,
		"user_id":  userID,
		"pages":    len(story.Document.Pages),
		"duration": time.Since(start).Milliseconds(),
	})
	return story, nil
}

func (s *StoryService) generate(ctx context.Context, userID string, req models.StoryRequest, tracker *ProgressTracker) (*models.Story, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tracker.UpdateProgress(progressPrompt, "Writing the story outline")
	completion, err := s.prompts.Build(req)
	if err != nil {
		return nil, apperrors.NewProcessingError("构建提示词失败", err)
	}

	resp, err := s.llm.Complete(ctx, completion)
	if err != nil {
		return nil, err
	}
	tracker.UpdateProgress(progressDrafted, "Story drafted")

	now := s.now()
	story := &models.Story{
		ID:         s.newID(),
		UserID:     userID,
		Status:     models.StoryStatusGenerating,
		Request:    req,
		RawText:    resp.Text,
		Provider:   s.llm.GetProviderName(),
		Model:      resp.ModelName,
		TokensUsed: resp.TokensUsed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	doc := s.ParseText(resp.Text)
	if err := storyparse.Validate(doc); err != nil {
		return nil, s.saveFailed(ctx, story, doc, apperrors.NewProcessingError("模型输出中没有可用的故事", err))
	}
	tracker.UpdateProgress(progressParsed, "Story pages ready")

	doc, err = s.illustrations.Illustrate(ctx, doc, req.IllustrationStyle)
	if err != nil {
		return nil, s.saveFailed(ctx, story, doc, err)
	}
	tracker.UpdateProgress(progressIllustrated, "Illustrations ready")

	story.Document = doc
	story.Status = models.StoryStatusCompleted
	story.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, story); err != nil {
		return nil, apperrors.WrapError(err, "保存故事失败", apperrors.ErrorTypeProcessing)
	}
	return story, nil
}

// saveFailed 保存失败记录以便排查，返回原始错误
func (s *StoryService) saveFailed(ctx context.Context, story *models.Story, doc models.StoryDocument, cause error) error {
	story.Document = doc
	story.Status = models.StoryStatusFailed
	story.Error = cause.Error()
	story.UpdatedAt = s.now()
	if err := s.repo.Save(context.WithoutCancel(ctx), story); err != nil {
		s.logger.Warn("Failed to persist failed story", map[string]interface{}{
			"story_id": story.ID,
			"error":    err,
		})
	}
	return cause
}

// GenerateAsync 后台执行生成，立即返回任务ID；参数错误同步返回
func (s *StoryService) GenerateAsync(userID string, req models.StoryRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", apperrors.NewValidationError(err.Error(), nil)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", apperrors.NewUnavailableError("服务正在关闭", nil)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	taskID := s.newID()
	tracker := s.progress.CreateTracker(taskID)

	go func() {
		defer s.wg.Done()
		if _, err := s.Generate(s.baseCtx, userID, req, tracker); err != nil {
			s.logger.Warn("Async generation failed", map[string]interface{}{
				"task_id": taskID,
				"error":   err,
			})
		}
	}()
	return taskID, nil
}

// Get 获取用户的故事，其他用户的故事视为不存在
func (s *StoryService) Get(ctx context.Context, userID, id string) (*models.Story, error) {
	story, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, apperrors.NewNotFoundError("story not found: "+id, nil)
	}
	return story, nil
}

// List 返回用户的故事摘要，最新的在前
func (s *StoryService) List(ctx context.Context, userID string) ([]models.StorySummary, error) {
	stories, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.StorySummary, 0, len(stories))
	for _, story := range stories {
		summaries = append(summaries, story.Summary())
	}
	return summaries, nil
}

// Delete 删除用户的故事
func (s *StoryService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Story deleted", map[string]interface{}{"story_id": id, "user_id": userID})
	return nil
}

// Close 取消后台任务并等待其退出
func (s *StoryService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(apperrors.NewTimeoutError("等待后台任务超时", nil), ctx.Err())
	}
}
