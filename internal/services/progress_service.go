// internal/services/progress_service.go
package services

import (
	"context"
	"sync"
	"time"
)

const (
	ProgressStatusRunning   = "running"
	ProgressStatusCompleted = "completed"
	ProgressStatusFailed    = "failed"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	TaskID    string    `json:"task_id"`
	Progress  int       `json:"progress"` // 进度百分比 (0-100)
	Message   string    `json:"message"`
	Status    string    `json:"status"`             // running, completed, failed
	StoryID   string    `json:"story_id,omitempty"` // 完成后对应的故事
	StartedAt time.Time `json:"started_at"`
}

// Finished 是否为终止状态
func (u ProgressUpdate) Finished() bool {
	return u.Status == ProgressStatusCompleted || u.Status == ProgressStatusFailed
}

// ProgressTracker 跟踪长时间运行任务的进度
type ProgressTracker struct {
	TaskID      string
	Progress    int
	Message     string
	Status      string
	StoryID     string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{} // 任务结束时关闭
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker 创建新的进度跟踪器，已存在时返回现有跟踪器
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		Message:     "Task queued",
		Status:      ProgressStatusRunning,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}
	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// snapshot 调用方需持有锁
func (t *ProgressTracker) snapshot() ProgressUpdate {
	return ProgressUpdate{
		TaskID:    t.TaskID,
		Progress:  t.Progress,
		Message:   t.Message,
		Status:    t.Status,
		StoryID:   t.StoryID,
		StartedAt: t.StartTime,
	}
}

// Snapshot 返回当前进度
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshot()
}

// broadcast 非阻塞地通知所有订阅者，调用方需持有锁
func (t *ProgressTracker) broadcast() {
	update := t.snapshot()
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

func (t *ProgressTracker) finished() bool {
	return t.Status == ProgressStatusCompleted || t.Status == ProgressStatusFailed
}

// UpdateProgress 更新任务进度，进度只增不减
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	if t == nil {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.finished() {
		return
	}
	if progress > t.Progress {
		t.Progress = min(progress, 100)
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcast()
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(storyID, message string) {
	if t == nil {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.finished() {
		return
	}
	t.Progress = 100
	t.Message = message
	if t.Message == "" {
		t.Message = "Task completed"
	}
	t.Status = ProgressStatusCompleted
	t.StoryID = storyID
	t.UpdateTime = time.Now()
	t.broadcast()
	close(t.Done)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	if t == nil {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.finished() {
		return
	}
	t.Message = "Task failed: " + errorMsg
	t.Status = ProgressStatusFailed
	t.UpdateTime = time.Now()
	t.broadcast()
	close(t.Done)
}

// Subscribe 订阅进度更新，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.Subscribers[subscriber] = true
	subscriber <- t.snapshot()
	return subscriber
}

// Unsubscribe 取消订阅并关闭通道
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.Subscribers[subscriber]; !ok {
		return
	}
	delete(t.Subscribers, subscriber)
	close(subscriber)
}

// CleanupCompletedTasks 清理结束超过 maxAge 的任务，返回清理数量
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		expired := tracker.finished() && now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if expired {
			delete(s.trackers, id)
			removed++
		}
	}
	return removed
}

// StartCleanup 定期清理已结束的任务，直到 ctx 取消
func (s *ProgressService) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupCompletedTasks(maxAge)
			}
		}
	}()
}
