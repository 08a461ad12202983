// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/llm"
	"github.com/narratica/narratica/internal/utils"
)

var ErrLLMNotReady = errors.New("llm service not ready")

const (
	defaultCacheExpiration = 30 * time.Minute
	maxCacheEntries        = 1000
)

// LLMService 提供统一的大语言模型调用接口
type LLMService struct {
	providerMutex sync.RWMutex
	registry      *llm.Registry
	provider      llm.Provider
	providerName  string
	defaultModel  string
	isReady       bool
	readyState    string

	cache   *LLMCache
	metrics *utils.StoryMetrics
	logger  *utils.Logger
}

// LLMCache 按请求内容缓存模型输出
type LLMCache struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
}

type CacheEntry struct {
	Response  llm.CompletionResponse
	CreatedAt time.Time
}

// LLMStatus 服务状态，供状态接口返回
type LLMStatus struct {
	Ready        bool     `json:"ready"`
	State        string   `json:"state"`
	Provider     string   `json:"provider"`
	DefaultModel string   `json:"default_model,omitempty"`
	Available    []string `json:"available_providers"`
	Models       []string `json:"models"`
	Cached       int      `json:"cached_responses"`
}

// NewLLMService 创建LLM服务；提供者初始化失败时返回未就绪的服务而不是错误
func NewLLMService(registry *llm.Registry, providerName string, config map[string]string, metrics *utils.StoryMetrics, logger *utils.Logger) *LLMService {
	service := &LLMService{
		registry:   registry,
		readyState: "Uninitialized",
		cache:      newLLMCache(defaultCacheExpiration),
		metrics:    metrics,
		logger:     logger,
	}

	if providerName == "" {
		service.readyState = "LLM provider not configured"
		return service
	}

	if err := service.UpdateProvider(providerName, config); err != nil {
		logger.Warn("LLM provider unavailable", map[string]interface{}{
			"provider": providerName,
			"error":    err,
		})
	}
	return service
}

func newLLMCache(expiration time.Duration) *LLMCache {
	return &LLMCache{
		cache:      make(map[string]*CacheEntry),
		expiration: expiration,
	}
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM服务实例未初始化"
	}
	return s.IsReady(), s.GetReadyState()
}

// Status 返回完整的服务状态
func (s *LLMService) Status() LLMStatus {
	s.providerMutex.RLock()
	name := s.providerName
	status := LLMStatus{
		Ready:        s.provider != nil && s.isReady,
		State:        s.readyState,
		Provider:     name,
		DefaultModel: s.defaultModel,
	}
	cache := s.cache
	s.providerMutex.RUnlock()

	status.Available = s.registry.Names()
	status.Models = s.registry.SupportedModels(name)
	status.Cached = cache.Len()
	return status
}

// UpdateProvider 切换LLM服务的提供商并清空缓存
func (s *LLMService) UpdateProvider(providerName string, config map[string]string) error {
	provider, err := s.registry.GetProvider(providerName, config)
	if err != nil {
		s.providerMutex.Lock()
		s.providerName = providerName
		s.isReady = false
		s.readyState = fmt.Sprintf("Initialization failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.defaultModel = config["default_model"]
	s.isReady = true
	s.readyState = "Ready"
	s.cache = newLLMCache(defaultCacheExpiration)
	return nil
}

// GetProviderName 返回当前提供商名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// resolveModel 请求未指定模型时使用配置的默认模型
func (s *LLMService) resolveModel(requested string) string {
	if requested != "" {
		return requested
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.defaultModel
}

// Complete 调用当前提供者生成文本，相同请求在缓存有效期内直接返回缓存结果
func (s *LLMService) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	providerName := s.providerName
	cache := s.cache
	s.providerMutex.RUnlock()

	if provider == nil || !ready {
		return nil, apperrors.NewUnavailableError("LLM服务未就绪", ErrLLMNotReady)
	}

	req.Model = s.resolveModel(req.Model)
	// 只缓存确定性请求，带采样温度的请求每次都重新生成
	cacheable := req.Temperature == 0
	cacheKey := generateCacheKey(providerName, req)
	if cacheable {
		if cached, ok := cache.get(cacheKey); ok {
			s.logger.Debug("LLM cache hit", map[string]interface{}{"cache_key_prefix": cacheKey[:8]})
			return &cached, nil
		}
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		s.metrics.RecordError("llm", "llm_service")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("LLM请求超时", err)
		}
		return nil, apperrors.NewProcessingError("LLM请求失败", err)
	}

	model := resp.ModelName
	if model == "" {
		model = req.Model
	}
	s.metrics.RecordLLMRequest(providerName, model, resp.TokensUsed, time.Since(start))

	if cacheable {
		cache.save(cacheKey, *resp)
	}
	return resp, nil
}

// generateCacheKey 生成缓存键
func generateCacheKey(providerName string, req llm.CompletionRequest) string {
	hashInput := fmt.Sprintf("%s:::%s:::%s:::%s:::%d:::%.2f",
		req.Prompt, req.SystemPrompt, req.Model, providerName, req.MaxTokens, req.Temperature)
	return fmt.Sprintf("%x", md5.Sum([]byte(hashInput)))
}

// get 从缓存中获取结果
func (c *LLMCache) get(key string) (llm.CompletionResponse, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists || time.Since(entry.CreatedAt) > c.expiration {
		return llm.CompletionResponse{}, false
	}
	return entry.Response, true
}

// save 保存结果到缓存
func (c *LLMCache) save(key string, response llm.CompletionResponse) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[key] = &CacheEntry{Response: response, CreatedAt: time.Now()}
	if len(c.cache) > maxCacheEntries {
		c.cleanupOldest(100)
	}
}

// cleanupOldest 清理最旧的缓存条目
func (c *LLMCache) cleanupOldest(count int) {
	type keyAge struct {
		key string
		age time.Time
	}

	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].age.Before(entries[j].age)
	})

	for i := 0; i < min(count, len(entries)); i++ {
		delete(c.cache, entries[i].key)
	}
}

// Len 返回缓存条目数量
func (c *LLMCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}
