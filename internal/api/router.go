// internal/api/router.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narratica/narratica/internal/services"
	"github.com/narratica/narratica/internal/utils"
)

// RouterDeps 构建路由所需的依赖
type RouterDeps struct {
	Stories            *services.StoryService
	Exports            *services.ExportService
	Progress           *services.ProgressService
	LLM                *services.LLMService
	Metrics            *utils.StoryMetrics
	Logger             *utils.Logger
	RateLimiter        *RateLimiter
	RateLimitPerMinute int
}

// SetupRouter 配置HTTP路由；gin 的运行模式由调用方设置
func SetupRouter(deps RouterDeps) *gin.Engine {
	progressWS := NewProgressWebSocket(deps.Progress, deps.Metrics.Collector(), deps.Logger)
	handler := &Handler{
		Stories:  deps.Stories,
		Exports:  deps.Exports,
		Progress: deps.Progress,
		LLM:      deps.LLM,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
		Sockets:  progressWS,
		Response: NewResponseHelper(),
	}

	limit := deps.RateLimitPerMinute
	if limit <= 0 {
		limit = 30
	}
	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(UserIDMiddleware())
	r.Use(RequestLogger(deps.Logger, deps.Metrics))

	r.GET("/health", handler.Health)
	r.GET("/ws/progress/:taskID", progressWS.Handle)

	api := r.Group("/api")
	api.Use(RateLimitByIP(limiter, limit*10, time.Minute))
	{
		storiesGroup := api.Group("/stories")
		{
			storiesGroup.POST("/parse", handler.ParseStory)
			storiesGroup.POST("/validate", handler.ValidateStory)

			// 生成接口按用户限流
			generation := RateLimitByUser(limiter, limit, time.Minute)
			storiesGroup.POST("", generation, handler.CreateStory)
			storiesGroup.POST("/async", generation, handler.CreateStoryAsync)

			storiesGroup.GET("", handler.ListStories)
			storiesGroup.GET("/:id", handler.GetStory)
			storiesGroup.DELETE("/:id", handler.DeleteStory)
			storiesGroup.GET("/:id/export", handler.ExportStory)
		}

		api.GET("/progress/:taskID", handler.SubscribeProgress)

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
		}

		api.GET("/metrics", handler.GetMetrics)
	}

	return r
}
