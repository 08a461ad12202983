// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narratica/narratica/internal/api"
	"github.com/narratica/narratica/internal/config"
	"github.com/narratica/narratica/internal/llm/providers"
	"github.com/narratica/narratica/internal/services"
	"github.com/narratica/narratica/internal/storage"
	"github.com/narratica/narratica/internal/utils"
)

const (
	sqliteFileName       = "narratica.db"
	progressCleanupEvery = 10 * time.Minute
	progressMaxAge       = time.Hour
)

// App 持有服务进程的全部组件
type App struct {
	Config   *config.Config
	Logger   *utils.Logger
	Metrics  *utils.StoryMetrics
	LLM      *services.LLMService
	Progress *services.ProgressService
	Stories  *services.StoryService
	Exports  *services.ExportService
	Router   *gin.Engine

	files       *storage.FileStorage
	repository  storage.StoryRepository
	rateLimiter *api.RateLimiter
	stopCleanup context.CancelFunc
}

// Options 构建应用时可替换的组件
type Options struct {
	Logger *utils.Logger // 为空时按配置创建
}

// New 按配置构建应用
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = utils.NewLogger(utils.LoggerOptions{
			Debug:   cfg.DebugMode,
			LogFile: filepath.Join(cfg.LogDir, "narratica.log"),
		})
		if err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg, Logger: logger}
	if err := a.build(); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config

	imageProvider, err := newImageProvider(cfg)
	if err != nil {
		return err
	}

	a.files, err = storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	a.repository, err = openRepository(cfg, a.files)
	if err != nil {
		return err
	}

	a.Metrics = utils.NewStoryMetrics(utils.NewMetricsCollector(), a.Logger)
	a.LLM = services.NewLLMService(providers.NewDefaultRegistry(), cfg.LLMProvider, cfg.LLMConfig(), a.Metrics, a.Logger)
	if !a.LLM.IsReady() {
		a.Logger.Warn("LLM service not ready", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"state":    a.LLM.GetReadyState(),
		})
	}

	a.Progress = services.NewProgressService()
	a.Stories = services.NewStoryService(services.StoryServiceDeps{
		Repository:    a.repository,
		LLM:           a.LLM,
		Prompts:       services.NewPromptBuilder().WithTemperature(cfg.GenerationTemperature),
		Illustrations: services.NewIllustrationService(imageProvider, cfg.IllustrationConcurrency, a.Logger),
		Progress:      a.Progress,
		Metrics:       a.Metrics,
		Logger:        a.Logger,
		Timeout:       cfg.GenerationTimeout,
	})
	a.Exports = services.NewExportService(a.Stories, a.files)

	cleanupCtx, cancel := context.WithCancel(context.Background())
	a.stopCleanup = cancel
	a.Progress.StartCleanup(cleanupCtx, progressCleanupEvery, progressMaxAge)

	a.rateLimiter = api.NewRateLimiter()
	a.Router = api.SetupRouter(api.RouterDeps{
		Stories:            a.Stories,
		Exports:            a.Exports,
		Progress:           a.Progress,
		LLM:                a.LLM,
		Metrics:            a.Metrics,
		Logger:             a.Logger,
		RateLimiter:        a.rateLimiter,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	a.Logger.Info("Application initialized", map[string]interface{}{
		"storage":  cfg.StorageBackend,
		"provider": cfg.LLMProvider,
		"images":   imageProvider.Name(),
	})
	return nil
}

func openRepository(cfg *config.Config, files *storage.FileStorage) (storage.StoryRepository, error) {
	switch cfg.StorageBackend {
	case config.StorageSQLite:
		repo, err := storage.OpenSQLiteStoryRepository(filepath.Join(cfg.DataDir, sqliteFileName))
		if err != nil {
			return nil, fmt.Errorf("打开SQLite存储失败: %w", err)
		}
		return repo, nil
	default:
		return storage.NewFileStoryRepository(files), nil
	}
}

func newImageProvider(cfg *config.Config) (services.ImageProvider, error) {
	switch cfg.ImageProvider {
	case "", "placeholder":
		return services.NewPlaceholderImageProvider(cfg.IllustrationBaseURL), nil
	default:
		return nil, fmt.Errorf("不支持的图像提供者: %s", cfg.ImageProvider)
	}
}

// Server 返回绑定到配置端口的 HTTP 服务器
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close 等待后台生成结束并释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.Stories != nil {
		if err := a.Stories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.rateLimiter != nil {
		a.rateLimiter.Close()
	}
	if a.repository != nil {
		if err := a.repository.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.files != nil {
		if err := a.files.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
