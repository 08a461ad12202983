// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narratica/narratica/internal/app"
	"github.com/narratica/narratica/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("🚀 启动 Narratica 服务器...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, application); err != nil {
		log.Printf("❌ 服务器异常退出: %v", err)
		os.Exit(1)
	}
	log.Println("✅ 服务器优雅关闭完成")
}

func run(ctx context.Context, application *app.App) error {
	srv := application.Server()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("🌐 服务器启动在端口 %s", application.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = application.Close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	log.Println("🛑 正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	return errors.Join(err, application.Close(shutdownCtx))
}
