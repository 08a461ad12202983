package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/narratica/narratica/internal/app"
	"github.com/narratica/narratica/internal/config"
	"github.com/narratica/narratica/internal/utils"
)

type globalFlags struct {
	dataDir  string
	provider string
	storage  string
	verbose  bool
}

// commandContext 延迟构建应用，只有需要存储或模型的命令才会初始化
type commandContext struct {
	flags *globalFlags

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(c.flags.dataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(c.flags.provider); v != "" {
		cfg.LLMProvider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(c.flags.storage); v != "" {
		cfg.StorageBackend = strings.ToLower(v)
	}
	return cfg, nil
}

// ensureApp 构建应用；--verbose 时日志写入 logOutput，不与命令输出混在一起
func (c *commandContext) ensureApp(logOutput io.Writer) (*app.App, error) {
	c.appOnce.Do(func() {
		cfg, err := c.loadConfig()
		if err != nil {
			c.appErr = err
			return
		}

		logger := utils.NewNopLogger()
		if c.flags.verbose {
			logger, err = utils.NewLogger(utils.LoggerOptions{Debug: cfg.DebugMode, Output: logOutput})
			if err != nil {
				c.appErr = err
				return
			}
		}
		c.app, c.appErr = app.New(cfg, app.Options{Logger: logger})
	})
	return c.app, c.appErr
}

// withApp 在命令结束后关闭应用，关闭错误与命令错误一并返回
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	a, err := c.ensureApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return runAndClose(fn(a), func() error {
		return a.Close(context.WithoutCancel(cmd.Context()))
	})
}

func runAndClose(runErr error, closeFn func() error) error {
	return errors.Join(runErr, closeFn())
}
