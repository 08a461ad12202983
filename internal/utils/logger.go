// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 结构化日志，底层使用 zap
type Logger struct {
	zl *zap.Logger
}

// LoggerOptions 日志初始化参数
type LoggerOptions struct {
	Debug   bool
	LogFile string    // 为空时只输出到 Output
	JSON    bool
	Output  io.Writer // 为空时使用标准输出；命令行工具传入标准错误
}

// NewLogger 创建日志实例
func NewLogger(opts LoggerOptions) (*Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(output)}
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, _, err := zap.Open(opts.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sinks = append(sinks, file)
	}

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(config.EncoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(config.EncoderConfig)
	}
	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), config.Level)
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{zl: zl}, nil
}

// NewNopLogger 返回丢弃所有输出的日志实例，用于测试
func NewNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// With 返回附带固定字段的子日志
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With(toZapFields(fields)...)}
}

// Sync 刷新缓冲
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.zl.Debug(message, toZapFields(fields)...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.zl.Info(message, toZapFields(fields)...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.zl.Warn(message, toZapFields(fields)...)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.zl.Error(message, toZapFields(fields)...)
}

// toZapFields 按键排序，保证输出稳定
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
