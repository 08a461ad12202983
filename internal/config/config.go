// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 存储后端
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config 存储应用配置
type Config struct {
	Port      string
	DataDir   string
	LogDir    string
	DebugMode bool

	// LLM相关配置
	LLMProvider string
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string

	// 图像生成
	ImageProvider           string
	IllustrationConcurrency int
	IllustrationBaseURL     string

	StorageBackend        string
	GenerationTimeout     time.Duration
	GenerationTemperature float32 // 0 表示确定输出，相同请求会命中缓存
	RateLimitPerMinute    int
}

// Load 从环境变量加载配置，存在 .env 文件时先加载它
func Load() (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	timeout, err := getEnvDuration("GENERATION_TIMEOUT", 3*time.Minute)
	if err != nil {
		return nil, err
	}
	concurrency, err := getEnvInt("ILLUSTRATION_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}
	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.8)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		DataDir:                 getEnv("DATA_DIR", "data"),
		LogDir:                  getEnv("LOG_DIR", "logs"),
		DebugMode:               getEnvBool("DEBUG_MODE", false),
		LLMProvider:             strings.ToLower(getEnv("LLM_PROVIDER", "mock")),
		LLMAPIKey:               getEnv("LLM_API_KEY", ""),
		LLMModel:                getEnv("LLM_MODEL", ""),
		LLMBaseURL:              getEnv("LLM_BASE_URL", ""),
		ImageProvider:           strings.ToLower(getEnv("IMAGE_PROVIDER", "placeholder")),
		IllustrationConcurrency: concurrency,
		IllustrationBaseURL:     getEnv("ILLUSTRATION_BASE_URL", "https://placehold.co"),
		StorageBackend:          strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
		GenerationTimeout:       timeout,
		GenerationTemperature:   temperature,
		RateLimitPerMinute:      rateLimit,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("不支持的存储后端: %s", c.StorageBackend)
	}
	if c.IllustrationConcurrency <= 0 {
		return fmt.Errorf("ILLUSTRATION_CONCURRENCY 必须大于0")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE 必须大于0")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT 必须大于0")
	}
	if c.GenerationTemperature < 0 || c.GenerationTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE 必须在 0 到 2 之间")
	}
	if c.LLMProvider == "" {
		return fmt.Errorf("LLM_PROVIDER 不能为空")
	}
	return nil
}

// LLMConfig 返回传给提供者 Initialize 的配置
func (c *Config) LLMConfig() map[string]string {
	cfg := map[string]string{
		"api_key":       c.LLMAPIKey,
		"default_model": c.LLMModel,
	}
	if c.LLMBaseURL != "" {
		cfg["base_url"] = c.LLMBaseURL
	}
	return cfg
}

// EnsureDirectories 创建数据和日志目录
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s 不是合法整数: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s 不是合法时长: %w", key, err)
	}
	return d, nil
}

func getEnvFloat(key string, defaultValue float32) (float32, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return 0, fmt.Errorf("%s 不是合法数字: %w", key, err)
	}
	return float32(f), nil
}
