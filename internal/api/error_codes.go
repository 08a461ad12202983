// internal/api/error_codes.go
package api

// API错误代码常量
const (
	ErrorBadRequest         = "BAD_REQUEST"
	ErrorNotFound           = "NOT_FOUND"
	ErrorInternalError      = "INTERNAL_ERROR"
	ErrorTimeout            = "TIMEOUT"
	ErrorRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrorServiceUnavailable = "SERVICE_UNAVAILABLE"

	// 进度推送
	ErrorTaskNotFound     = "TASK_NOT_FOUND"
	ErrorWebSocketUpgrade = "WEBSOCKET_UPGRADE_FAILED"
)
