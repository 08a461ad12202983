// internal/api/websocket.go
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/narratica/narratica/internal/services"
	"github.com/narratica/narratica/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// ProgressWebSocket 通过 WebSocket 推送任务进度
type ProgressWebSocket struct {
	progress *services.ProgressService
	logger   *utils.Logger
	metrics  *utils.MetricsCollector
	upgrader websocket.Upgrader
	active   atomic.Int32
}

// NewProgressWebSocket 创建进度推送处理器
func NewProgressWebSocket(progress *services.ProgressService, metrics *utils.MetricsCollector, logger *utils.Logger) *ProgressWebSocket {
	return &ProgressWebSocket{
		progress: progress,
		logger:   logger,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ActiveConnections 当前连接数
func (ws *ProgressWebSocket) ActiveConnections() int {
	return int(ws.active.Load())
}

// Handle 升级连接并推送进度，任务结束后发送关闭帧
func (ws *ProgressWebSocket) Handle(c *gin.Context) {
	taskID := c.Param("taskID")
	tracker, exists := ws.progress.GetTracker(taskID)
	if !exists {
		NewResponseHelper().NotFound(c, ErrorTaskNotFound, "任务不存在")
		return
	}

	conn, err := ws.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ws.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"code":    ErrorWebSocketUpgrade,
			"task_id": taskID,
			"error":   err,
		})
		return
	}
	defer conn.Close()

	ws.active.Add(1)
	ws.metrics.IncGauge("ws_connections")
	defer func() {
		ws.active.Add(-1)
		ws.metrics.DecGauge("ws_connections")
	}()

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	// 读协程只负责处理 pong 和检测断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			if update.Finished() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, update.Status),
					time.Now().Add(wsWriteWait))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
