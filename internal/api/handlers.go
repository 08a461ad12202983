// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/services"
	"github.com/narratica/narratica/internal/storyparse"
	"github.com/narratica/narratica/internal/utils"
)

const maxParseBodyBytes = 1 << 20

// Handler 处理API请求
type Handler struct {
	Stories  *services.StoryService
	Exports  *services.ExportService
	Progress *services.ProgressService
	LLM      *services.LLMService
	Metrics  *utils.StoryMetrics
	Logger   *utils.Logger
	Sockets  *ProgressWebSocket
	Response *ResponseHelper

	heartbeat time.Duration // SSE 心跳间隔
}

// ParseRequest 解析接口的请求体
type ParseRequest struct {
	Text string `json:"text"`
}

// AsyncTaskResponse 异步生成的任务信息
type AsyncTaskResponse struct {
	TaskID       string `json:"task_id"`
	ProgressURL  string `json:"progress_url"`
	WebSocketURL string `json:"websocket_url"`
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	ready, state := h.LLM.GetProviderStatus()
	h.Response.Success(c, gin.H{
		"status":    "ok",
		"llm_ready": ready,
		"llm_state": state,
		"time":      time.Now().UTC(),
	})
}

// ParseStory 将模型输出文本解析为故事文档，任何字符串都能成功解析
func (h *Handler) ParseStory(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxParseBodyBytes)

	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求体必须是包含 text 字段的JSON", err.Error())
		return
	}

	doc := h.Stories.ParseText(req.Text)
	h.Response.Success(c, doc)
}

// ValidateStory 解析文本并报告文档是否完整
func (h *Handler) ValidateStory(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxParseBodyBytes)

	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求体必须是包含 text 字段的JSON", err.Error())
		return
	}

	doc := h.Stories.ParseText(req.Text)
	result := gin.H{"valid": true, "summary": storyparse.Summary(doc)}
	if err := storyparse.Validate(doc); err != nil {
		result["valid"] = false
		result["reason"] = err.Error()
	}
	h.Response.Success(c, result)
}

// CreateStory 同步生成故事
func (h *Handler) CreateStory(c *gin.Context) {
	var req models.StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, models.ValidationMessage(err), err.Error())
		return
	}

	story, err := h.Stories.Generate(c.Request.Context(), currentUserID(c), req, nil)
	if err != nil {
		_ = c.Error(err)
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, story, "Story created")
}

// CreateStoryAsync 后台生成故事，返回任务ID
func (h *Handler) CreateStoryAsync(c *gin.Context) {
	var req models.StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, models.ValidationMessage(err), err.Error())
		return
	}

	taskID, err := h.Stories.GenerateAsync(currentUserID(c), req)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Accepted(c, AsyncTaskResponse{
		TaskID:       taskID,
		ProgressURL:  "/api/progress/" + taskID,
		WebSocketURL: "/ws/progress/" + taskID,
	}, "Story generation started")
}

// SubscribeProgress 订阅任务进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	taskID := c.Param("taskID")
	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, ErrorTaskNotFound, "任务不存在")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	heartbeat := h.heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"task_id\":%q}\n\n", taskID)
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}
			data, _ := json.Marshal(update)
			fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", data)
			c.Writer.Flush()

			if update.Finished() {
				return
			}
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// ListStories 列出当前用户的故事
func (h *Handler) ListStories(c *gin.Context) {
	summaries, err := h.Stories.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, summaries)
}

// GetStory 获取单个故事
func (h *Handler) GetStory(c *gin.Context) {
	story, err := h.Stories.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, story)
}

// DeleteStory 删除故事
func (h *Handler) DeleteStory(c *gin.Context) {
	id := c.Param("id")
	if err := h.Stories.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"id": id}, "Story deleted")
}

// ExportStory 导出故事；json 返回标准响应，其他格式作为文件下载
func (h *Handler) ExportStory(c *gin.Context) {
	format := c.DefaultQuery("format", services.FormatJSON)
	result, err := h.Exports.ExportStory(c.Request.Context(), currentUserID(c), c.Param("id"), format)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}

	if result.Format == services.FormatJSON {
		h.Response.Success(c, result, "Export ready")
		return
	}
	filename := filepath.Base(result.FilePath)
	if result.FilePath == "" {
		filename = result.StoryID + "." + result.Format
	}
	h.Response.FileResponse(c, result.Content, filename, services.ContentType(result.Format))
}

// GetLLMStatus 返回模型服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, h.LLM.Status())
}

// GetMetrics 返回指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	snapshot := h.Metrics.Collector().GetMetrics()
	if h.Sockets != nil {
		snapshot["websocket_connections"] = h.Sockets.ActiveConnections()
	}
	h.Response.Success(c, snapshot)
}
