// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryboardStudio/internal/config"
	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/services"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Store      *services.ProjectStore
	Script     *services.ScriptService
	Assets     *services.AssetService
	Generation *services.GenerationService
	Ledger     *services.LedgerService
	Workbench  *services.WorkbenchService
	Export     *services.ExportService
	Progress   *services.ProgressService
	AI         *services.AIService
	Scheduler  *services.SchedulerService
	Metrics    *utils.StudioMetrics
	Hub        *WebSocketHub
	Response   *ResponseHelper
}

// CreateProjectRequest 新建项目
type CreateProjectRequest struct {
	Name  string `json:"name" binding:"required"`
	Type  string `json:"type"`
	Cover string `json:"cover"`
}

// SettingsRequest 生成服务配置
type SettingsRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config"`
}

// ProjectDetail 项目与当前修订号
type ProjectDetail struct {
	*models.Project
	Revision int64 `json:"revision"`
}

// bind 解析请求体，失败时直接返回400
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return false
	}
	return true
}

// bindOptional 允许空请求体
func (h *Handler) bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.bind(c, req)
}

func scenePath(c *gin.Context) models.ScenePath {
	return models.ScenePath{
		DraftID:   c.Param("did"),
		EpisodeID: c.Param("eid"),
		SceneID:   c.Param("sid"),
	}
}

func taskPath(c *gin.Context) models.TaskPath {
	return scenePath(c).Task(c.Param("tid"))
}

func isAsync(c *gin.Context) bool {
	v := strings.ToLower(c.Query("async"))
	return v == "true" || v == "1"
}

// BindEvents 把存储与进度事件转发到 WebSocket
func (h *Handler) BindEvents() func() {
	unsubscribe := h.Store.Subscribe(func(event services.StoreEvent) {
		h.Hub.BroadcastToProject(event.ProjectID, event)
	})
	h.Progress.OnUpdate(func(update services.ProgressUpdate) {
		h.Hub.BroadcastAll(map[string]interface{}{
			"type":     "progress",
			"progress": update,
		})
	})
	return unsubscribe
}

// Health 服务状态
func (h *Handler) Health(c *gin.Context) {
	ready, provider, state := h.AI.GetProviderStatus()
	h.Response.Success(c, gin.H{
		"status":      "ok",
		"projects":    len(h.Store.List()),
		"genai_ready": ready,
		"genai":       provider,
		"genai_state": state,
		"active_jobs": h.Progress.Count(),
		"sessions":    h.Workbench.SessionCount(),
		"scheduler":   h.Scheduler != nil && h.Scheduler.IsRunning(),
		"connections": h.Hub.GetStatus()["total_connections"],
		"server_time": time.Now().Format(time.RFC3339),
	})
}

// GetMetrics 运行指标与维护任务
func (h *Handler) GetMetrics(c *gin.Context) {
	data := gin.H{"metrics": h.Metrics.Snapshot()}
	if h.Scheduler != nil {
		data["jobs"] = h.Scheduler.ListJobs()
	}
	h.Response.Success(c, data)
}

// GetSettings 当前生成服务配置，密钥只返回是否已设置
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	ready, provider, state := h.AI.GetProviderStatus()

	masked := make(map[string]string, len(cfg.GenAIConfig))
	for k, v := range cfg.GenAIConfig {
		if k == "api_key" {
			if v != "" {
				masked[k] = "******"
			}
			continue
		}
		masked[k] = v
	}

	h.Response.Success(c, gin.H{
		"provider":       cfg.GenAIProvider,
		"config":         masked,
		"ready":          ready,
		"active":         provider,
		"state":          state,
		"max_batch_size": cfg.MaxBatchSize,
	})
}

// UpdateSettings 切换生成服务并保存配置
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.AI.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrCodeProviderConfigInvalid, "生成服务配置无效", err.Error())
		return
	}
	if err := config.UpdateGenAIConfig(req.Provider, req.Config); err != nil {
		h.Response.HandleError(c, errors.NewProcessingError("保存配置失败", err))
		return
	}

	ready, _, state := h.AI.GetProviderStatus()
	h.Response.Success(c, gin.H{"ready": ready, "state": state}, "配置已保存")
}

// ListProjects 项目列表
func (h *Handler) ListProjects(c *gin.Context) {
	h.Response.Success(c, h.Store.List())
}

// CreateProject 新建空项目
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if !h.bind(c, &req) {
		return
	}

	p, err := h.Store.Create(&models.Project{
		Name:    req.Name,
		Status:  "进行中",
		Type:    req.Type,
		Cover:   req.Cover,
		Scenes:  []*models.Scene{},
		Scripts: []*models.ScriptDraft{},
	})
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, ProjectDetail{Project: p, Revision: h.Store.Revision(p.ID)})
}

// GetProject 完整的项目树
func (h *Handler) GetProject(c *gin.Context) {
	projectID := c.Param("pid")
	p, err := h.Store.Get(projectID)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, ProjectDetail{Project: p, Revision: h.Store.Revision(projectID)})
}

// SubscribeProgress 以SSE推送后台任务进度
func (h *Handler) SubscribeProgress(c *gin.Context) {
	tracker, exists := h.Progress.GetTracker(c.Param("jobID"))
	if !exists {
		h.Response.NotFound(c, "任务")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	writeEvent := func(event string, payload interface{}) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		c.Writer.Flush()
	}

	// 订阅时会先收到当前状态，任务结束后通道关闭
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			writeEvent("progress", update)
			if isTerminal(update.Status) {
				return
			}
		case <-ticker.C:
			writeEvent("heartbeat", gin.H{"time": time.Now().Unix()})
		}
	}
}

func isTerminal(status string) bool {
	return status == services.JobStatusCompleted || status == services.JobStatusFailed || status == services.JobStatusCancelled
}

// CancelJob 取消后台任务
func (h *Handler) CancelJob(c *gin.Context) {
	jobID := c.Param("jobID")
	if _, exists := h.Progress.GetTracker(jobID); !exists {
		h.Response.NotFound(c, "任务")
		return
	}
	if !h.Progress.Cancel(jobID) {
		h.Response.Conflict(c, "任务已结束，无法取消")
		return
	}
	h.Response.Success(c, gin.H{"job_id": jobID}, "任务已取消")
}
