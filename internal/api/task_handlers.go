// internal/api/task_handlers.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/services"
	"github.com/Corphon/StoryboardStudio/internal/workbench"
)

// TaskDetail 镜头与版本面板数据
type TaskDetail struct {
	Path       models.TaskPath  `json:"path"`
	Task       *models.Task     `json:"task"`
	History    []models.Version `json:"history"`
	Candidates []models.Version `json:"compare_candidates"`
	Generating bool             `json:"generating"`
}

// ReferencesRequest 添加引用资产
type ReferencesRequest struct {
	AssetIDs []string `json:"asset_ids" binding:"required,min=1"`
}

// SlotRequest 设置槽位资产，空ID表示清空
type SlotRequest struct {
	AssetID string `json:"asset_id"`
}

// ExtractVideoRequest 截帧视频，version_id 为空时使用关键帧
type ExtractVideoRequest struct {
	VersionID string `json:"version_id"`
}

// JobAccepted 异步任务的受理结果
type JobAccepted struct {
	JobID string          `json:"job_id"`
	Path  models.TaskPath `json:"path"`
}

// GetTask 镜头详情
func (h *Handler) GetTask(c *gin.Context) {
	projectID, path := c.Param("pid"), taskPath(c)
	_, task, err := h.Store.Task(projectID, path)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, TaskDetail{
		Path:       path,
		Task:       task,
		History:    workbench.ImageHistory(task),
		Candidates: workbench.CompareCandidates(task),
		Generating: h.Generation.IsGenerating(projectID, path),
	})
}

// UpdateTask 局部更新镜头字段
func (h *Handler) UpdateTask(c *gin.Context) {
	var patch models.TaskPatch
	if !h.bind(c, &patch) {
		return
	}
	task, err := h.Script.UpdateTask(c.Param("pid"), taskPath(c), patch)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// PolishTaskPrompt 润色镜头提示词
func (h *Handler) PolishTaskPrompt(c *gin.Context) {
	task, err := h.Script.PolishTaskPrompt(c.Request.Context(), c.Param("pid"), taskPath(c))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// TaskReferences 镜头的有效参考资产
func (h *Handler) TaskReferences(c *gin.Context) {
	refs, err := h.Assets.TaskReferences(c.Param("pid"), taskPath(c))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, refs)
}

// AddTaskReferences 添加显式引用
func (h *Handler) AddTaskReferences(c *gin.Context) {
	var req ReferencesRequest
	if !h.bind(c, &req) {
		return
	}
	task, err := h.Assets.AddTaskReferences(c.Param("pid"), taskPath(c), req.AssetIDs)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// RemoveTaskReference 移除显式引用
func (h *Handler) RemoveTaskReference(c *gin.Context) {
	task, err := h.Assets.RemoveTaskReference(c.Param("pid"), taskPath(c), c.Param("aid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// SetTaskSlot 设置角色、场景或道具槽位
func (h *Handler) SetTaskSlot(c *gin.Context) {
	var req SlotRequest
	if !h.bindOptional(c, &req) {
		return
	}
	slot := models.AssetType(c.Param("slot"))
	task, err := h.Assets.SetTaskSlotAsset(c.Param("pid"), taskPath(c), slot, req.AssetID)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// Generate 为镜头批量生成版本，async=true 时返回任务ID
func (h *Handler) Generate(c *gin.Context) {
	var req services.GenerateRequest
	if !h.bind(c, &req) {
		return
	}
	req.ProjectID = c.Param("pid")
	req.Path = taskPath(c)

	if isAsync(c) {
		jobID, err := h.Generation.StartGenerate(req)
		if err != nil {
			h.Response.HandleError(c, err)
			return
		}
		h.Response.Accepted(c, JobAccepted{JobID: jobID, Path: req.Path}, "生成任务已开始，请订阅进度")
		return
	}

	result, err := h.Generation.Generate(c.Request.Context(), req)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, result)
}

// ToggleFavorite 切换版本收藏
func (h *Handler) ToggleFavorite(c *gin.Context) {
	task, err := h.Ledger.ToggleFavorite(c.Param("pid"), taskPath(c), c.Param("vid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// SetKeyframe 把图片版本设为关键帧
func (h *Handler) SetKeyframe(c *gin.Context) {
	task, err := h.Ledger.SetKeyframe(c.Param("pid"), taskPath(c), c.Param("vid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// RestoreVersion 从历史恢复图片版本
func (h *Handler) RestoreVersion(c *gin.Context) {
	task, err := h.Ledger.RestoreVersion(c.Param("pid"), taskPath(c), c.Param("vid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, task)
}

// CaptureFrame 保存视频截帧为新版本并设为关键帧
func (h *Handler) CaptureFrame(c *gin.Context) {
	var req services.CaptureRequest
	if !h.bind(c, &req) {
		return
	}
	task, version, err := h.Ledger.CaptureFrame(c.Param("pid"), taskPath(c), req)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, gin.H{"task": task, "version": version})
}

// ExtractVideo 由关键帧或指定图片版本生成视频，async=true 时返回任务ID
func (h *Handler) ExtractVideo(c *gin.Context) {
	var req ExtractVideoRequest
	if !h.bindOptional(c, &req) {
		return
	}
	projectID, path := c.Param("pid"), taskPath(c)

	if isAsync(c) {
		jobID, err := h.Ledger.StartExtractVideo(projectID, path, req.VersionID)
		if err != nil {
			h.Response.HandleError(c, err)
			return
		}
		h.Response.Accepted(c, JobAccepted{JobID: jobID, Path: path}, "截帧视频任务已开始")
		return
	}

	result, err := h.Ledger.ExtractVideo(c.Request.Context(), projectID, path, req.VersionID)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, result)
}

// CompareVersions 并排对比两个版本
func (h *Handler) CompareVersions(c *gin.Context) {
	cmp, err := h.Ledger.Compare(c.Param("pid"), taskPath(c), c.Query("left"), c.Query("right"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, cmp)
}
