// internal/api/workbench_handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryboardStudio/internal/services"
)

// sessionID 工作台会话，优先读取头部，其次查询参数
func sessionID(c *gin.Context) string {
	if id := c.GetHeader(SessionHeader); id != "" {
		return id
	}
	return c.DefaultQuery("session", services.DefaultSession)
}

// GetSelection 会话的选择状态
func (h *Handler) GetSelection(c *gin.Context) {
	sel, err := h.Workbench.Selection(c.Param("pid"), sessionID(c))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, sel)
}

// UpdateSelection 切换草稿、分集、镜头或模式，返回新的视图
func (h *Handler) UpdateSelection(c *gin.Context) {
	var patch services.SelectionPatch
	if !h.bind(c, &patch) {
		return
	}
	view, err := h.Workbench.UpdateSelection(c.Param("pid"), sessionID(c), patch)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, view)
}

// GetWorkbenchView 派生的工作台视图
func (h *Handler) GetWorkbenchView(c *gin.Context) {
	view, err := h.Workbench.View(c.Param("pid"), sessionID(c))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, view)
}

// GenerateSelected 为当前选中的镜头生成，生成模式跟随工作台模式
func (h *Handler) GenerateSelected(c *gin.Context) {
	var req services.GenerateRequest
	if !h.bindOptional(c, &req) {
		return
	}
	projectID, session := c.Param("pid"), sessionID(c)

	view, err := h.Workbench.View(projectID, session)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	path, err := h.Workbench.SelectedPath(projectID, session)
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrCodeNoSelection, "当前没有选中的镜头")
		return
	}

	req.ProjectID = projectID
	req.Path = path
	if req.Mode == "" {
		req.Mode = view.Mode.GenerationMode()
	}
	if req.Prompt == "" && view.SelectedTask != nil {
		req.Prompt = view.SelectedTask.Prompt
	}
	if req.Count == 0 {
		req.Count = 1
	}

	jobID, err := h.Generation.StartGenerate(req)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Accepted(c, JobAccepted{JobID: jobID, Path: path}, "生成任务已开始，请订阅进度")
}
