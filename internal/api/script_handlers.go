// internal/api/script_handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/services"
)

// AddTaskRequest 手动添加镜头
type AddTaskRequest struct {
	Title string `json:"title"`
}

// CreateDraft 新建剧本草稿
func (h *Handler) CreateDraft(c *gin.Context) {
	draft, err := h.Script.CreateDraft(c.Param("pid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, draft)
}

// UpdateDraft 修改草稿标题或状态
func (h *Handler) UpdateDraft(c *gin.Context) {
	var patch services.DraftPatch
	if !h.bind(c, &patch) {
		return
	}
	draft, err := h.Script.UpdateDraft(c.Param("pid"), c.Param("did"), patch)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, draft)
}

// DeleteDraft 删除草稿
func (h *Handler) DeleteDraft(c *gin.Context) {
	if err := h.Script.DeleteDraft(c.Param("pid"), c.Param("did")); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"draft_id": c.Param("did")}, "草稿已删除")
}

// BreakdownScript 把长剧本拆成分集
func (h *Handler) BreakdownScript(c *gin.Context) {
	var req services.BreakdownRequest
	if !h.bindOptional(c, &req) {
		return
	}
	req.ProjectID = c.Param("pid")
	req.DraftID = c.Param("did")

	outcome, err := h.Script.BreakdownScript(c.Request.Context(), req)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, outcome)
}

// ListArchives 拆解前的剧本存档
func (h *Handler) ListArchives(c *gin.Context) {
	archives, err := h.Script.ListArchives(c.Param("pid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, archives)
}

// AddEpisode 追加空白分集
func (h *Handler) AddEpisode(c *gin.Context) {
	ep, err := h.Script.AddEpisode(c.Param("pid"), c.Param("did"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, ep)
}

// UpdateEpisode 修改分集标题或正文
func (h *Handler) UpdateEpisode(c *gin.Context) {
	var patch services.EpisodePatch
	if !h.bind(c, &patch) {
		return
	}
	ep, err := h.Script.UpdateEpisode(c.Param("pid"), c.Param("did"), c.Param("eid"), patch)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, ep)
}

// SplitEpisode 把分集正文切成场次，mode=manual 按空行切分，mode=ai 交给分析服务
func (h *Handler) SplitEpisode(c *gin.Context) {
	pid, did, eid := c.Param("pid"), c.Param("did"), c.Param("eid")

	switch mode := c.DefaultQuery("mode", "manual"); mode {
	case "manual":
		scenes, err := h.Script.ManualSplit(pid, did, eid)
		if err != nil {
			h.Response.HandleError(c, err)
			return
		}
		h.Response.Success(c, scenes)
	case "ai":
		scenes, err := h.Script.AISplit(c.Request.Context(), pid, did, eid)
		if err != nil {
			h.Response.HandleError(c, err)
			return
		}
		h.Response.Success(c, scenes)
	default:
		h.Response.BadRequest(c, "不支持的拆分方式: "+mode)
	}
}

// AddScene 追加空白场次
func (h *Handler) AddScene(c *gin.Context) {
	scene, err := h.Script.AddScene(c.Param("pid"), c.Param("did"), c.Param("eid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, scene)
}

// RemoveScene 删除场次
func (h *Handler) RemoveScene(c *gin.Context) {
	if err := h.Script.RemoveScene(c.Param("pid"), scenePath(c)); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"scene_id": c.Param("sid")}, "场次已删除")
}

// GenerateShots 为场次生成分镜
func (h *Handler) GenerateShots(c *gin.Context) {
	tasks, err := h.Script.GenerateShots(c.Request.Context(), c.Param("pid"), scenePath(c))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, tasks)
}

// AddTask 手动添加镜头
func (h *Handler) AddTask(c *gin.Context) {
	var req AddTaskRequest
	if !h.bindOptional(c, &req) {
		return
	}
	task, err := h.Script.AddTask(c.Param("pid"), scenePath(c), req.Title)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, task)
}

// ExportEpisode 导出分集分镜表，download=true 时直接返回文件
func (h *Handler) ExportEpisode(c *gin.Context) {
	result, err := h.Export.ExportEpisode(c.Param("pid"), c.Param("did"), c.Param("eid"), c.Query("format"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	if c.Query("download") == "true" {
		contentType := "text/plain; charset=utf-8"
		switch result.Format {
		case models.ExportFormatJSON:
			contentType = "application/json; charset=utf-8"
		case models.ExportFormatMarkdown:
			contentType = "text/markdown; charset=utf-8"
		}
		c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
		c.Data(http.StatusOK, contentType, []byte(result.Content))
		return
	}
	h.Response.Success(c, result)
}
