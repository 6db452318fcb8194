// internal/api/asset_handlers.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/services"
)

// AssetPromptRequest 资产设计的提示词
type AssetPromptRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt" binding:"required"`
}

// ListAssets 资产库，可按 type 过滤
func (h *Handler) ListAssets(c *gin.Context) {
	assetType := models.AssetType(c.Query("type"))
	if assetType != "" && !assetType.Valid() {
		h.Response.BadRequest(c, "未知的资产类型: "+string(assetType))
		return
	}
	assets, err := h.Assets.ListAssets(c.Param("pid"), assetType)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, assets)
}

// GetAsset 资产详情
func (h *Handler) GetAsset(c *gin.Context) {
	asset, err := h.Assets.GetAsset(c.Param("pid"), c.Param("aid"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, asset)
}

// CreateAsset 新建资产
func (h *Handler) CreateAsset(c *gin.Context) {
	var input services.AssetInput
	if !h.bind(c, &input) {
		return
	}
	asset, err := h.Assets.CreateAsset(c.Param("pid"), input)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, asset)
}

// UpdateAsset 修改资产，类型不可变
func (h *Handler) UpdateAsset(c *gin.Context) {
	var patch services.AssetPatch
	if !h.bind(c, &patch) {
		return
	}
	asset, err := h.Assets.UpdateAsset(c.Param("pid"), c.Param("aid"), patch)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, asset)
}

// AddSubAsset 添加视图或变体
func (h *Handler) AddSubAsset(c *gin.Context) {
	var input services.SubAssetInput
	if !h.bind(c, &input) {
		return
	}
	sub, err := h.Assets.AddSubAsset(c.Param("pid"), c.Param("aid"), input)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, sub)
}

// RemoveSubAsset 删除子资产
func (h *Handler) RemoveSubAsset(c *gin.Context) {
	if err := h.Assets.RemoveSubAsset(c.Param("pid"), c.Param("aid"), c.Param("sid")); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"sub_asset_id": c.Param("sid")}, "子资产已删除")
}

// PolishAssetPrompt 润色资产描述
func (h *Handler) PolishAssetPrompt(c *gin.Context) {
	var req AssetPromptRequest
	if !h.bind(c, &req) {
		return
	}
	polished, err := h.Assets.PolishAssetPrompt(c.Request.Context(), req.Name, req.Prompt)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"prompt": polished})
}

// GenerateAssetCandidates 生成候选设计图
func (h *Handler) GenerateAssetCandidates(c *gin.Context) {
	var req AssetPromptRequest
	if !h.bind(c, &req) {
		return
	}
	images, err := h.Assets.GenerateAssetCandidates(c.Request.Context(), req.Name, req.Prompt)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"images": images})
}
