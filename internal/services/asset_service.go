// internal/services/asset_service.go
package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/resolve"
	"github.com/Corphon/StoryboardStudio/internal/tree"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// AssetCandidateCount 一次生成的候选图数量
const AssetCandidateCount = 4

// AssetDesigner 资产中心使用的AI能力
type AssetDesigner interface {
	PolishPrompt(ctx context.Context, text string) (string, error)
	GenerateImage(ctx context.Context, prompt string, cfg models.ImageConfig) (string, error)
}

// AssetInput 新建资产
type AssetInput struct {
	Name        string           `json:"name" validate:"required"`
	Type        models.AssetType `json:"type" validate:"required,oneof=character scene prop"`
	Img         string           `json:"img"`
	Description string           `json:"description"`
	LoraID      string           `json:"lora_id"`
}

// AssetPatch 资产的局部更新。Type 只用于检测非法的类型变更
type AssetPatch struct {
	Name        *string           `json:"name,omitempty"`
	Img         *string           `json:"img,omitempty"`
	Description *string           `json:"description,omitempty"`
	LoraID      *string           `json:"lora_id,omitempty"`
	Type        *models.AssetType `json:"type,omitempty"`
}

// SubAssetInput 新建子资产
type SubAssetInput struct {
	Label       string `json:"label" validate:"required"`
	Img         string `json:"img"`
	Description string `json:"description"`
}

// AssetService 资产库与镜头的资产引用
type AssetService struct {
	store    *ProjectStore
	ai       AssetDesigner
	clock    *utils.Clock
	validate *validator.Validate
}

// NewAssetService 创建资产服务
func NewAssetService(store *ProjectStore, ai AssetDesigner) *AssetService {
	return &AssetService{
		store:    store,
		ai:       ai,
		clock:    utils.NewClock(nil),
		validate: validator.New(),
	}
}

func assetNotFound(assetID string) error {
	return errors.NewNotFoundError("资产不存在: "+assetID, nil)
}

// ListAssets 返回资产库，assetType 为空时返回全部类型
func (s *AssetService) ListAssets(projectID string, assetType models.AssetType) ([]models.Asset, error) {
	p, err := s.store.Get(projectID)
	if err != nil {
		return nil, err
	}
	if assetType == "" {
		return p.Assets.All(), nil
	}
	if !assetType.Valid() {
		return nil, errors.NewValidationError("无效的资产类型: "+string(assetType), nil)
	}
	list := p.Assets.ListFor(assetType)
	if list == nil {
		return []models.Asset{}, nil
	}
	return list, nil
}

// GetAsset 按ID查找资产，可指向子资产
func (s *AssetService) GetAsset(projectID, assetID string) (models.Asset, error) {
	p, err := s.store.Get(projectID)
	if err != nil {
		return models.Asset{}, err
	}
	a, ok := resolve.FindAssetDeep(p.Assets, assetID)
	if !ok {
		return models.Asset{}, assetNotFound(assetID)
	}
	return a, nil
}

// CreateAsset 向资产库添加资产，未提供图片时使用占位图
func (s *AssetService) CreateAsset(projectID string, input AssetInput) (models.Asset, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return models.Asset{}, errors.NewValidationError("资产信息无效", err)
	}

	asset := models.Asset{
		ID:          utils.NewID("asset"),
		Name:        input.Name,
		Img:         input.Img,
		Type:        input.Type,
		Description: input.Description,
		LoraID:      input.LoraID,
	}
	if asset.Img == "" {
		asset.Img = placeholderAssetImage(asset.Name)
	}

	_, err := s.store.Update(projectID, "asset.create", func(p *models.Project) (*models.Project, error) {
		return tree.UpdateAssets(p, func(c models.AssetCollection) models.AssetCollection {
			list := c.ListFor(asset.Type)
			next := make([]models.Asset, 0, len(list)+1)
			next = append(next, list...)
			return c.WithList(asset.Type, append(next, asset))
		}), nil
	})
	if err != nil {
		return models.Asset{}, err
	}
	return asset, nil
}

// modifyAsset 在资产副本上执行 fn，fn 返回错误时放弃修改
func (s *AssetService) modifyAsset(projectID, assetID, op string, fn func(*models.Asset) error) (models.Asset, error) {
	var updated models.Asset
	_, err := s.store.Update(projectID, op, func(p *models.Project) (*models.Project, error) {
		for _, t := range []models.AssetType{models.AssetTypeCharacter, models.AssetTypeScene, models.AssetTypeProp} {
			list := p.Assets.ListFor(t)
			i := slices.IndexFunc(list, func(a models.Asset) bool { return a.ID == assetID })
			if i < 0 {
				continue
			}
			a := list[i]
			a.SubAssets = slices.Clone(a.SubAssets)
			if err := fn(&a); err != nil {
				return nil, err
			}
			updated = a
			return tree.UpdateAssets(p, func(c models.AssetCollection) models.AssetCollection {
				next := slices.Clone(list)
				next[i] = a
				return c.WithList(t, next)
			}), nil
		}
		return nil, assetNotFound(assetID)
	})
	if err != nil {
		return models.Asset{}, err
	}
	return updated, nil
}

// UpdateAsset 修改资产，类型不可更改
func (s *AssetService) UpdateAsset(projectID, assetID string, patch AssetPatch) (models.Asset, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return models.Asset{}, errors.NewValidationError("资产名称不能为空", nil)
	}
	return s.modifyAsset(projectID, assetID, "asset.update", func(a *models.Asset) error {
		if patch.Type != nil && *patch.Type != a.Type {
			return errors.NewValidationError("资产类型创建后不可更改", nil)
		}
		if patch.Name != nil {
			a.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Img != nil {
			a.Img = *patch.Img
		}
		if patch.Description != nil {
			a.Description = *patch.Description
		}
		if patch.LoraID != nil {
			a.LoraID = *patch.LoraID
		}
		return nil
	})
}

// AddSubAsset 为资产添加子视图
func (s *AssetService) AddSubAsset(projectID, assetID string, input SubAssetInput) (models.SubAsset, error) {
	input.Label = strings.TrimSpace(input.Label)
	if err := s.validate.Struct(input); err != nil {
		return models.SubAsset{}, errors.NewValidationError("子资产信息无效", err)
	}

	ts := s.clock.Next()
	sub := models.SubAsset{
		ID:          fmt.Sprintf("sub_%d", ts),
		Img:         input.Img,
		Label:       input.Label,
		Description: input.Description,
		Type:        "image",
	}
	if sub.Img == "" {
		sub.Img = fmt.Sprintf("https://picsum.photos/seed/%d/300/300", ts)
	}

	_, err := s.modifyAsset(projectID, assetID, "asset.sub_add", func(a *models.Asset) error {
		a.SubAssets = append(a.SubAssets, sub)
		return nil
	})
	if err != nil {
		return models.SubAsset{}, err
	}
	return sub, nil
}

// RemoveSubAsset 删除子视图
func (s *AssetService) RemoveSubAsset(projectID, assetID, subID string) error {
	_, err := s.modifyAsset(projectID, assetID, "asset.sub_remove", func(a *models.Asset) error {
		i := slices.IndexFunc(a.SubAssets, func(sub models.SubAsset) bool { return sub.ID == subID })
		if i < 0 {
			return errors.NewNotFoundError("子资产不存在: "+subID, nil)
		}
		a.SubAssets = slices.Delete(a.SubAssets, i, i+1)
		return nil
	})
	return err
}

// PolishAssetPrompt 以资产名称为上下文润色描述
func (s *AssetService) PolishAssetPrompt(ctx context.Context, name, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.NewValidationError("描述为空，无法润色", nil)
	}
	return s.ai.PolishPrompt(ctx, fmt.Sprintf("Character/Scene description for: %s. %s", name, prompt))
}

// GenerateAssetCandidates 依次生成四张 1:1 候选图
func (s *AssetService) GenerateAssetCandidates(ctx context.Context, name, prompt string) ([]string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(prompt) == "" {
		return nil, errors.NewValidationError("资产名称与描述不能为空", nil)
	}

	urls := make([]string, 0, AssetCandidateCount)
	for i := 0; i < AssetCandidateCount; i++ {
		url, err := s.ai.GenerateImage(ctx, fmt.Sprintf("%s --variation %d", prompt, i), models.ImageConfig{AspectRatio: "1:1"})
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// TaskReferences 镜头当前的有效引用
func (s *AssetService) TaskReferences(projectID string, path models.TaskPath) ([]models.Asset, error) {
	p, task, err := s.store.Task(projectID, path)
	if err != nil {
		return nil, err
	}
	refs := resolve.References(p.Assets, task)
	if refs == nil {
		return []models.Asset{}, nil
	}
	return refs, nil
}

// SetTaskSlotAsset 设置镜头的角色、场景或道具槽位，assetID 为空时清空
func (s *AssetService) SetTaskSlotAsset(projectID string, path models.TaskPath, slot models.AssetType, assetID string) (*models.Task, error) {
	if !slot.Valid() {
		return nil, errors.NewValidationError("无效的槽位: "+string(slot), nil)
	}

	var asset *models.Asset
	if assetID != "" {
		a, err := s.GetAsset(projectID, assetID)
		if err != nil {
			return nil, err
		}
		if a.Type != slot {
			return nil, errors.NewValidationError(fmt.Sprintf("资产类型 %s 与槽位 %s 不匹配", a.Type, slot), nil)
		}
		asset = &a
	}

	_, task, err := s.store.UpdateTask(projectID, path, "task.slot", func(t *models.Task) {
		t.Assets = t.Assets.With(slot, asset)
	})
	return task, err
}

// AddTaskReferences 追加显式引用，已存在的ID忽略
func (s *AssetService) AddTaskReferences(projectID string, path models.TaskPath, assetIDs []string) (*models.Task, error) {
	if len(assetIDs) == 0 {
		return nil, errors.NewValidationError("未选择任何资产", nil)
	}
	p, err := s.store.Get(projectID)
	if err != nil {
		return nil, err
	}
	for _, id := range assetIDs {
		if _, ok := resolve.FindAssetDeep(p.Assets, id); !ok {
			return nil, assetNotFound(id)
		}
	}

	missing := func(t *models.Task) bool {
		for _, id := range assetIDs {
			if !slices.Contains(t.ReferencedAssetIDs, id) {
				return true
			}
		}
		return false
	}
	_, task, err := s.store.UpdateTaskWhen(projectID, path, "task.reference_add", missing, func(t *models.Task) {
		ids := slices.Clone(t.ReferencedAssetIDs)
		for _, id := range assetIDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		t.ReferencedAssetIDs = ids
	})
	return task, err
}

// RemoveTaskReference 从镜头的显式引用中移除资产
func (s *AssetService) RemoveTaskReference(projectID string, path models.TaskPath, assetID string) (*models.Task, error) {
	present := func(t *models.Task) bool {
		return slices.Contains(t.ReferencedAssetIDs, assetID)
	}
	_, task, err := s.store.UpdateTaskWhen(projectID, path, "task.reference_remove", present, func(t *models.Task) {
		t.ReferencedAssetIDs = resolve.WithoutID(t.ReferencedAssetIDs, assetID)
	})
	return task, err
}
