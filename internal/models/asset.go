// internal/models/asset.go
package models

// AssetType 资产类型，创建后不可更改
type AssetType string

const (
	AssetTypeCharacter AssetType = "character"
	AssetTypeScene     AssetType = "scene"
	AssetTypeProp      AssetType = "prop"
)

// Valid 检查资产类型是否合法
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeCharacter, AssetTypeScene, AssetTypeProp:
		return true
	default:
		return false
	}
}

// SubAssetLabels 子资产的预设标签
var SubAssetLabels = []string{"三视图", "面部特写", "背面图", "细节描写", "表情差分", "其他"}

// SubAsset 资产的附属视图（三视图、面部特写等），类型继承自父资产
type SubAsset struct {
	ID          string `json:"id" yaml:"id"`
	Img         string `json:"img" yaml:"img"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string `json:"type" yaml:"type"` // 固定为 "image"
}

// Asset 可复用的视觉参考：角色、场景或道具
type Asset struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Img         string     `json:"img" yaml:"img"`
	Type        AssetType  `json:"type" yaml:"type"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	LoraID      string     `json:"lora_id,omitempty" yaml:"lora_id,omitempty"`
	SubAssets   []SubAsset `json:"sub_assets,omitempty" yaml:"sub_assets,omitempty"`
}

// FindSubAsset 按ID查找子资产
func (a *Asset) FindSubAsset(id string) (SubAsset, bool) {
	for _, sub := range a.SubAssets {
		if sub.ID == id {
			return sub, true
		}
	}
	return SubAsset{}, false
}

// AssetCollection 项目的资产库
type AssetCollection struct {
	Characters []Asset `json:"characters" yaml:"characters"`
	Scenes     []Asset `json:"scenes" yaml:"scenes"`
	Props      []Asset `json:"props" yaml:"props"`
}

// ListFor 返回指定类型的资产列表
func (c AssetCollection) ListFor(t AssetType) []Asset {
	switch t {
	case AssetTypeCharacter:
		return c.Characters
	case AssetTypeScene:
		return c.Scenes
	case AssetTypeProp:
		return c.Props
	default:
		return nil
	}
}

// WithList 返回替换了指定类型列表的新集合
func (c AssetCollection) WithList(t AssetType, list []Asset) AssetCollection {
	switch t {
	case AssetTypeCharacter:
		c.Characters = list
	case AssetTypeScene:
		c.Scenes = list
	case AssetTypeProp:
		c.Props = list
	}
	return c
}

// All 按 角色、场景、道具 的顺序返回所有顶层资产
func (c AssetCollection) All() []Asset {
	all := make([]Asset, 0, len(c.Characters)+len(c.Scenes)+len(c.Props))
	all = append(all, c.Characters...)
	all = append(all, c.Scenes...)
	all = append(all, c.Props...)
	return all
}

// FindByName 按名称精确匹配，依次检查角色、场景、道具
func (c AssetCollection) FindByName(name string) (Asset, bool) {
	for _, list := range [][]Asset{c.Characters, c.Scenes, c.Props} {
		for _, a := range list {
			if a.Name == name {
				return a, true
			}
		}
	}
	return Asset{}, false
}

// AssetNames AI提取的资产名称（尚未与资产库匹配，因此是名称而非ID）
type AssetNames struct {
	Characters []string `json:"characters" yaml:"characters"`
	Scenes     []string `json:"scenes" yaml:"scenes"`
	Props      []string `json:"props" yaml:"props"`
}

// Flatten 按 角色、场景、道具 的顺序拼接所有名称
func (n *AssetNames) Flatten() []string {
	if n == nil {
		return nil
	}
	names := make([]string, 0, len(n.Characters)+len(n.Scenes)+len(n.Props))
	names = append(names, n.Characters...)
	names = append(names, n.Scenes...)
	names = append(names, n.Props...)
	return names
}

// NamesFor 返回指定类型的名称列表
func (n *AssetNames) NamesFor(t AssetType) []string {
	if n == nil {
		return nil
	}
	switch t {
	case AssetTypeCharacter:
		return n.Characters
	case AssetTypeScene:
		return n.Scenes
	case AssetTypeProp:
		return n.Props
	default:
		return nil
	}
}
