// internal/resolve/resolve.go
//
// Package resolve 把镜头的三类资产引用（槽位资产、AI提取的名称、显式引用ID）
// 合并为一个去重后的有序列表，并据此增强生成提示词。所有函数都是纯函数。
package resolve

import (
	"strings"

	"github.com/Corphon/StoryboardStudio/internal/models"
)

// FindAssetDeep 先在三个列表中精确匹配顶层资产ID，
// 找不到时在各资产的子资产中查找，并合成一个临时资产记录。
// 合成记录依赖父资产当前的状态，每次调用都重新生成。
func FindAssetDeep(assets models.AssetCollection, id string) (models.Asset, bool) {
	all := assets.All()
	for _, a := range all {
		if a.ID == id {
			return a, true
		}
	}

	for _, parent := range all {
		sub, ok := parent.FindSubAsset(id)
		if !ok {
			continue
		}
		description := sub.Description
		if description == "" {
			description = parent.Description
		}
		return models.Asset{
			ID:          sub.ID,
			Name:        parent.Name + " - " + sub.Label,
			Img:         sub.Img,
			Type:        parent.Type,
			Description: description,
			SubAssets:   []models.SubAsset{},
		}, true
	}
	return models.Asset{}, false
}

// References 镜头的有效引用列表
func References(assets models.AssetCollection, task *models.Task) []models.Asset {
	if task == nil {
		return nil
	}

	var list dedupList

	// 1. 槽位资产：角色、场景、道具
	for _, a := range task.Assets.Slots() {
		list.add(a)
	}

	// 2. 提取的名称：不区分标签类别，依次匹配角色、场景、道具
	for _, name := range task.ExtractedTags.Flatten() {
		if a, ok := assets.FindByName(name); ok {
			list.add(a)
		}
	}

	// 3. 显式引用ID，可指向子资产
	for _, id := range task.ReferencedAssetIDs {
		if a, ok := FindAssetDeep(assets, id); ok {
			list.add(a)
		}
	}

	return list.items
}

// ResolveIDs 解析调用方显式选择的引用ID，忽略无法解析的ID
func ResolveIDs(assets models.AssetCollection, ids []string) []models.Asset {
	var list dedupList
	for _, id := range ids {
		if a, ok := FindAssetDeep(assets, id); ok {
			list.add(a)
		}
	}
	return list.items
}

// IDs 返回资产列表的ID
func IDs(refs []models.Asset) []string {
	ids := make([]string, 0, len(refs))
	for _, a := range refs {
		ids = append(ids, a.ID)
	}
	return ids
}

// WithoutID 从ID列表中去掉某个ID
func WithoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

const augmentTask = "Task: Generate an image based on the following description, ensuring consistency with the visual references above."

// AugmentPrompt 在提示词前加入视觉参考说明。没有参考时原样返回
func AugmentPrompt(prompt string, refs []models.Asset) string {
	if len(refs) == 0 {
		return prompt
	}

	lines := make([]string, 0, len(refs))
	for _, a := range refs {
		lines = append(lines, "[Reference "+strings.ToUpper(string(a.Type))+": "+a.Name+"] "+a.Description)
	}

	var b strings.Builder
	b.WriteString("Visual References:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
	b.WriteString(augmentTask)
	b.WriteString("\nDescription: ")
	b.WriteString(prompt)
	return b.String()
}

// dedupList 按ID去重，保留第一次出现
type dedupList struct {
	seen  map[string]struct{}
	items []models.Asset
}

func (l *dedupList) add(a models.Asset) {
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[a.ID]; ok {
		return
	}
	l.seen[a.ID] = struct{}{}
	l.items = append(l.items, a)
}
