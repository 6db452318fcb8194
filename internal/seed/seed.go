// internal/seed/seed.go
//
// Package seed 加载启动时写入项目存储的演示项目
package seed

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/StoryboardStudio/internal/models"
)

//go:embed demo_project.yaml
var demoProjects []byte

// Creator 接收种子项目的存储
type Creator interface {
	Create(p *models.Project) (*models.Project, error)
}

// Load 读取种子文件，path 为空时使用内置的演示项目
func Load(path string) ([]*models.Project, error) {
	if path == "" {
		return Parse(demoProjects)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取种子文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 格式的项目列表
func Parse(data []byte) ([]*models.Project, error) {
	var projects []*models.Project
	if err := yaml.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("解析种子项目失败: %w", err)
	}
	for i, p := range projects {
		if p == nil || p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("第 %d 个种子项目缺少 id 或 name", i+1)
		}
		normalize(p)
	}
	return projects, nil
}

// Install 把项目写入存储，返回写入数量
func Install(store Creator, projects []*models.Project) (int, error) {
	for i, p := range projects {
		if _, err := store.Create(p); err != nil {
			return i, err
		}
	}
	return len(projects), nil
}

// normalize 补齐空列表与默认状态，并把关键帧地址关联到版本
func normalize(p *models.Project) {
	if p.Scenes == nil {
		p.Scenes = []*models.Scene{}
	}
	if p.Scripts == nil {
		p.Scripts = []*models.ScriptDraft{}
	}
	normalizeScenes(p.Scenes)
	for _, d := range p.Scripts {
		if d.Episodes == nil {
			d.Episodes = []*models.ScriptEpisode{}
		}
		for _, ep := range d.Episodes {
			if ep.Status == "" {
				ep.Status = models.EpisodeStatusDraft
			}
			if ep.Scenes == nil {
				ep.Scenes = []*models.Scene{}
			}
			normalizeScenes(ep.Scenes)
		}
	}
}

func normalizeScenes(scenes []*models.Scene) {
	for _, sc := range scenes {
		if sc.Tasks == nil {
			sc.Tasks = []*models.Task{}
		}
		for _, t := range sc.Tasks {
			if t.Status == "" {
				t.Status = models.TaskStatusQueued
			}
			if t.Versions == nil {
				t.Versions = []models.Version{}
			}
			if t.KeyframeImage != "" && t.KeyframeVersionID == "" {
				t.SetKeyframeURL(t.KeyframeImage)
			}
		}
	}
}
