// internal/models/analyzer.go
package models

// EpisodeBreakdown AI分集结果中的一集，附带该集出现的资产名称
type EpisodeBreakdown struct {
	Title   string     `json:"title"`
	Content string     `json:"content"`
	Assets  AssetNames `json:"assets"`
}

// BreakdownResult 长剧本分集的结果
type BreakdownResult struct {
	Episodes []EpisodeBreakdown `json:"episodes"`
}

// AnalyzedTask 分析服务返回的原始镜头数据
type AnalyzedTask struct {
	ID                string      `json:"id,omitempty"`
	Title             string      `json:"title"`
	Script            string      `json:"script"`
	Prompt            string      `json:"prompt"`
	Duration          string      `json:"duration"`
	ActionDescription string      `json:"actionDescription,omitempty"`
	CameraMovement    string      `json:"cameraMovement,omitempty"`
	Breakdown         *Breakdown  `json:"breakdown,omitempty"`
	ExtractedAssets   *AssetNames `json:"extractedAssets,omitempty"`
}

// AnalyzedScene 分析服务返回的原始场景数据
type AnalyzedScene struct {
	ID      string         `json:"id,omitempty"`
	Title   string         `json:"title"`
	Content string         `json:"content"`
	Tasks   []AnalyzedTask `json:"tasks"`
}
