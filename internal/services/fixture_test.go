package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/models"
)

var (
	pathT1 = models.TaskPath{DraftID: "d1", EpisodeID: "e1", SceneID: "s1", TaskID: "t1"}
	pathT2 = models.TaskPath{DraftID: "d1", EpisodeID: "e1", SceneID: "s1", TaskID: "t2"}
)

// 一个草稿、一集、一场（第1场）、两个镜头，另有一集空分集
func fixtureProject() *models.Project {
	return &models.Project{
		ID:   "p1",
		Name: "AI短剧：赛博杭州",
		Assets: models.AssetCollection{
			Characters: []models.Asset{{
				ID: "c1", Name: "杰克", Img: "jack.png", Type: models.AssetTypeCharacter, Description: "赛博侦探",
				SubAssets: []models.SubAsset{{ID: "sub1", Img: "jack-side.png", Label: "侧视图", Type: "image"}},
			}},
			Scenes: []models.Asset{{ID: "sc1", Name: "暗巷", Img: "alley.png", Type: models.AssetTypeScene}},
		},
		Scripts: []*models.ScriptDraft{{
			ID: "d1", Title: "第一稿", Status: models.DraftStatusDraft,
			Episodes: []*models.ScriptEpisode{
				{ID: "e1", Title: "第 1 集", Status: models.EpisodeStatusDraft, Scenes: []*models.Scene{{
					ID: "s1", Title: "第1场",
					Tasks: []*models.Task{
						{ID: "t1", Title: "Shot 1", Status: models.TaskStatusQueued, Versions: []models.Version{}},
						{ID: "t2", Title: "Shot 2", Status: models.TaskStatusQueued, Versions: []models.Version{}},
					},
				}}},
				{ID: "e2", Title: "第 2 集", Status: models.EpisodeStatusDraft},
			},
		}},
	}
}

func newFixtureStore(t *testing.T) *ProjectStore {
	t.Helper()
	store := NewProjectStore()
	_, err := store.Create(fixtureProject())
	require.NoError(t, err)
	return store
}

// fakeGenerator 按调用次序返回地址，可在第 failAt 次调用时失败，可阻塞直到 release 关闭
type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	failAt   int
	started  chan struct{}
	release  chan struct{}
	videoCfg []models.VideoConfig
}

func (f *fakeGenerator) next(ctx context.Context, prompt, kind string) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failAt > 0 && n == f.failAt {
		return "", fmt.Errorf("quota exceeded on call %d", n)
	}
	return fmt.Sprintf("https://cdn.test/%s/%d", kind, n), nil
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string, cfg models.ImageConfig) (string, error) {
	return f.next(ctx, prompt, "img")
}

func (f *fakeGenerator) GenerateVideo(ctx context.Context, prompt string, cfg models.VideoConfig) (string, error) {
	f.mu.Lock()
	f.videoCfg = append(f.videoCfg, cfg)
	f.mu.Unlock()
	return f.next(ctx, prompt, "vid")
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
