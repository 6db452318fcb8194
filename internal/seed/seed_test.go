package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/models"
)

func TestLoadEmbeddedDemo(t *testing.T) {
	projects, err := Load("")
	require.NoError(t, err)
	require.Len(t, projects, 1)

	p := projects[0]
	assert.Equal(t, "p1", p.ID)
	assert.Len(t, p.Assets.Characters, 3)
	assert.Len(t, p.Assets.Characters[0].SubAssets, 3)
	assert.Equal(t, models.AssetTypeScene, p.Assets.Scenes[0].Type)
	require.Len(t, p.Scripts, 2)

	task, ok := p.FindTask(models.TaskPath{DraftID: "sd_02", EpisodeID: "ep_01_final", SceneID: "sc_01", TaskID: "s1-01"})
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusDone, task.Status)
	assert.Equal(t, "v1", task.KeyframeVersionID, "keyframe url linked to its version")
	assert.True(t, task.Versions[0].IsFavorite)
	assert.Equal(t, "Extreme Close Up (ECU)", task.Breakdown.Composition)

	empty, ok := p.FindTask(models.TaskPath{DraftID: "sd_02", EpisodeID: "ep_01_final", SceneID: "sc_01", TaskID: "s1-02"})
	require.True(t, ok)
	assert.NotNil(t, empty.Versions)
	assert.Empty(t, empty.KeyframeImage)

	ep, ok := p.FindEpisode("sd_02", "ep_02_final")
	require.True(t, ok)
	assert.NotNil(t, ep.Scenes)
}

func TestParseRejectsIncompleteProject(t *testing.T) {
	_, err := Parse([]byte("- name: 无ID项目\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("not: [valid"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: px\n  name: 测试\n"), 0o644))

	projects, err := Load(path)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.NotNil(t, projects[0].Scripts)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type memoryCreator struct{ ids []string }

func (m *memoryCreator) Create(p *models.Project) (*models.Project, error) {
	m.ids = append(m.ids, p.ID)
	return p, nil
}

func TestInstall(t *testing.T) {
	projects, err := Load("")
	require.NoError(t, err)

	store := &memoryCreator{}
	n, err := Install(store, projects)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"p1"}, store.ids)
}
