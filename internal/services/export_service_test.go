package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
)

func newExportFixture(t *testing.T) *ExportService {
	t.Helper()
	p := fixtureProject()
	jack := p.Assets.Characters[0]
	t1 := p.Scripts[0].Episodes[0].Scenes[0].Tasks[0]
	t1.Status = models.TaskStatusDone
	t1.ShotNumber = "1-1"
	t1.CameraAngle = "低角度"
	t1.Assets.Char = &jack
	t1.KeyframeImage = "img-1.png"
	t1.Versions = []models.Version{
		{ID: "v1", ImgURL: "img-1.png", Type: models.VersionTypeImage, IsFavorite: true},
		{ID: "v2", ImgURL: "clip.mp4", Type: models.VersionTypeVideo},
	}

	store := NewProjectStore()
	_, err := store.Create(p)
	require.NoError(t, err)

	svc := NewExportService(store)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestExportEpisodeMarkdown(t *testing.T) {
	svc := newExportFixture(t)

	result, err := svc.ExportEpisode("p1", "d1", "e1", "")
	require.NoError(t, err)

	assert.Equal(t, models.ExportFormatMarkdown, result.Format)
	assert.Equal(t, "第一稿 - 第 1 集", result.Title)
	assert.Equal(t, &models.ExportStats{
		SceneCount: 1, ShotCount: 2, DoneShots: 1, KeyframeShots: 1,
		ImageVersions: 1, VideoVersions: 1, Favorites: 1,
	}, result.Stats)
	assert.Contains(t, result.Content, "## 第1场")
	assert.Contains(t, result.Content, "| 1-1 | Shot 1 | done |")
	assert.Contains(t, result.Content, "杰克")
	assert.Contains(t, result.Content, "![](img-1.png)")
	assert.Contains(t, result.Filename, "-storyboard.md")
}

func TestExportEpisodeJSON(t *testing.T) {
	svc := newExportFixture(t)

	result, err := svc.ExportEpisode("p1", "d1", "e1", "JSON")
	require.NoError(t, err)

	var doc struct {
		Shots []models.ExportShot `json:"shots"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &doc))
	require.Len(t, doc.Shots, 2)
	assert.Equal(t, "clip.mp4", doc.Shots[0].Video)
	assert.Equal(t, []string{"杰克"}, doc.Shots[0].References)
	assert.Equal(t, "低角度", doc.Shots[0].Camera)
	assert.Empty(t, doc.Shots[1].References)
}

func TestExportEpisodeText(t *testing.T) {
	svc := newExportFixture(t)

	result, err := svc.ExportEpisode("p1", "d1", "e1", "txt")
	require.NoError(t, err)
	assert.Contains(t, result.Content, "1. [1-1] Shot 1 (done)")
	assert.Contains(t, result.Content, "2. [t2] Shot 2 (queued)")
}

func TestExportEpisodeErrors(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.ExportEpisode("p1", "d1", "e1", "pdf")
	assert.Equal(t, errors.ErrorTypeValidation, errors.TypeOf(err))

	_, err = svc.ExportEpisode("p1", "d1", "missing", "json")
	assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))

	_, err = svc.ExportEpisode("p1", "nope", "e1", "json")
	assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))

	_, err = svc.ExportEpisode("ghost", "d1", "e1", "json")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, strings.HasPrefix(err.Error(), "导出分集: "), err.Error())

	// 空分集也能导出
	result, err := svc.ExportEpisode("p1", "d1", "e2", "md")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stats.ShotCount)
}
