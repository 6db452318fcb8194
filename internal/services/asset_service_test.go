package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
)

// stubDesigner 记录润色与生图请求
type stubDesigner struct {
	polished []string
	prompts  []string
	configs  []models.ImageConfig
}

func (s *stubDesigner) PolishPrompt(ctx context.Context, text string) (string, error) {
	s.polished = append(s.polished, text)
	return "polished: " + text, nil
}

func (s *stubDesigner) GenerateImage(ctx context.Context, prompt string, cfg models.ImageConfig) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.configs = append(s.configs, cfg)
	return fmt.Sprintf("https://cdn.test/asset/%d", len(s.prompts)), nil
}

func newTestAssetService(t *testing.T) (*AssetService, *ProjectStore, *stubDesigner) {
	t.Helper()
	store := newFixtureStore(t)
	ai := &stubDesigner{}
	return NewAssetService(store, ai), store, ai
}

func TestCreateAssetValidation(t *testing.T) {
	svc, _, _ := newTestAssetService(t)

	_, err := svc.CreateAsset("p1", AssetInput{Name: " ", Type: models.AssetTypeProp})
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.CreateAsset("p1", AssetInput{Name: "芯片", Type: "vehicle"})
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.CreateAsset("missing", AssetInput{Name: "芯片", Type: models.AssetTypeProp})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCreateAssetAppendsToTypedList(t *testing.T) {
	svc, store, _ := newTestAssetService(t)
	before, _ := store.Get("p1")

	asset, err := svc.CreateAsset("p1", AssetInput{Name: "激光枪", Type: models.AssetTypeProp})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.Img, "https://picsum.photos/seed/"))

	props, err := svc.ListAssets("p1", models.AssetTypeProp)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, asset.ID, props[0].ID)

	all, err := svc.ListAssets("p1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Empty(t, before.Assets.Props)
}

func TestUpdateAssetTypeImmutable(t *testing.T) {
	svc, _, _ := newTestAssetService(t)

	sceneType := models.AssetTypeScene
	_, err := svc.UpdateAsset("p1", "c1", AssetPatch{Type: &sceneType})
	assert.True(t, errors.IsValidationError(err))

	sameType := models.AssetTypeCharacter
	updated, err := svc.UpdateAsset("p1", "c1", AssetPatch{Type: &sameType, Description: strPtr("退休警探")})
	require.NoError(t, err)
	assert.Equal(t, "退休警探", updated.Description)
	assert.Equal(t, models.AssetTypeCharacter, updated.Type)

	_, err = svc.UpdateAsset("p1", "nope", AssetPatch{Name: strPtr("x")})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSubAssetLifecycle(t *testing.T) {
	svc, store, _ := newTestAssetService(t)
	before, _ := store.Get("p1")

	_, err := svc.AddSubAsset("p1", "c1", SubAssetInput{})
	assert.True(t, errors.IsValidationError(err))

	sub, err := svc.AddSubAsset("p1", "c1", SubAssetInput{Label: "面部特写"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sub.ID, "sub_"))
	assert.Equal(t, "image", sub.Type)
	assert.NotEmpty(t, sub.Img)

	synthesized, err := svc.GetAsset("p1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "杰克 - 面部特写", synthesized.Name)
	assert.Equal(t, "赛博侦探", synthesized.Description)

	require.NoError(t, svc.RemoveSubAsset("p1", "c1", "sub1"))
	asset, err := svc.GetAsset("p1", "c1")
	require.NoError(t, err)
	require.Len(t, asset.SubAssets, 1)
	assert.Equal(t, sub.ID, asset.SubAssets[0].ID)

	assert.True(t, errors.IsNotFoundError(svc.RemoveSubAsset("p1", "c1", "sub1")))
	assert.Len(t, before.Assets.Characters[0].SubAssets, 1, "previous tree untouched")
}

func TestAssetCandidates(t *testing.T) {
	svc, _, ai := newTestAssetService(t)

	polished, err := svc.PolishAssetPrompt(context.Background(), "杰克", "风衣")
	require.NoError(t, err)
	assert.Equal(t, "polished: Character/Scene description for: 杰克. 风衣", polished)

	_, err = svc.PolishAssetPrompt(context.Background(), "杰克", "")
	assert.True(t, errors.IsValidationError(err))

	urls, err := svc.GenerateAssetCandidates(context.Background(), "杰克", "风衣")
	require.NoError(t, err)
	assert.Len(t, urls, AssetCandidateCount)
	assert.Equal(t, "风衣 --variation 0", ai.prompts[0])
	assert.Equal(t, "风衣 --variation 3", ai.prompts[3])
	for _, cfg := range ai.configs {
		assert.Equal(t, "1:1", cfg.AspectRatio)
	}

	_, err = svc.GenerateAssetCandidates(context.Background(), "", "风衣")
	assert.True(t, errors.IsValidationError(err))
}

func TestTaskReferenceSelector(t *testing.T) {
	svc, _, _ := newTestAssetService(t)

	task, err := svc.SetTaskSlotAsset("p1", pathT1, models.AssetTypeScene, "sc1")
	require.NoError(t, err)
	require.NotNil(t, task.Assets.Scene)
	assert.Equal(t, "暗巷", task.Assets.Scene.Name)

	_, err = svc.SetTaskSlotAsset("p1", pathT1, models.AssetTypeCharacter, "sc1")
	assert.True(t, errors.IsValidationError(err), "type mismatch")

	task, err = svc.AddTaskReferences("p1", pathT1, []string{"sub1", "c1", "sub1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub1", "c1"}, task.ReferencedAssetIDs)

	_, err = svc.AddTaskReferences("p1", pathT1, []string{"ghost"})
	assert.True(t, errors.IsNotFoundError(err))

	refs, err := svc.TaskReferences("p1", pathT1)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "sc1", refs[0].ID)
	assert.Equal(t, "sub1", refs[1].ID)
	assert.Equal(t, "c1", refs[2].ID)

	task, err = svc.RemoveTaskReference("p1", pathT1, "sub1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, task.ReferencedAssetIDs)

	task, err = svc.SetTaskSlotAsset("p1", pathT1, models.AssetTypeScene, "")
	require.NoError(t, err)
	assert.Nil(t, task.Assets.Scene)
}

func TestTaskReferenceNoOpsKeepRevision(t *testing.T) {
	svc, store, _ := newTestAssetService(t)
	_, err := svc.AddTaskReferences("p1", pathT1, []string{"c1"})
	require.NoError(t, err)

	events := 0
	store.Subscribe(func(StoreEvent) { events++ })
	before, _ := store.Get("p1")
	revision := store.Revision("p1")

	task, err := svc.RemoveTaskReference("p1", pathT1, "not-referenced")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, task.ReferencedAssetIDs)

	_, err = svc.AddTaskReferences("p1", pathT1, []string{"c1"})
	require.NoError(t, err)

	after, _ := store.Get("p1")
	assert.Same(t, before, after)
	assert.Equal(t, revision, store.Revision("p1"))
	assert.Zero(t, events)

	_, err = svc.RemoveTaskReference("p1", models.TaskPath{DraftID: "d1", EpisodeID: "e1", SceneID: "gone", TaskID: "t1"}, "c1")
	assert.True(t, errors.IsNotFoundError(err))
}
