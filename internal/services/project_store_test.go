package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
)

func TestCreateValidatesAndRejectsDuplicates(t *testing.T) {
	store := NewProjectStore()

	_, err := store.Create(&models.Project{})
	assert.True(t, errors.IsValidationError(err))

	p, err := store.Create(&models.Project{Name: "新项目"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	_, err = store.Create(&models.Project{ID: p.ID, Name: "again"})
	assert.True(t, errors.IsConflictError(err))

	_, err = store.Get("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpdateEmitsEventsAndBumpsRevision(t *testing.T) {
	store := newFixtureStore(t)
	var events []StoreEvent
	unsubscribe := store.Subscribe(func(e StoreEvent) { events = append(events, e) })

	before, _ := store.Get("p1")
	_, task, err := store.UpdateTask("p1", pathT1, "rename", func(t *models.Task) { t.Title = "新标题" })
	require.NoError(t, err)
	assert.Equal(t, "新标题", task.Title)

	after, _ := store.Get("p1")
	assert.NotSame(t, before, after)
	assert.Equal(t, "Shot 1", before.Scripts[0].Episodes[0].Scenes[0].Tasks[0].Title, "old roots stay untouched")
	assert.EqualValues(t, 2, store.Revision("p1"))
	require.Len(t, events, 1)
	assert.Equal(t, EventProjectUpdated, events[0].Type)
	assert.Equal(t, "rename", events[0].Operation)

	// 返回原指针视为无变化
	_, err = store.Update("p1", "noop", func(p *models.Project) (*models.Project, error) { return p, nil })
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.Revision("p1"))

	unsubscribe()
	_, _, err = store.UpdateTask("p1", pathT1, "rename", func(t *models.Task) { t.Title = "x" })
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestUpdateTaskStalePath(t *testing.T) {
	store := newFixtureStore(t)

	stale := pathT1
	stale.EpisodeID = "e2"
	_, _, err := store.UpdateTask("p1", stale, "rename", func(t *models.Task) { t.Title = "x" })
	assert.True(t, errors.IsNotFoundError(err))
	assert.EqualValues(t, 1, store.Revision("p1"))
}

func TestConcurrentWritersDoNotClobber(t *testing.T) {
	store := newFixtureStore(t)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := store.UpdateTask("p1", pathT1, "append", func(t *models.Task) {
				t.AppendVersions(models.Version{ID: "a"})
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, _, err := store.UpdateTask("p1", pathT2, "append", func(t *models.Task) {
				t.AppendVersions(models.Version{ID: "b"})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, t1, _ := store.Task("p1", pathT1)
	_, t2, _ := store.Task("p1", pathT2)
	assert.Len(t, t1.Versions, 20)
	assert.Len(t, t2.Versions, 20)
}

func TestConcurrentWritersEmitInRevisionOrder(t *testing.T) {
	store := newFixtureStore(t)
	var mu sync.Mutex
	var revisions []int64
	store.Subscribe(func(e StoreEvent) {
		mu.Lock()
		revisions = append(revisions, e.Revision)
		mu.Unlock()
	})
	start := store.Revision("p1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.UpdateTask("p1", pathT1, "append", func(t *models.Task) {
				t.AppendVersions(models.Version{ID: "v"})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, revisions, 50)
	for i, rev := range revisions {
		assert.Equal(t, start+int64(i)+1, rev)
	}
}

func TestResolveTaskPath(t *testing.T) {
	store := newFixtureStore(t)

	path, err := store.ResolveTaskPath("p1", "t2")
	require.NoError(t, err)
	assert.Equal(t, pathT2, path)

	_, err = store.ResolveTaskPath("p1", "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListSummaries(t *testing.T) {
	store := newFixtureStore(t)
	_, err := store.Create(&models.Project{ID: "p2", Name: "第二个"})
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)
	assert.Equal(t, 2, list[0].TaskCount)
	assert.Equal(t, 1, list[0].Drafts)
	assert.Equal(t, "p2", list[1].ID)
}
