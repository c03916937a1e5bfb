package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/curro/internal/models"
)

func newTestManager() *Manager {
	return NewManager(nil, arbor.NewLogger())
}

func newTestEntry(groupID, instanceID string) *models.QueueEntry {
	return models.NewQueueEntry(&models.RunInstance{
		ID:      instanceID,
		GroupID: groupID,
		Specification: &models.RunSpecification{
			ID:   "auto-1",
			Name: "test",
			Stages: []models.Stage{
				{ID: "s1", Jobs: []models.AutomationJob{
					{ID: "j1", Rules: []models.Rule{{ID: "r1", Plugin: "click"}}},
				}},
			},
		},
	})
}

func TestAddPending_FIFO(t *testing.T) {
	m := newTestManager()

	a := newTestEntry("g1", "run-a")
	b := newTestEntry("g1", "run-b")
	m.AddPending(a, b)

	require.Equal(t, 2, m.PendingCount())

	first, ok := m.GetPending()
	require.True(t, ok)
	assert.Equal(t, "run-a", first.InstanceID())

	second, ok := m.GetPending()
	require.True(t, ok)
	assert.Equal(t, "run-b", second.InstanceID())

	_, ok = m.GetPending()
	assert.False(t, ok)
}

func TestGetPending_EmptyNeverBlocks(t *testing.T) {
	m := newTestManager()

	entry, ok := m.GetPending()
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestAddActive_MarksProcessing(t *testing.T) {
	m := newTestManager()
	entry := newTestEntry("g1", "run-a")

	m.AddActive(entry)

	got, ok := m.GetActive("g1", "run-a")
	require.True(t, ok)
	assert.Equal(t, models.StatusProcessing, got.Status.Status)
}

func TestUpdateActive_CompareAndSwap(t *testing.T) {
	m := newTestManager()
	entry := newTestEntry("g1", "run-a")
	m.AddActive(entry)

	replacement := newTestEntry("g1", "run-a")
	assert.True(t, m.UpdateActive("g1", "run-a", replacement))

	got, _ := m.GetActive("g1", "run-a")
	assert.Same(t, replacement, got)

	// Update of a removed entry fails rather than throwing
	m.RemoveActive("g1", "run-a")
	assert.False(t, m.UpdateActive("g1", "run-a", replacement))
}

func TestRemoveActive_CleansEmptyGroup(t *testing.T) {
	m := newTestManager()
	m.AddActive(newTestEntry("g1", "run-a"), newTestEntry("g1", "run-b"))
	require.Equal(t, 1, m.ActiveGroupCount())

	m.RemoveActive("g1", "run-a")
	assert.Equal(t, 1, m.ActiveGroupCount())

	m.RemoveActive("g1", "run-b")
	// No group key persists with zero members
	assert.Equal(t, 0, m.ActiveGroupCount())
	assert.Equal(t, 0, m.ActiveCount())
}

func TestAddError_RecordsStatus(t *testing.T) {
	m := newTestManager()
	entry := newTestEntry("g1", "run-a")

	m.AddError(entry)

	errs := m.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusError, errs[0].Status)
	assert.Equal(t, "run-a", errs[0].InstanceID)
}

func TestAddError_NilEntryDoesNotPanic(t *testing.T) {
	m := newTestManager()

	assert.NotPanics(t, func() { m.AddError(nil) })
	assert.Len(t, m.Errors(), 1)
}

func TestPause_DropsAddsSilently(t *testing.T) {
	m := newTestManager()
	m.Pause()

	m.AddPending(newTestEntry("g1", "run-a"))
	m.AddActive(newTestEntry("g1", "run-b"))

	assert.Equal(t, 0, m.PendingCount())
	assert.Equal(t, 0, m.ActiveCount())

	m.Resume()
	m.AddPending(newTestEntry("g1", "run-a"))
	m.AddActive(newTestEntry("g1", "run-b"))

	assert.Equal(t, 1, m.PendingCount())
	assert.Equal(t, 1, m.ActiveCount())
}

func TestReset_Idempotent(t *testing.T) {
	m := newTestManager()
	m.AddPending(newTestEntry("g1", "run-a"))
	m.AddActive(newTestEntry("g1", "run-b"))
	m.AddError(newTestEntry("g1", "run-c"))

	m.Reset()
	assert.Equal(t, 0, m.PendingCount())
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, m.Errors())

	// Second reset leaves everything empty as well
	m.Reset()
	assert.Equal(t, 0, m.PendingCount())
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, m.Errors())
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	m := newTestManager()
	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.AddPending(newTestEntry("g1", "run"))
			}
		}()
	}
	wg.Wait()

	dequeued := 0
	for {
		if _, ok := m.GetPending(); !ok {
			break
		}
		dequeued++
	}
	assert.Equal(t, producers*perProducer, dequeued)
}
