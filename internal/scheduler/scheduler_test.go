package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/curro/internal/automation"
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
	"github.com/ternarybob/curro/internal/queue"
	"github.com/ternarybob/curro/internal/worker"
)

type fakeInvoker struct {
	handler interfaces.LifecycleHandler
	invoke  func(ctx context.Context) (*models.InstanceResult, error)
}

func (f *fakeInvoker) Subscribe(handler interfaces.LifecycleHandler) { f.handler = handler }

func (f *fakeInvoker) Invoke(ctx context.Context) (*models.InstanceResult, error) {
	return f.invoke(ctx)
}

type fakeFactory struct {
	build func(instance *models.RunInstance) (interfaces.Invoker, error)
}

func (f *fakeFactory) NewInvoker(instance *models.RunInstance) (interfaces.Invoker, error) {
	return f.build(instance)
}

func schedulerSpec(rows int) *models.RunSpecification {
	spec := &models.RunSpecification{
		ID:   "auto-1",
		Name: "scheduled automation",
		Stages: []models.Stage{
			{
				ID: "s1",
				Jobs: []models.AutomationJob{
					{ID: "j1", Rules: []models.Rule{{ID: "r1", Plugin: "navigate"}}},
				},
			},
		},
	}
	if rows > 0 {
		payload := "["
		for i := 0; i < rows; i++ {
			if i > 0 {
				payload += ","
			}
			payload += fmt.Sprintf(`{"User":"user-%d"}`, i)
		}
		payload += "]"
		spec.DataSource = &models.DataSource{Provider: models.ProviderJSON, Payload: payload}
	}
	return spec
}

func newTestScheduler(factory interfaces.InvokerFactory, capacity int) (*Scheduler, *queue.Manager) {
	logger := arbor.NewLogger()
	queueMgr := queue.NewManager(nil, logger)
	materializer := automation.NewMaterializer(logger)
	return NewScheduler(queueMgr, materializer, factory, nil, logger, 0, capacity), queueMgr
}

func TestAddPendingAutomation_FansOutToPendingQueue(t *testing.T) {
	s, queueMgr := newTestScheduler(worker.NewDryRunFactory(), 0)

	groupID, err := s.AddPendingAutomation(schedulerSpec(3))
	require.NoError(t, err)
	assert.NotEmpty(t, groupID)
	assert.Equal(t, 3, queueMgr.PendingCount())
}

func TestAddPendingAutomation_RejectsInvalidSpec(t *testing.T) {
	s, queueMgr := newTestScheduler(worker.NewDryRunFactory(), 0)

	spec := schedulerSpec(0)
	spec.Stages = nil

	_, err := s.AddPendingAutomation(spec)
	require.Error(t, err)
	assert.Zero(t, queueMgr.PendingCount())
}

func TestEnablePendingAutomation_EmptyQueue(t *testing.T) {
	s, _ := newTestScheduler(worker.NewDryRunFactory(), 0)

	_, err := s.EnablePendingAutomation()
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestEnablePendingAutomation_AdmitsOneIntoActive(t *testing.T) {
	s, queueMgr := newTestScheduler(worker.NewDryRunFactory(), 0)

	_, err := s.AddPendingAutomation(schedulerSpec(2))
	require.NoError(t, err)

	entry, err := s.EnablePendingAutomation()
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, entry.Status.Status)
	assert.Equal(t, 1, queueMgr.PendingCount(), "exactly one instance admitted")

	active := s.GetActiveAutomation(entry.InstanceID())
	require.Len(t, active, 1)
	assert.Same(t, entry, active[0])
}

func TestEnablePendingAutomation_FactoryFailureRoutedToErrors(t *testing.T) {
	factory := &fakeFactory{build: func(instance *models.RunInstance) (interfaces.Invoker, error) {
		return nil, errors.New("manifest missing")
	}}
	s, queueMgr := newTestScheduler(factory, 0)

	_, err := s.AddPendingAutomation(schedulerSpec(0))
	require.NoError(t, err)

	_, err = s.EnablePendingAutomation()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPending)
	assert.Len(t, queueMgr.Errors(), 1)
}

func TestStartAsync_RunsOneCycle(t *testing.T) {
	s, _ := newTestScheduler(worker.NewDryRunFactory(), 0)

	_, err := s.AddPendingAutomation(schedulerSpec(0))
	require.NoError(t, err)

	results, err := s.StartAsync(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	for instanceID, result := range results {
		assert.Equal(t, instanceID, result.InstanceID)
		assert.GreaterOrEqual(t, result.QueueTime.Nanoseconds(), int64(0))
	}

	assert.Empty(t, s.GetActiveAutomation(), "instance retired after completion")
	assert.Equal(t, 1, s.CompletedCount())
}

func TestStartAsync_NothingPendingIsNotAnError(t *testing.T) {
	s, _ := newTestScheduler(worker.NewDryRunFactory(), 0)

	results, err := s.StartAsync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStartAsync_FailureRoutedToErrors(t *testing.T) {
	factory := &fakeFactory{build: func(instance *models.RunInstance) (interfaces.Invoker, error) {
		return &fakeInvoker{invoke: func(ctx context.Context) (*models.InstanceResult, error) {
			return nil, errors.New("engine failure")
		}}, nil
	}}
	s, queueMgr := newTestScheduler(factory, 0)

	_, err := s.AddPendingAutomation(schedulerSpec(0))
	require.NoError(t, err)

	results, err := s.StartAsync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Len(t, queueMgr.Errors(), 1)
	assert.Zero(t, s.CompletedCount())
}

func TestCompletedCacheBounded(t *testing.T) {
	s, _ := newTestScheduler(worker.NewDryRunFactory(), 3)

	_, err := s.AddPendingAutomation(schedulerSpec(5))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.StartAsync(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, s.CompletedCount())

	// FIFO admission means the retained results are the latest iterations
	retained := map[int]bool{}
	for _, result := range s.Completed() {
		retained[result.Iteration] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true, 4: true}, retained)
}

func TestCancel_UnknownInstance(t *testing.T) {
	s, _ := newTestScheduler(worker.NewDryRunFactory(), 0)
	assert.False(t, s.Cancel("run_missing"))
}

func TestCancel_AbortsActiveInstance(t *testing.T) {
	started := make(chan string, 1)
	factory := &fakeFactory{build: func(instance *models.RunInstance) (interfaces.Invoker, error) {
		return &fakeInvoker{invoke: func(ctx context.Context) (*models.InstanceResult, error) {
			started <- instance.ID
			<-ctx.Done()
			return nil, ctx.Err()
		}}, nil
	}}
	s, _ := newTestScheduler(factory, 0)

	_, err := s.AddPendingAutomation(schedulerSpec(0))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		results, err := s.StartAsync(context.Background())
		assert.NoError(t, err)
		assert.Empty(t, results, "cancelled instance yields no result")
	}()

	var instanceID string
	select {
	case instanceID = <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("instance never started")
	}

	require.Eventually(t, func() bool {
		return s.Cancel(instanceID)
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not unwind after cancel")
	}

	assert.Empty(t, s.GetActiveAutomation())
	assert.Zero(t, s.CompletedCount())
}

func TestReset_ClearsAllState(t *testing.T) {
	s, queueMgr := newTestScheduler(worker.NewDryRunFactory(), 0)

	_, err := s.AddPendingAutomation(schedulerSpec(3))
	require.NoError(t, err)
	_, err = s.StartAsync(context.Background())
	require.NoError(t, err)

	s.Reset()

	assert.Zero(t, queueMgr.PendingCount())
	assert.Zero(t, s.CompletedCount())
	assert.Empty(t, s.GetActiveAutomation())
}
