// -----------------------------------------------------------------------
// Async Scheduler - Single-admission queue-based automation execution
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/curro/internal/automation"
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
	"github.com/ternarybob/curro/internal/queue"
	"github.com/ternarybob/curro/internal/status"
)

// DefaultCompletedCapacity is the soft cap on retained completed results
const DefaultCompletedCapacity = 100

// ErrNoPending is returned when admission finds no pending instance
var ErrNoPending = errors.New("no pending automation")

// activeRun pairs an admitted entry with its initialized invoker
type activeRun struct {
	entry   *models.QueueEntry
	invoker interfaces.Invoker
	cancel  context.CancelFunc
}

// completedResult is one retired result in the bounded completed cache
type completedResult struct {
	instanceID  string
	result      *models.InstanceResult
	completedAt time.Time
}

// Scheduler is the longer-lived, interactive variant of the batch driver:
// callers enqueue specifications as pending, a driver cycle admits one
// pending instance at a time into the active set and executes it, and
// results retire into a bounded recent-results cache.
type Scheduler struct {
	queue        *queue.Manager
	materializer *automation.Materializer
	factory      interfaces.InvokerFactory
	events       interfaces.EventService
	logger       arbor.ILogger
	limiter      *rate.Limiter

	mu        sync.RWMutex
	active    map[string]*activeRun // flat, keyed by instance id
	completed []completedResult
	capacity  int
}

// NewScheduler creates an async scheduler. admissionRate throttles
// StartAsync cycles (0 = unlimited); capacity bounds the completed cache
// (0 = DefaultCompletedCapacity).
func NewScheduler(queueMgr *queue.Manager, materializer *automation.Materializer, factory interfaces.InvokerFactory, events interfaces.EventService, logger arbor.ILogger, admissionRate float64, capacity int) *Scheduler {
	limit := rate.Inf
	if admissionRate > 0 {
		limit = rate.Limit(admissionRate)
	}
	if capacity <= 0 {
		capacity = DefaultCompletedCapacity
	}
	return &Scheduler{
		queue:        queueMgr,
		materializer: materializer,
		factory:      factory,
		events:       events,
		logger:       logger,
		limiter:      rate.NewLimiter(limit, 1),
		active:       make(map[string]*activeRun),
		capacity:     capacity,
	}
}

// AddPendingAutomation validates and materializes a specification and
// pushes every resulting instance onto the pending queue. Returns the
// group id shared by the new instances.
func (s *Scheduler) AddPendingAutomation(spec *models.RunSpecification) (string, error) {
	if err := automation.ValidateSpecification(spec); err != nil {
		return "", err
	}

	instances, err := s.materializer.Materialize(spec)
	if err != nil {
		return "", fmt.Errorf("materialize specification %s: %w", spec.ID, err)
	}

	entries := make([]*models.QueueEntry, 0, len(instances))
	for _, instance := range instances {
		entries = append(entries, models.NewQueueEntry(instance))
	}
	s.queue.AddPending(entries...)

	s.logger.Info().
		Str("automation_id", spec.ID).
		Str("group_id", instances[0].GroupID).
		Int("instances", len(instances)).
		Msg("Automation added as pending")
	return instances[0].GroupID, nil
}

// EnablePendingAutomation pops exactly one pending instance, initializes
// its invoker, marks it Processing and moves it into the flat active map.
func (s *Scheduler) EnablePendingAutomation() (*models.QueueEntry, error) {
	entry, ok := s.queue.GetPending()
	if !ok {
		return nil, ErrNoPending
	}

	invoker, err := s.factory.NewInvoker(entry.Instance)
	if err != nil {
		s.queue.AddError(entry)
		return nil, fmt.Errorf("initialize invoker for %s: %w", entry.InstanceID(), err)
	}

	entry.Status.Status = models.StatusProcessing

	s.mu.Lock()
	s.active[entry.InstanceID()] = &activeRun{entry: entry, invoker: invoker}
	s.mu.Unlock()

	s.logger.Debug().
		Str("group_id", entry.GroupID()).
		Str("instance_id", entry.InstanceID()).
		Int("iteration", entry.Instance.Iteration).
		Msg("Pending automation admitted")
	return entry, nil
}

// GetActiveAutomation returns active entries. With ids it returns the
// named entries that are still active; without, all of them.
func (s *Scheduler) GetActiveAutomation(ids ...string) []*models.QueueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		entries := make([]*models.QueueEntry, 0, len(s.active))
		for _, run := range s.active {
			entries = append(entries, run.entry)
		}
		return entries
	}

	entries := make([]*models.QueueEntry, 0, len(ids))
	for _, id := range ids {
		if run, ok := s.active[id]; ok {
			entries = append(entries, run.entry)
		}
	}
	return entries
}

// StartAsync performs one admission-and-run cycle: admit one pending
// instance, run it to completion, retire its result into the completed
// cache. Returns the results keyed by instance id (empty when nothing was
// pending).
func (s *Scheduler) StartAsync(ctx context.Context) (map[string]*models.InstanceResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	entry, err := s.EnablePendingAutomation()
	if errors.Is(err, ErrNoPending) {
		return map[string]*models.InstanceResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := s.runInstance(ctx, entry)

	results := make(map[string]*models.InstanceResult, 1)
	if result != nil {
		results[entry.InstanceID()] = result
	}
	return results, nil
}

// runInstance executes one admitted instance synchronously, folding its
// lifecycle events into the entry's status tree. Returns nil on failure;
// failures are routed to the queue error collection.
func (s *Scheduler) runInstance(ctx context.Context, entry *models.QueueEntry) *models.InstanceResult {
	instanceID := entry.InstanceID()

	s.mu.RLock()
	run := s.active[instanceID]
	s.mu.RUnlock()
	if run == nil {
		return nil
	}

	instCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run.cancel = cancel
	entry.Cancel = cancel

	run.invoker.Subscribe(func(ev interfaces.LifecycleEvent) {
		status.Apply(entry.Status, ev)
	})

	result, err := run.invoker.Invoke(instCtx)

	s.mu.Lock()
	delete(s.active, instanceID)
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info().
				Str("group_id", entry.GroupID()).
				Str("instance_id", instanceID).
				Msg("Automation cancelled")
			return nil
		}
		s.logger.Error().
			Err(err).
			Str("group_id", entry.GroupID()).
			Str("instance_id", instanceID).
			Int("iteration", entry.Instance.Iteration).
			Msg("Automation execution failed")
		s.queue.AddError(entry)
		return nil
	}

	if result == nil {
		result = &models.InstanceResult{}
	}
	result.InstanceID = instanceID
	result.GroupID = entry.GroupID()
	result.Iteration = entry.Instance.Iteration
	result.QueueTime = time.Since(entry.CreatedAt)

	s.retire(instanceID, result)
	return result
}

// retire stores a completed result, evicting the oldest entries by
// completion time once the soft capacity is exceeded.
func (s *Scheduler) retire(instanceID string, result *models.InstanceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = append(s.completed, completedResult{
		instanceID:  instanceID,
		result:      result,
		completedAt: time.Now(),
	})

	if len(s.completed) > s.capacity {
		sort.SliceStable(s.completed, func(i, j int) bool {
			return s.completed[i].completedAt.Before(s.completed[j].completedAt)
		})
		s.completed = s.completed[len(s.completed)-s.capacity:]
	}
}

// Completed returns a snapshot of retired results, most recent last
func (s *Scheduler) Completed() []*models.InstanceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.InstanceResult, 0, len(s.completed))
	for _, c := range s.completed {
		results = append(results, c.result)
	}
	return results
}

// CompletedCount returns the number of retained completed results
func (s *Scheduler) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.completed)
}

// Cancel aborts one active instance by id, cooperatively
func (s *Scheduler) Cancel(instanceID string) bool {
	s.mu.RLock()
	run := s.active[instanceID]
	s.mu.RUnlock()

	if run == nil || run.cancel == nil {
		return false
	}
	run.cancel()
	return true
}

// Pause delegates to the queue manager
func (s *Scheduler) Pause() { s.queue.Pause() }

// Resume delegates to the queue manager
func (s *Scheduler) Resume() { s.queue.Resume() }

// Reset clears the queue collections and the scheduler's own state.
// Active invokers are cancelled first.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	for _, run := range s.active {
		if run.cancel != nil {
			run.cancel()
		}
	}
	s.active = make(map[string]*activeRun)
	s.completed = nil
	s.mu.Unlock()

	s.queue.Reset()
}
