// -----------------------------------------------------------------------
// Invocation Driver - Bounded-parallel batch execution of run instances
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
	"github.com/ternarybob/curro/internal/status"
)

// InstanceError pairs a failed queue entry with its execution error
type InstanceError struct {
	Entry *models.QueueEntry
	Err   error
}

// InvocationDriver executes a batch of queue entries, each on its own
// goroutine, with at most maxParallel running concurrently. Each entry's
// invoker lifecycle events are folded into that entry's own status tree;
// trees are disjoint, so one instance's failure can never corrupt another
// instance's status.
type InvocationDriver struct {
	factory     interfaces.InvokerFactory
	events      interfaces.EventService
	logger      arbor.ILogger
	maxParallel int
}

// NewInvocationDriver creates a driver. A maxParallel bound below 1 falls
// back to half of the logical CPUs, minimum 1.
func NewInvocationDriver(factory interfaces.InvokerFactory, events interfaces.EventService, logger arbor.ILogger, maxParallel int) *InvocationDriver {
	if maxParallel < 1 {
		maxParallel = runtime.NumCPU() / 2
		if maxParallel < 1 {
			maxParallel = 1
		}
	}
	return &InvocationDriver{
		factory:     factory,
		events:      events,
		logger:      logger,
		maxParallel: maxParallel,
	}
}

// Run executes all entries and blocks until every one has finished, failed
// or been skipped by a batch-level cancel. Cancellation is batch-wide:
// each entry's Cancel handle aborts admission of further rule work across
// the whole batch, cooperatively through the shared context.
//
// The returned map holds per-group results from entries that completed
// successfully. Failures are isolated per instance and reported in the
// second return value; already-completed sibling results are kept.
func (d *InvocationDriver) Run(ctx context.Context, entries []*models.QueueEntry) (map[string][]*models.InstanceResult, []InstanceError) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		results  = make(map[string][]*models.InstanceResult)
		failures []InstanceError
	)

	recordFailure := func(entry *models.QueueEntry, err error) {
		entry.Status.Status = models.StatusError
		mu.Lock()
		failures = append(failures, InstanceError{Entry: entry, Err: err})
		mu.Unlock()
	}

	sem := make(chan struct{}, d.maxParallel)
	var wg sync.WaitGroup

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		// Batch-wide cancellation handle: cancelling any entry stops
		// admission of new rule-level work across all entries.
		entry.Cancel = cancel

		wg.Add(1)
		go func(entry *models.QueueEntry) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error().
						Str("group_id", entry.GroupID()).
						Str("instance_id", entry.InstanceID()).
						Str("panic", fmt.Sprintf("%v", r)).
						Msg("Recovered from panic during instance invocation")
					recordFailure(entry, fmt.Errorf("instance panicked: %v", r))
				}
			}()

			sem <- struct{}{}
			defer func() { <-sem }()

			if batchCtx.Err() != nil {
				d.logger.Info().
					Str("group_id", entry.GroupID()).
					Str("instance_id", entry.InstanceID()).
					Msg("Instance skipped, batch cancelled")
				return
			}

			d.runOne(batchCtx, entry, func(res *models.InstanceResult) {
				mu.Lock()
				results[entry.GroupID()] = append(results[entry.GroupID()], res)
				mu.Unlock()
			}, recordFailure)
		}(entry)
	}

	wg.Wait()
	return results, failures
}

// runOne executes a single entry's invoker, wiring its lifecycle events
// into the entry's status tree.
func (d *InvocationDriver) runOne(batchCtx context.Context, entry *models.QueueEntry, collect func(*models.InstanceResult), fail func(*models.QueueEntry, error)) {
	invoker, err := d.factory.NewInvoker(entry.Instance)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("group_id", entry.GroupID()).
			Str("instance_id", entry.InstanceID()).
			Int("iteration", entry.Instance.Iteration).
			Msg("Failed to construct invoker")
		fail(entry, err)
		return
	}

	invoker.Subscribe(func(ev interfaces.LifecycleEvent) {
		status.Apply(entry.Status, ev)

		switch ev.Type {
		case interfaces.RuleInvoked:
			// Cooperative abort point: the invoker observes the shared
			// context and stops scheduling further rules once cancelled.
			if batchCtx.Err() != nil {
				d.logger.Debug().
					Str("instance_id", entry.InstanceID()).
					Str("rule_id", ev.RuleID).
					Msg("Batch cancellation observed at rule boundary")
			}
		case interfaces.RuleError:
			d.logger.Warn().
				Err(ev.Err).
				Str("group_id", entry.GroupID()).
				Str("instance_id", entry.InstanceID()).
				Int("iteration", ev.Iteration).
				Str("rule_id", ev.RuleID).
				Msg("Rule reported error")
		case interfaces.AutomationInvoked:
			d.publishCompleted(entry)
		}
	})

	result, err := invoker.Invoke(batchCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancellation is an expected, logged outcome, not an error
			d.logger.Info().
				Str("group_id", entry.GroupID()).
				Str("instance_id", entry.InstanceID()).
				Msg("Instance invocation cancelled")
			return
		}
		d.logger.Error().
			Err(err).
			Str("group_id", entry.GroupID()).
			Str("instance_id", entry.InstanceID()).
			Int("iteration", entry.Instance.Iteration).
			Msg("Instance invocation failed")
		fail(entry, err)
		return
	}

	if result == nil {
		result = &models.InstanceResult{}
	}
	result.InstanceID = entry.InstanceID()
	result.GroupID = entry.GroupID()
	result.Iteration = entry.Instance.Iteration
	result.QueueTime = time.Since(entry.CreatedAt)

	collect(result)
}

func (d *InvocationDriver) publishCompleted(entry *models.QueueEntry) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventAutomationCompleted,
		Payload: entry.Status,
	}); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to publish completion event")
	}
}
