// -----------------------------------------------------------------------
// Engine Service - Synchronous specification -> grouped response pipeline
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curro/internal/automation"
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
	"github.com/ternarybob/curro/internal/queue"
	"github.com/ternarybob/curro/internal/response"
	"github.com/ternarybob/curro/internal/worker"
)

// Service composes the core pipeline: specification -> materializer ->
// queue (pending, then active) -> invocation driver -> response reducer.
type Service struct {
	materializer *automation.Materializer
	queue        *queue.Manager
	driver       *worker.InvocationDriver
	logger       arbor.ILogger
}

// NewService wires the pipeline with explicit dependencies
func NewService(materializer *automation.Materializer, queueMgr *queue.Manager, driver *worker.InvocationDriver, logger arbor.ILogger) *Service {
	return &Service{
		materializer: materializer,
		queue:        queueMgr,
		driver:       driver,
		logger:       logger,
	}
}

// NewDefaultService is the convenience construction path for simple
// callers: wiring with a default queue and the given invoker factory.
func NewDefaultService(factory interfaces.InvokerFactory, events interfaces.EventService, logger arbor.ILogger, maxParallel int) *Service {
	return NewService(
		automation.NewMaterializer(logger),
		queue.NewManager(events, logger),
		worker.NewInvocationDriver(factory, events, logger, maxParallel),
		logger,
	)
}

// Invoke runs one specification synchronously: fan out, admit the whole
// batch, execute with bounded parallelism, and reduce per-instance results
// into one aggregated response per group.
//
// Execution failures inside an instance are not returned as errors: the
// failed instance is routed to the queue's error collection and the caller
// observes its absence from the result map. The returned error covers
// admission failures only (validation, unsupported data source), which
// occur before any instance is created.
func (s *Service) Invoke(ctx context.Context, spec *models.RunSpecification) (map[string]*models.AggregatedResponse, error) {
	if err := automation.ValidateSpecification(spec); err != nil {
		return nil, err
	}

	instances, err := s.materializer.Materialize(spec)
	if err != nil {
		return nil, fmt.Errorf("materialize specification %s: %w", spec.ID, err)
	}

	entries := make([]*models.QueueEntry, 0, len(instances))
	for _, instance := range instances {
		entries = append(entries, models.NewQueueEntry(instance))
	}

	s.queue.AddPending(entries...)

	// Admit the whole batch: pending -> active in materialization order
	batch := make([]*models.QueueEntry, 0, len(entries))
	for range entries {
		entry, ok := s.queue.GetPending()
		if !ok {
			break
		}
		s.queue.AddActive(entry)
		batch = append(batch, entry)
	}

	s.logger.Info().
		Str("automation_id", spec.ID).
		Int("instances", len(batch)).
		Msg("Executing automation batch")

	results, failures := s.driver.Run(ctx, batch)

	for _, failure := range failures {
		s.queue.AddError(failure.Entry)
	}
	for _, entry := range batch {
		s.queue.RemoveActive(entry.GroupID(), entry.InstanceID())
	}

	return response.Reduce(results), nil
}

// Queue exposes the underlying queue manager for pause/resume/reset
func (s *Service) Queue() *queue.Manager {
	return s.queue
}
