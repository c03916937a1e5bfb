// -----------------------------------------------------------------------
// Dry-Run Invoker - Walks the automation tree without executing plugins
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"time"

	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
)

// DryRunInvoker implements the invoker contract without a rule engine: it
// walks the instance's stage -> job -> rule tree in order, raising the
// full lifecycle event stream and recording one session per job. Useful
// for validating specifications and exercising the progress plumbing
// before wiring a real rule engine.
type DryRunInvoker struct {
	instance *models.RunInstance
	handlers []interfaces.LifecycleHandler

	// RuleDelay adds an artificial pause per rule, for exercising
	// cancellation and parallelism in tests
	RuleDelay time.Duration
}

// NewDryRunInvoker creates a dry-run invoker for one instance
func NewDryRunInvoker(instance *models.RunInstance) *DryRunInvoker {
	return &DryRunInvoker{instance: instance}
}

// Subscribe registers a lifecycle handler. Must be called before Invoke.
func (d *DryRunInvoker) Subscribe(handler interfaces.LifecycleHandler) {
	if handler != nil {
		d.handlers = append(d.handlers, handler)
	}
}

func (d *DryRunInvoker) emit(ev interfaces.LifecycleEvent) {
	ev.InstanceID = d.instance.ID
	ev.Iteration = d.instance.Iteration
	ev.Timestamp = time.Now()
	for _, handler := range d.handlers {
		handler(ev)
	}
}

// Invoke walks the tree to completion, observing the context at rule
// granularity: once cancelled, no further rule work is admitted.
func (d *DryRunInvoker) Invoke(ctx context.Context) (*models.InstanceResult, error) {
	spec := d.instance.Specification
	start := time.Now()

	d.emit(interfaces.LifecycleEvent{Type: interfaces.AutomationInvoking})

	sessions := make(map[string]interface{})

	for _, stage := range spec.Stages {
		d.emit(interfaces.LifecycleEvent{Type: interfaces.StageInvoking, StageID: stage.ID})

		for _, job := range stage.Jobs {
			d.emit(interfaces.LifecycleEvent{Type: interfaces.JobInvoking, StageID: stage.ID, JobID: job.ID})

			if err := d.walkRules(ctx, stage.ID, job.ID, job.Rules); err != nil {
				return nil, err
			}

			sessions[job.ID] = map[string]interface{}{
				"stage_id":  stage.ID,
				"job_id":    job.ID,
				"iteration": d.instance.Iteration,
				"rules":     models.RulesCount(job.Rules),
			}

			d.emit(interfaces.LifecycleEvent{Type: interfaces.JobInvoked, StageID: stage.ID, JobID: job.ID})
		}

		d.emit(interfaces.LifecycleEvent{Type: interfaces.StageInvoked, StageID: stage.ID})
	}

	d.emit(interfaces.LifecycleEvent{Type: interfaces.AutomationInvoked})

	end := time.Now()
	return &models.InstanceResult{
		Sessions: sessions,
		Performance: models.PerformancePoint{
			Start:   start,
			End:     end,
			RunTime: end.Sub(start),
		},
	}, nil
}

func (d *DryRunInvoker) walkRules(ctx context.Context, stageID, jobID string, rules []models.Rule) error {
	for _, rule := range rules {
		// Cooperative cancellation point: no new rule work once cancelled
		if err := ctx.Err(); err != nil {
			return err
		}

		d.emit(interfaces.LifecycleEvent{Type: interfaces.RuleInvoking, StageID: stageID, JobID: jobID, RuleID: rule.ID})

		if len(rule.Rules) > 0 {
			if err := d.walkRules(ctx, stageID, jobID, rule.Rules); err != nil {
				return err
			}
		} else if d.RuleDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.RuleDelay):
			}
		}

		d.emit(interfaces.LifecycleEvent{Type: interfaces.RuleInvoked, StageID: stageID, JobID: jobID, RuleID: rule.ID})
	}
	return nil
}

// DryRunFactory constructs dry-run invokers
type DryRunFactory struct {
	// RuleDelay is applied to every constructed invoker
	RuleDelay time.Duration
}

// NewDryRunFactory creates a factory for dry-run invokers
func NewDryRunFactory() *DryRunFactory {
	return &DryRunFactory{}
}

// NewInvoker implements interfaces.InvokerFactory
func (f *DryRunFactory) NewInvoker(instance *models.RunInstance) (interfaces.Invoker, error) {
	invoker := NewDryRunInvoker(instance)
	invoker.RuleDelay = f.RuleDelay
	return invoker, nil
}
