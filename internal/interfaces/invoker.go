// -----------------------------------------------------------------------
// Invoker Interface - External rule execution engine consumed by the core
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/curro/internal/models"
)

// LifecycleEventType identifies one step of an invoker's ordered event stream
type LifecycleEventType string

const (
	AutomationInvoking LifecycleEventType = "automation_invoking"
	AutomationInvoked  LifecycleEventType = "automation_invoked"
	StageInvoking      LifecycleEventType = "stage_invoking"
	StageInvoked       LifecycleEventType = "stage_invoked"
	JobInvoking        LifecycleEventType = "job_invoking"
	JobInvoked         LifecycleEventType = "job_invoked"
	RuleInvoking       LifecycleEventType = "rule_invoking"
	RuleInvoked        LifecycleEventType = "rule_invoked"
	RuleError          LifecycleEventType = "rule_error"
	PluginCreated      LifecycleEventType = "plugin_created"
)

// LifecycleEvent is one typed event raised by an invoker while it walks the
// automation tree. Events for a single instance are totally ordered because
// they are raised from the invoker's own sequential execution.
type LifecycleEvent struct {
	Type       LifecycleEventType
	InstanceID string
	Iteration  int

	// Identity of the node the event refers to. StageID is set for stage
	// and deeper events, JobID for job and deeper, RuleID for rule events.
	StageID string
	JobID   string
	RuleID  string

	// Err carries the failure for RuleError events
	Err error

	Timestamp time.Time
}

// LifecycleHandler receives lifecycle events. Handlers run on the invoker's
// event-raising goroutine and must not block.
type LifecycleHandler func(event LifecycleEvent)

// Invoker executes one run instance. What a rule does when invoked (browser
// automation, assertions, ...) lives behind this interface and is out of
// scope for the core.
//
// Invoke must observe context cancellation at rule granularity: a cancelled
// context stops admission of further rule work, cooperatively.
type Invoker interface {
	// Invoke runs the instance to completion and returns its raw result
	Invoke(ctx context.Context) (*models.InstanceResult, error)

	// Subscribe registers a handler for the invoker's lifecycle events.
	// Must be called before Invoke.
	Subscribe(handler LifecycleHandler)
}

// InvokerFactory constructs an invoker for one run instance
type InvokerFactory interface {
	NewInvoker(instance *models.RunInstance) (Invoker, error)
}
