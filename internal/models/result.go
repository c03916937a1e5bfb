// -----------------------------------------------------------------------
// Instance Result - Per-instance outcome and grouped aggregation
// -----------------------------------------------------------------------

package models

import "time"

// PerformancePoint captures timing metrics for one instance, or the reduced
// metrics of a whole group. When reduced: Start is the minimum of instance
// starts, End the maximum of instance ends, every other metric the
// arithmetic mean across the group.
type PerformancePoint struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	AuthTime               time.Duration `json:"auth_time"`
	RunTime                time.Duration `json:"run_time"`
	SetupTime              time.Duration `json:"setup_time"`
	TeardownTime           time.Duration `json:"teardown_time"`
	SetupDelegationTime    time.Duration `json:"setup_delegation_time"`
	TeardownDelegationTime time.Duration `json:"teardown_delegation_time"`

	Timeouts float64 `json:"timeouts"`
}

// InstanceResult is the raw outcome of one instance invocation, produced by
// the invoker and stamped with queue metadata by the invocation driver.
type InstanceResult struct {
	InstanceID string `json:"instance_id"`
	GroupID    string `json:"group_id"`
	Iteration  int    `json:"iteration"`

	// Sessions maps session key to the session record produced by the
	// rule engine for that session.
	Sessions map[string]interface{} `json:"sessions"`

	Performance PerformancePoint `json:"performance"`

	// QueueTime is the time the instance spent queued before execution
	QueueTime time.Duration `json:"queue_time"`

	Error string `json:"error,omitempty"`
}

// AggregatedResponse is the reduced response for one instance group: a
// merged session map and one performance point.
type AggregatedResponse struct {
	GroupID     string                 `json:"group_id"`
	Instances   int                    `json:"instances"`
	Sessions    map[string]interface{} `json:"sessions"`
	Performance PerformancePoint       `json:"performance"`
}
