// -----------------------------------------------------------------------
// Run Instance - One materialized, fully-bound execution of a specification
// -----------------------------------------------------------------------

package models

import "time"

// RunInstance is one concrete execution unit produced by fan-out. It owns a
// deep copy of the specification and is immutable once created, apart from
// the iteration-scoped context the materializer injects into rule arguments.
//
// All instances fanned out from the same specification share a GroupID and
// carry 0-based iteration indices in materialization order.
type RunInstance struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	Iteration int    `json:"iteration"`

	Specification *RunSpecification `json:"specification"`

	// Row is the data row this instance was created for, nil when the
	// specification has no data source.
	Row DataRow `json:"row,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
