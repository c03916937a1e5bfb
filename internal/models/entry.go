package models

import (
	"context"
	"time"
)

// QueueEntry wraps a run instance, its status tree, and a cancellation
// handle. An entry is a member of exactly one of {Pending, Active} at a
// time; the Errors collection is a side log, not exclusive.
type QueueEntry struct {
	Instance *RunInstance
	Status   *AutomationStatus

	// Cancel aborts the batch this entry is executing in. Set by the
	// invocation driver at admission; nil while pending.
	Cancel context.CancelFunc

	CreatedAt time.Time
}

// NewQueueEntry wraps an instance with a fresh status tree
func NewQueueEntry(instance *RunInstance) *QueueEntry {
	return &QueueEntry{
		Instance:  instance,
		Status:    NewAutomationStatus(instance),
		CreatedAt: time.Now(),
	}
}

// GroupID returns the instance's group identifier
func (e *QueueEntry) GroupID() string {
	if e.Instance == nil {
		return ""
	}
	return e.Instance.GroupID
}

// InstanceID returns the instance's unique identifier
func (e *QueueEntry) InstanceID() string {
	if e.Instance == nil {
		return ""
	}
	return e.Instance.ID
}

// QueueTime returns how long the entry has been queued
func (e *QueueEntry) QueueTime() time.Duration {
	return time.Since(e.CreatedAt)
}
