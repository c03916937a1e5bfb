// -----------------------------------------------------------------------
// Queue Manager - Pending/active/error collections with lifecycle events
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
)

// Manager owns the three queue collections: Pending (strict FIFO), Active
// (keyed by group then instance) and Errors (append-only side log). The
// collections are the only cross-instance shared mutable state in the core
// and are safe for concurrent producers and consumers.
//
// Active is stored as a flat map under a composite "group/instance" key
// with a per-group index, which avoids nested-lock ordering hazards while
// preserving the invariant that no group key persists with zero members.
type Manager struct {
	pendingMu sync.Mutex
	pending   []*models.QueueEntry

	activeMu sync.RWMutex
	active   map[string]*models.QueueEntry // composite key: groupID + "/" + instanceID
	groups   map[string]map[string]struct{}

	errorsMu sync.Mutex
	errors   []*models.AutomationStatus

	paused atomic.Bool

	events interfaces.EventService
	logger arbor.ILogger
}

// NewManager creates a queue manager
func NewManager(events interfaces.EventService, logger arbor.ILogger) *Manager {
	return &Manager{
		pending: make([]*models.QueueEntry, 0),
		active:  make(map[string]*models.QueueEntry),
		groups:  make(map[string]map[string]struct{}),
		events:  events,
		logger:  logger,
	}
}

func activeKey(groupID, instanceID string) string {
	return groupID + "/" + instanceID
}

// AddPending appends entries to the pending FIFO. While paused the call is
// silently dropped and no events fire; callers needing guaranteed delivery
// retry after Resume.
func (m *Manager) AddPending(entries ...*models.QueueEntry) {
	if m.paused.Load() {
		return
	}

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		m.publish(interfaces.EventAutomationEnqueuing, entry)

		m.pendingMu.Lock()
		m.pending = append(m.pending, entry)
		m.pendingMu.Unlock()

		m.publish(interfaces.EventAutomationEnqueued, entry)

		m.logger.Debug().
			Str("group_id", entry.GroupID()).
			Str("instance_id", entry.InstanceID()).
			Int("iteration", entry.Instance.Iteration).
			Msg("Instance enqueued as pending")
	}
}

// GetPending pops the head of the pending FIFO. It never blocks: an empty
// queue simply returns not-ok. A pop that surfaces a nil entry (a concurrent
// drain corrupted the slot) is routed to AddError and also returns not-ok.
func (m *Manager) GetPending() (*models.QueueEntry, bool) {
	m.pendingMu.Lock()
	if len(m.pending) == 0 {
		m.pendingMu.Unlock()
		return nil, false
	}
	entry := m.pending[0]
	m.pending[0] = nil
	m.pending = m.pending[1:]
	m.pendingMu.Unlock()

	if entry == nil {
		m.AddError(nil)
		return nil, false
	}

	m.publish(interfaces.EventAutomationDequeued, entry)
	return entry, true
}

// PendingCount returns the number of pending entries
func (m *Manager) PendingCount() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// AddActive inserts entries into the active set under (group, instance) and
// marks each entry's status Processing. Silently dropped while paused.
func (m *Manager) AddActive(entries ...*models.QueueEntry) {
	if m.paused.Load() {
		return
	}

	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		groupID := entry.GroupID()
		instanceID := entry.InstanceID()

		m.active[activeKey(groupID, instanceID)] = entry
		if m.groups[groupID] == nil {
			m.groups[groupID] = make(map[string]struct{})
		}
		m.groups[groupID][instanceID] = struct{}{}

		entry.Status.Status = models.StatusProcessing
	}
}

// GetActive reads one active entry by group and instance id
func (m *Manager) GetActive(groupID, instanceID string) (*models.QueueEntry, bool) {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	entry, ok := m.active[activeKey(groupID, instanceID)]
	return entry, ok
}

// GetActiveGroup returns all active entries for one group
func (m *Manager) GetActiveGroup(groupID string) []*models.QueueEntry {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()

	members := m.groups[groupID]
	entries := make([]*models.QueueEntry, 0, len(members))
	for instanceID := range members {
		if entry, ok := m.active[activeKey(groupID, instanceID)]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// UpdateActive replaces an active entry with compare-and-swap semantics:
// the entry must still be present under (group, instance). Returns false if
// it was removed or never existed; never throws.
func (m *Manager) UpdateActive(groupID, instanceID string, entry *models.QueueEntry) bool {
	if entry == nil {
		return false
	}

	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	key := activeKey(groupID, instanceID)
	if _, ok := m.active[key]; !ok {
		return false
	}
	m.active[key] = entry
	return true
}

// RemoveActive removes an entry from the active set, clearing the group
// index entry when it was the group's last member.
func (m *Manager) RemoveActive(groupID, instanceID string) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	key := activeKey(groupID, instanceID)
	if _, ok := m.active[key]; !ok {
		return false
	}
	delete(m.active, key)

	if members, ok := m.groups[groupID]; ok {
		delete(members, instanceID)
		if len(members) == 0 {
			delete(m.groups, groupID)
		}
	}
	return true
}

// ActiveCount returns the number of active entries across all groups
func (m *Manager) ActiveCount() int {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return len(m.active)
}

// ActiveGroupCount returns the number of groups with at least one member
func (m *Manager) ActiveGroupCount() int {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return len(m.groups)
}

// AddError marks the entry's status Error, raises the error event and
// appends the status to the Errors collection. Error reporting must not
// itself crash the scheduler: internal failures are caught and logged, and
// a nil entry records a placeholder status.
func (m *Manager) AddError(entry *models.QueueEntry) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic while recording queue error")
		}
	}()

	var errStatus *models.AutomationStatus
	if entry != nil && entry.Status != nil {
		entry.Status.Status = models.StatusError
		errStatus = entry.Status
	} else {
		errStatus = &models.AutomationStatus{Status: models.StatusError}
	}

	m.errorsMu.Lock()
	m.errors = append(m.errors, errStatus)
	m.errorsMu.Unlock()

	m.publish(interfaces.EventAutomationError, errStatus)

	m.logger.Warn().
		Str("group_id", errStatus.GroupID).
		Str("instance_id", errStatus.InstanceID).
		Msg("Instance routed to error collection")
}

// Errors returns a snapshot of the error log
func (m *Manager) Errors() []*models.AutomationStatus {
	m.errorsMu.Lock()
	defer m.errorsMu.Unlock()
	snapshot := make([]*models.AutomationStatus, len(m.errors))
	copy(snapshot, m.errors)
	return snapshot
}

// Pause stops AddPending/AddActive from accepting entries
func (m *Manager) Pause() {
	m.paused.Store(true)
	m.logger.Info().Msg("Queue paused")
}

// Resume re-enables AddPending/AddActive
func (m *Manager) Resume() {
	m.paused.Store(false)
	m.logger.Info().Msg("Queue resumed")
}

// IsPaused reports whether the queue is paused
func (m *Manager) IsPaused() bool {
	return m.paused.Load()
}

// Reset clears all three collections. Reset racing a concurrent Add is
// undefined; callers pause first when they need a clean drain.
func (m *Manager) Reset() {
	m.pendingMu.Lock()
	m.pending = m.pending[:0]
	m.pendingMu.Unlock()

	m.activeMu.Lock()
	m.active = make(map[string]*models.QueueEntry)
	m.groups = make(map[string]map[string]struct{})
	m.activeMu.Unlock()

	m.errorsMu.Lock()
	m.errors = m.errors[:0]
	m.errorsMu.Unlock()

	m.logger.Info().Msg("Queue reset")
}

func (m *Manager) publish(eventType interfaces.EventType, payload interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(context.Background(), interfaces.Event{
		Type:    eventType,
		Payload: payload,
	}); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish queue event")
	}
}
