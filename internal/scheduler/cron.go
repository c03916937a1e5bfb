// -----------------------------------------------------------------------
// Cron Runner - Unattended execution of scheduled specifications
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/curro/internal/models"
)

// CronRunner enqueues and runs specifications on their cron schedules.
// Specifications without a Schedule are rejected at registration.
type CronRunner struct {
	scheduler *Scheduler
	cron      *cron.Cron
	logger    arbor.ILogger

	mu      sync.Mutex
	entries map[string]cron.EntryID // specification id -> cron entry
	running bool
}

// NewCronRunner creates a cron runner driving the given scheduler
func NewCronRunner(scheduler *Scheduler, logger arbor.ILogger) *CronRunner {
	return &CronRunner{
		scheduler: scheduler,
		cron:      cron.New(),
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
	}
}

// Register schedules a specification for unattended runs. Re-registering
// the same specification id replaces the previous schedule.
func (r *CronRunner) Register(spec *models.RunSpecification) error {
	if spec.Schedule == "" {
		return fmt.Errorf("specification %s has no schedule", spec.ID)
	}
	if err := spec.ValidateSchedule(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[spec.ID]; ok {
		r.cron.Remove(existing)
	}

	entryID, err := r.cron.AddFunc(spec.Schedule, func() {
		r.runScheduled(spec)
	})
	if err != nil {
		return fmt.Errorf("schedule specification %s: %w", spec.ID, err)
	}
	r.entries[spec.ID] = entryID

	r.logger.Info().
		Str("automation_id", spec.ID).
		Str("schedule", spec.Schedule).
		Msg("Scheduled automation registered")
	return nil
}

// Unregister removes a specification's schedule
func (r *CronRunner) Unregister(specID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, ok := r.entries[specID]; ok {
		r.cron.Remove(entryID)
		delete(r.entries, specID)
	}
}

func (r *CronRunner) runScheduled(spec *models.RunSpecification) {
	if _, err := r.scheduler.AddPendingAutomation(spec); err != nil {
		r.logger.Error().
			Err(err).
			Str("automation_id", spec.ID).
			Msg("Scheduled automation failed to enqueue")
		return
	}

	if _, err := r.scheduler.StartAsync(context.Background()); err != nil {
		r.logger.Error().
			Err(err).
			Str("automation_id", spec.ID).
			Msg("Scheduled automation cycle failed")
	}
}

// Start begins firing registered schedules
func (r *CronRunner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.cron.Start()
	r.running = true
	r.logger.Info().Int("registered", len(r.entries)).Msg("Cron runner started")
}

// Stop halts the cron scheduler and waits for in-flight runs
func (r *CronRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Info().Msg("Cron runner stopped")
}
