// -----------------------------------------------------------------------
// Template Storage - Persisted run specification templates
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/curro/internal/automation"
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
)

// TemplateStorage implements interfaces.TemplateStorage on badgerhold.
// Admission validation, including the circular-rule check, runs on save so
// an invalid template never reaches the store.
type TemplateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTemplateStorage creates a new TemplateStorage instance
func NewTemplateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &TemplateStorage{
		db:     db,
		logger: logger,
	}
}

// SaveTemplate validates and upserts a specification template
func (s *TemplateStorage) SaveTemplate(ctx context.Context, spec *models.RunSpecification) error {
	if err := automation.ValidateSpecification(spec); err != nil {
		return fmt.Errorf("template rejected: %w", err)
	}

	now := time.Now()
	spec.UpdatedAt = now

	var existing models.RunSpecification
	err := s.db.Store().Get(spec.ID, &existing)
	if err == badgerhold.ErrNotFound {
		spec.CreatedAt = now
	} else if err == nil {
		spec.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(spec.ID, spec); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	s.logger.Debug().Str("automation_id", spec.ID).Msg("Template saved")
	return nil
}

// GetTemplate retrieves a template by id
func (s *TemplateStorage) GetTemplate(ctx context.Context, id string) (*models.RunSpecification, error) {
	var spec models.RunSpecification
	err := s.db.Store().Get(id, &spec)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &spec, nil
}

// ListTemplates returns all stored templates
func (s *TemplateStorage) ListTemplates(ctx context.Context) ([]*models.RunSpecification, error) {
	var specs []*models.RunSpecification
	if err := s.db.Store().Find(&specs, nil); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return specs, nil
}

// DeleteTemplate removes a template by id
func (s *TemplateStorage) DeleteTemplate(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.RunSpecification{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrTemplateNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	s.logger.Debug().Str("automation_id", id).Msg("Template deleted")
	return nil
}
