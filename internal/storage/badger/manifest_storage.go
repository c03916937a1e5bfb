package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/curro/internal/interfaces"
)

// manifestKey composes the cache key from document key and type
func manifestKey(key, docType string) string {
	return docType + ":" + key
}

// ManifestStorage implements interfaces.ManifestProvider on badgerhold.
// It is a cache: lookups resolve stored manifests, and a refresher hook
// (when configured) repopulates the cache from external repositories.
type ManifestStorage struct {
	db        *BadgerDB
	logger    arbor.ILogger
	refresher func(ctx context.Context) ([]*interfaces.ManifestDocument, error)
}

// NewManifestStorage creates a manifest cache. The refresher is optional;
// without one, Refresh is a no-op.
func NewManifestStorage(db *BadgerDB, logger arbor.ILogger, refresher func(ctx context.Context) ([]*interfaces.ManifestDocument, error)) interfaces.ManifestProvider {
	return &ManifestStorage{
		db:        db,
		logger:    logger,
		refresher: refresher,
	}
}

// GetManifest resolves a manifest by key and type
func (s *ManifestStorage) GetManifest(ctx context.Context, key, docType string) (*interfaces.ManifestDocument, error) {
	var doc interfaces.ManifestDocument
	err := s.db.Store().Get(manifestKey(key, docType), &doc)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("manifest %s/%s not found", docType, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	return &doc, nil
}

// SaveManifest upserts a manifest document
func (s *ManifestStorage) SaveManifest(ctx context.Context, doc *interfaces.ManifestDocument) error {
	doc.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(manifestKey(doc.Key, doc.Type), doc); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// Refresh repopulates the cache from the configured refresher
func (s *ManifestStorage) Refresh(ctx context.Context) error {
	if s.refresher == nil {
		return nil
	}

	docs, err := s.refresher(ctx)
	if err != nil {
		return fmt.Errorf("manifest refresh failed: %w", err)
	}

	for _, doc := range docs {
		if err := s.SaveManifest(ctx, doc); err != nil {
			return err
		}
	}

	s.logger.Info().Int("manifests", len(docs)).Msg("Manifest cache refreshed")
	return nil
}
