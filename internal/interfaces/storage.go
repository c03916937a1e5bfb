package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/curro/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// ErrTemplateNotFound is returned when a specification template is not found
var ErrTemplateNotFound = errors.New("template not found")

// KeyValuePair represents a single environment parameter with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage defines operations for environment parameter storage
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if missing
	Get(ctx context.Context, key string) (string, error)

	// GetPair retrieves a full KeyValuePair by key
	GetPair(ctx context.Context, key string) (*KeyValuePair, error)

	// Set inserts or updates a key/value pair with optional description
	Set(ctx context.Context, key string, value string, description string) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if missing
	Delete(ctx context.Context, key string) error

	// GetAll returns all key/value pairs as a map
	GetAll(ctx context.Context) (map[string]string, error)
}

// TemplateStorage persists run specification templates. Admission
// validation (including the circular-rule check) runs before a template is
// accepted, never at run time.
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, spec *models.RunSpecification) error
	GetTemplate(ctx context.Context, id string) (*models.RunSpecification, error)
	ListTemplates(ctx context.Context) ([]*models.RunSpecification, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// ManifestDocument is a cached plugin manifest resolved by key and type
type ManifestDocument struct {
	Key       string                 `json:"key"`
	Type      string                 `json:"type"`
	Aliases   []string               `json:"aliases,omitempty"`
	Content   map[string]interface{} `json:"content"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ManifestProvider resolves plugin manifests, optionally refreshing from
// external repositories. Used only to initialize a run instance before
// invocation, not during status tracking.
type ManifestProvider interface {
	GetManifest(ctx context.Context, key, docType string) (*ManifestDocument, error)
	SaveManifest(ctx context.Context, doc *ManifestDocument) error
	Refresh(ctx context.Context) error
}
