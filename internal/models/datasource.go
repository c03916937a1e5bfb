package models

// ProviderType identifies the format of a data source payload
type ProviderType string

// Supported data source providers
const (
	ProviderJSON ProviderType = "json"
	ProviderYAML ProviderType = "yaml"
)

// IsValidProvider checks if a provider type is one of the supported constants
func IsValidProvider(provider ProviderType) bool {
	switch provider {
	case ProviderJSON, ProviderYAML:
		return true
	default:
		return false
	}
}

// DataRow is one row of tabular data bound to a run instance. Column names
// are addressable by rules as columns.<Name>.
type DataRow map[string]interface{}

// DataSource describes the tabular payload a specification fans out over
type DataSource struct {
	Provider ProviderType `json:"provider"`
	Payload  string       `json:"payload"`
	// Filter is an optional row-filter expression. Rows for which the
	// expression evaluates false are skipped during fan-out.
	Filter string `json:"filter,omitempty"`
}
