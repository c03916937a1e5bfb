// -----------------------------------------------------------------------
// Instance Materializer - Fans one specification out into run instances
// -----------------------------------------------------------------------

package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/curro/internal/common"
	"github.com/ternarybob/curro/internal/models"
)

// ErrUnsupportedProvider is returned for a data source type outside the
// supported set. The check runs before any instance is materialized, so a
// partial fan-out is never produced.
var ErrUnsupportedProvider = errors.New("unsupported data source provider")

// Materializer expands one specification (plus optional tabular data
// source) into independent run instances. Each instance owns a deep copy
// of the specification, a fresh status identity, and one bound data row.
type Materializer struct {
	logger arbor.ILogger
}

// NewMaterializer creates a materializer
func NewMaterializer(logger arbor.ILogger) *Materializer {
	return &Materializer{logger: logger}
}

// Materialize produces the ordered instance sequence for a specification.
// Without a data source (or with an empty one) the result is exactly one
// instance at iteration 0 - a specification always produces at least one
// run. With a data source, one instance per surviving row, all sharing a
// newly generated group id and carrying 0-based iteration indices.
func (m *Materializer) Materialize(spec *models.RunSpecification) ([]*models.RunInstance, error) {
	groupID := common.NewGroupID()

	rows, err := m.resolveRows(spec)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		instance := m.newInstance(spec, groupID, 0, nil)
		m.logger.Debug().
			Str("automation_id", spec.ID).
			Str("group_id", groupID).
			Msg("Materialized single instance (no data source)")
		return []*models.RunInstance{instance}, nil
	}

	instances := make([]*models.RunInstance, 0, len(rows))
	for iteration, row := range rows {
		instances = append(instances, m.newInstance(spec, groupID, iteration, row))
	}

	m.logger.Info().
		Str("automation_id", spec.ID).
		Str("group_id", groupID).
		Int("instances", len(instances)).
		Msg("Materialized data-driven instances")
	return instances, nil
}

// resolveRows parses and filters the data source rows. A nil data source
// or empty payload resolves to no rows.
func (m *Materializer) resolveRows(spec *models.RunSpecification) ([]models.DataRow, error) {
	source := spec.DataSource
	if source == nil || source.Payload == "" {
		return nil, nil
	}

	if !models.IsValidProvider(source.Provider) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, source.Provider)
	}

	var rows []models.DataRow
	switch source.Provider {
	case models.ProviderJSON:
		if err := json.Unmarshal([]byte(source.Payload), &rows); err != nil {
			return nil, fmt.Errorf("parse json data source: %w", err)
		}
	case models.ProviderYAML:
		if err := yaml.Unmarshal([]byte(source.Payload), &rows); err != nil {
			return nil, fmt.Errorf("parse yaml data source: %w", err)
		}
	}

	if source.Filter == "" {
		return rows, nil
	}

	program, err := expr.Compile(source.Filter, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile row filter %q: %w", source.Filter, err)
	}

	filtered := make([]models.DataRow, 0, len(rows))
	for i, row := range rows {
		keep, err := m.evaluateFilter(program, row)
		if err != nil {
			return nil, fmt.Errorf("evaluate row filter on row %d: %w", i, err)
		}
		if keep {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (m *Materializer) evaluateFilter(program *vm.Program, row models.DataRow) (bool, error) {
	result, err := expr.Run(program, map[string]interface{}(row))
	if err != nil {
		return false, err
	}
	keep, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("row filter returned %T, want bool", result)
	}
	return keep, nil
}

// newInstance deep-clones the specification, binds the row into the
// clone's runtime context under "columns", and propagates the iteration
// index into every rule so repeated rules across iterations stay
// distinguishable downstream.
func (m *Materializer) newInstance(spec *models.RunSpecification, groupID string, iteration int, row models.DataRow) *models.RunInstance {
	clone := CloneSpecification(spec)

	if row != nil {
		if clone.Context == nil {
			clone.Context = make(map[string]interface{})
		}
		clone.Context["columns"] = cloneValueMap(row)
	}

	for i := range clone.Stages {
		for j := range clone.Stages[i].Jobs {
			models.WalkRules(clone.Stages[i].Jobs[j].Rules, func(rule *models.Rule) {
				rule.Iteration = iteration
			})
		}
	}

	return &models.RunInstance{
		ID:            common.NewInstanceID(),
		GroupID:       groupID,
		Iteration:     iteration,
		Specification: clone,
		Row:           row,
		CreatedAt:     time.Now(),
	}
}
