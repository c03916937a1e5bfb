// -----------------------------------------------------------------------
// Run Specification - Declarative stage -> job -> rule automation tree
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Rule is a single executable unit inside a job. Rules may nest sub-rules;
// the plugin referenced by Plugin is resolved through the manifest cache at
// invocation time, never here.
type Rule struct {
	ID          string                 `json:"id" validate:"required"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Plugin      string                 `json:"plugin" validate:"required"`
	ManifestKey string                 `json:"manifest_key,omitempty"`
	Aliases     []string               `json:"aliases,omitempty"`
	Arguments   map[string]interface{} `json:"arguments,omitempty"`

	// Iteration is assigned during fan-out so repeated rules across data rows
	// stay distinguishable in logs and status.
	Iteration int `json:"iteration"`

	Rules []Rule `json:"rules,omitempty" validate:"omitempty,dive"`
}

// AutomationJob is an ordered sequence of rules inside a stage
type AutomationJob struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rules       []Rule `json:"rules" validate:"min=1,dive"`
}

// Stage is an ordered sequence of jobs
type Stage struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Jobs        []AutomationJob `json:"jobs" validate:"min=1,dive"`
}

// RunSpecification is the user-authored automation tree. An optional data
// source fans the specification out into multiple run instances.
type RunSpecification struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`

	Stages []Stage `json:"stages" validate:"min=1,dive"`

	// DataSource, when present, parameterizes the run: one instance per row.
	DataSource *DataSource `json:"data_source,omitempty"`

	// Context carries runtime parameters addressable by rules. The
	// materializer binds the active data row here under "columns".
	Context map[string]interface{} `json:"context,omitempty"`

	// Schedule is an optional cron expression for unattended execution
	Schedule string `json:"schedule,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateSchedule checks the cron expression when one is set
func (s *RunSpecification) ValidateSchedule() error {
	if s.Schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(s.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.Schedule, err)
	}
	return nil
}

// RulesCount recursively counts leaf rules, including nested sub-rule trees.
// A rule with children contributes its descendants, not itself.
func RulesCount(rules []Rule) int {
	count := 0
	for _, rule := range rules {
		if len(rule.Rules) > 0 {
			count += RulesCount(rule.Rules)
			continue
		}
		count++
	}
	return count
}

// WalkRules visits every rule in the slice depth-first, including nested
// sub-rules. The visitor may mutate the rule in place.
func WalkRules(rules []Rule, visit func(rule *Rule)) {
	for i := range rules {
		visit(&rules[i])
		if len(rules[i].Rules) > 0 {
			WalkRules(rules[i].Rules, visit)
		}
	}
}
