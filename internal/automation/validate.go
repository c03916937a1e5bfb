package automation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/curro/internal/models"
)

// ErrCircularRule is returned when a rule's plugin name references its own
// manifest key or one of its declared aliases.
var ErrCircularRule = errors.New("circular rule reference")

var validate = validator.New()

// ValidateSpecification runs admission validation on a specification:
// struct-level constraints, the optional cron schedule, and the
// circular-rule check. Specifications are rejected here, at registration
// time, never at run time.
func ValidateSpecification(spec *models.RunSpecification) error {
	if spec == nil {
		return errors.New("specification is required")
	}

	if err := validate.Struct(spec); err != nil {
		return fmt.Errorf("specification validation failed: %w", err)
	}

	if err := spec.ValidateSchedule(); err != nil {
		return err
	}

	for _, stage := range spec.Stages {
		for _, job := range stage.Jobs {
			if err := checkRules(job.Rules); err != nil {
				return fmt.Errorf("stage %s job %s: %w", stage.ID, job.ID, err)
			}
		}
	}
	return nil
}

// checkRules rejects self-referential rule graphs: a rule's plugin must
// never equal its own manifest key or any of its aliases.
func checkRules(rules []models.Rule) error {
	for _, rule := range rules {
		if rule.Plugin != "" {
			if rule.ManifestKey != "" && strings.EqualFold(rule.Plugin, rule.ManifestKey) {
				return fmt.Errorf("%w: rule %s plugin %q matches its manifest key", ErrCircularRule, rule.ID, rule.Plugin)
			}
			for _, alias := range rule.Aliases {
				if strings.EqualFold(rule.Plugin, alias) {
					return fmt.Errorf("%w: rule %s plugin %q matches alias %q", ErrCircularRule, rule.ID, rule.Plugin, alias)
				}
			}
		}
		if len(rule.Rules) > 0 {
			if err := checkRules(rule.Rules); err != nil {
				return err
			}
		}
	}
	return nil
}
