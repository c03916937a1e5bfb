package automation

import "github.com/ternarybob/curro/internal/models"

// CloneSpecification returns a structural deep copy of a specification.
// Fan-out must never share mutable state between instances, so every map,
// slice and nested rule is copied explicitly rather than round-tripped
// through a serialization format.
func CloneSpecification(spec *models.RunSpecification) *models.RunSpecification {
	if spec == nil {
		return nil
	}

	clone := *spec
	clone.Context = cloneValueMap(spec.Context)

	if spec.DataSource != nil {
		ds := *spec.DataSource
		clone.DataSource = &ds
	}

	clone.Stages = make([]models.Stage, len(spec.Stages))
	for i, stage := range spec.Stages {
		clone.Stages[i] = cloneStage(stage)
	}
	return &clone
}

func cloneStage(stage models.Stage) models.Stage {
	clone := stage
	clone.Jobs = make([]models.AutomationJob, len(stage.Jobs))
	for i, job := range stage.Jobs {
		clone.Jobs[i] = cloneJob(job)
	}
	return clone
}

func cloneJob(job models.AutomationJob) models.AutomationJob {
	clone := job
	clone.Rules = cloneRules(job.Rules)
	return clone
}

func cloneRules(rules []models.Rule) []models.Rule {
	if rules == nil {
		return nil
	}
	clones := make([]models.Rule, len(rules))
	for i, rule := range rules {
		clone := rule
		clone.Aliases = append([]string(nil), rule.Aliases...)
		clone.Arguments = cloneValueMap(rule.Arguments)
		clone.Rules = cloneRules(rule.Rules)
		clones[i] = clone
	}
	return clones
}

// cloneValueMap deep-copies a configuration map, descending into nested
// maps and slices. Scalar values are shared, which is safe because they
// are immutable.
func cloneValueMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneValueMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
