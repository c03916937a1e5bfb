// -----------------------------------------------------------------------
// Status Reducer - Applies invoker lifecycle events to a status tree
// -----------------------------------------------------------------------

package status

import (
	"github.com/ternarybob/curro/internal/interfaces"
	"github.com/ternarybob/curro/internal/models"
)

// Apply folds one lifecycle event into the status tree. It is the only
// writer of status state: the invocation driver feeds it the invoker's
// sequential event stream, so updates for a single instance are totally
// ordered (automation -> stage -> job -> rule, each invoking before its
// invoked).
//
// State machine per level: New -> Processing -> {Complete | Error}.
// Completed counts never exceed totals even if completion events repeat;
// pending counts never go below zero. Events naming unknown ids are ignored.
func Apply(tree *models.AutomationStatus, ev interfaces.LifecycleEvent) {
	if tree == nil {
		return
	}

	switch ev.Type {
	case interfaces.AutomationInvoking:
		tree.Status = models.StatusProcessing
		if tree.StartedAt == nil {
			ts := ev.Timestamp
			tree.StartedAt = &ts
		}

	case interfaces.AutomationInvoked:
		tree.Status = models.StatusComplete
		ts := ev.Timestamp
		tree.CompletedAt = &ts
		tree.Recompute()

	case interfaces.StageInvoking:
		stage := tree.Stages[ev.StageID]
		if stage == nil {
			return
		}
		stage.Status = models.StatusProcessing
		tree.MarkChildInvoking()

	case interfaces.StageInvoked:
		stage := tree.Stages[ev.StageID]
		if stage == nil {
			return
		}
		stage.Status = models.StatusComplete
		tree.MarkChildCompleted()

	case interfaces.JobInvoking:
		stage, job := findJob(tree, ev)
		if job == nil {
			return
		}
		job.Status = models.StatusProcessing
		stage.MarkChildInvoking()

	case interfaces.JobInvoked:
		stage, job := findJob(tree, ev)
		if job == nil {
			return
		}
		job.Status = models.StatusComplete
		stage.MarkChildCompleted()

	case interfaces.RuleInvoking:
		applyRule(tree, ev, func(rule *models.RuleStatus, counts []*models.StatusCounts) {
			rule.Status = models.StatusProcessing
			for _, c := range counts {
				c.MarkChildInvoking()
			}
		})

	case interfaces.RuleInvoked:
		applyRule(tree, ev, func(rule *models.RuleStatus, counts []*models.StatusCounts) {
			rule.Status = models.StatusComplete
			for _, c := range counts {
				c.MarkChildCompleted()
			}
		})

	case interfaces.RuleError:
		// A failed rule still retires its pending slot so the owning
		// counts stay consistent with the number of rules that ran.
		applyRule(tree, ev, func(rule *models.RuleStatus, counts []*models.StatusCounts) {
			rule.Status = models.StatusError
			for _, c := range counts {
				c.MarkChildCompleted()
			}
		})

	case interfaces.PluginCreated:
		// Plugin creation carries no status transition
	}
}

// applyRule locates the rule named by the event and invokes fn with the
// rule plus the counts it contributes to. Job and ancestor-rule totals are
// seeded from leaf-rule counts, so only leaf rules update counts; a
// container rule's completion is tracked through its own children.
func applyRule(tree *models.AutomationStatus, ev interfaces.LifecycleEvent, fn func(rule *models.RuleStatus, counts []*models.StatusCounts)) {
	job := resolveJob(tree, ev)
	if job == nil {
		return
	}

	rule, ancestors := findRulePath(job.Rules, ev.RuleID, nil)
	if rule == nil {
		return
	}

	var counts []*models.StatusCounts
	if len(rule.Rules) == 0 { // leaf rule
		counts = append(counts, &job.StatusCounts)
		for _, ancestor := range ancestors {
			counts = append(counts, &ancestor.StatusCounts)
		}
	}

	fn(rule, counts)
}

func resolveJob(tree *models.AutomationStatus, ev interfaces.LifecycleEvent) *models.JobStatus {
	if ev.JobID != "" {
		_, job := findJob(tree, ev)
		return job
	}
	for _, stage := range tree.Stages {
		for _, job := range stage.Jobs {
			if rule, _ := findRulePath(job.Rules, ev.RuleID, nil); rule != nil {
				return job
			}
		}
	}
	return nil
}

// findJob resolves a job status and its owning stage. When the event omits
// the stage id the tree is searched.
func findJob(tree *models.AutomationStatus, ev interfaces.LifecycleEvent) (*models.StageStatus, *models.JobStatus) {
	if ev.StageID != "" {
		stage := tree.Stages[ev.StageID]
		if stage == nil {
			return nil, nil
		}
		return stage, stage.Jobs[ev.JobID]
	}
	for _, stage := range tree.Stages {
		if job, ok := stage.Jobs[ev.JobID]; ok {
			return stage, job
		}
	}
	return nil, nil
}

// findRulePath locates a rule status and returns it together with its
// ancestor rules, innermost last.
func findRulePath(rules map[string]*models.RuleStatus, ruleID string, path []*models.RuleStatus) (*models.RuleStatus, []*models.RuleStatus) {
	if rule, ok := rules[ruleID]; ok {
		return rule, path
	}
	for _, rule := range rules {
		if rule.Rules == nil {
			continue
		}
		if found, foundPath := findRulePath(rule.Rules, ruleID, append(path, rule)); found != nil {
			return found, foundPath
		}
	}
	return nil, nil
}
