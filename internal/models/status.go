// -----------------------------------------------------------------------
// Status Tree - Hierarchical progress state for one run instance
// -----------------------------------------------------------------------

package models

import "time"

// StatusCode is the closed set of states a status node can occupy
type StatusCode string

const (
	StatusNew        StatusCode = "new"
	StatusProcessing StatusCode = "processing"
	StatusComplete   StatusCode = "complete"
	StatusError      StatusCode = "error"
)

// StatusCounts tracks child completion at one level of the tree.
// Completed is monotonically non-decreasing and clamped to Total even when
// completion events fire more than once; Pending is floored at zero.
type StatusCounts struct {
	Pending   int     `json:"pending"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`
}

// MarkChildInvoking decrements the pending counter, floored at zero
func (c *StatusCounts) MarkChildInvoking() {
	if c.Pending > 0 {
		c.Pending--
	}
}

// MarkChildCompleted increments the completed counter, ceilinged at total,
// and recomputes progress.
func (c *StatusCounts) MarkChildCompleted() {
	if c.Completed < c.Total {
		c.Completed++
	}
	c.Recompute()
}

// Recompute derives the progress percentage. Progress stays at zero until
// the first completion so an untouched node never renders a spurious 0/0.
func (c *StatusCounts) Recompute() {
	if c.Completed == 0 || c.Total == 0 {
		c.Progress = 0
		return
	}
	c.Progress = float64(c.Completed) / float64(c.Total) * 100
}

// RuleStatus tracks one rule, including nested sub-rules
type RuleStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      StatusCode `json:"status"`
	StatusCounts

	Rules map[string]*RuleStatus `json:"rules,omitempty"`
}

// JobStatus tracks one job and its rules
type JobStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      StatusCode `json:"status"`
	StatusCounts

	Rules map[string]*RuleStatus `json:"rules"`
}

// StageStatus tracks one stage and its jobs
type StageStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      StatusCode `json:"status"`
	StatusCounts

	Jobs map[string]*JobStatus `json:"jobs"`
}

// AutomationStatus is the root of the status tree for one run instance.
/// It is exclusively owned by the instance that created it: the invocation
// driver is the only writer, observers only read.
type AutomationStatus struct {
	InstanceID string `json:"instance_id"`
	GroupID    string `json:"group_id"`
	Iteration  int    `json:"iteration"`

	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      StatusCode `json:"status"`
	StatusCounts

	Stages map[string]*StageStatus `json:"stages"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewAutomationStatus builds a fresh status tree for an instance, with every
// node in the New state and pending/total counts seeded from the
// specification tree. A job's rule total reflects all descendants of nested
// rule trees, not just direct children.
func NewAutomationStatus(instance *RunInstance) *AutomationStatus {
	spec := instance.Specification

	status := &AutomationStatus{
		InstanceID:  instance.ID,
		GroupID:     instance.GroupID,
		Iteration:   instance.Iteration,
		ID:          spec.ID,
		Name:        spec.Name,
		Description: spec.Description,
		Status:      StatusNew,
		StatusCounts: StatusCounts{
			Pending: len(spec.Stages),
			Total:   len(spec.Stages),
		},
		Stages: make(map[string]*StageStatus, len(spec.Stages)),
	}

	for _, stage := range spec.Stages {
		stageStatus := &StageStatus{
			ID:          stage.ID,
			Name:        stage.Name,
			Description: stage.Description,
			Status:      StatusNew,
			StatusCounts: StatusCounts{
				Pending: len(stage.Jobs),
				Total:   len(stage.Jobs),
			},
			Jobs: make(map[string]*JobStatus, len(stage.Jobs)),
		}

		for _, job := range stage.Jobs {
			ruleTotal := RulesCount(job.Rules)
			jobStatus := &JobStatus{
				ID:          job.ID,
				Name:        job.Name,
				Description: job.Description,
				Status:      StatusNew,
				StatusCounts: StatusCounts{
					Pending: ruleTotal,
					Total:   ruleTotal,
				},
				Rules: make(map[string]*RuleStatus, len(job.Rules)),
			}
			addRuleStatuses(jobStatus.Rules, job.Rules)
			stageStatus.Jobs[job.ID] = jobStatus
		}

		status.Stages[stage.ID] = stageStatus
	}

	return status
}

func addRuleStatuses(target map[string]*RuleStatus, rules []Rule) {
	for _, rule := range rules {
		ruleStatus := &RuleStatus{
			ID:          rule.ID,
			Name:        rule.Name,
			Description: rule.Description,
			Status:      StatusNew,
			StatusCounts: StatusCounts{
				Pending: RulesCount(rule.Rules),
				Total:   RulesCount(rule.Rules),
			},
		}
		if len(rule.Rules) > 0 {
			ruleStatus.Rules = make(map[string]*RuleStatus, len(rule.Rules))
			addRuleStatuses(ruleStatus.Rules, rule.Rules)
		}
		target[rule.ID] = ruleStatus
	}
}

// FindRule locates a rule status anywhere in the tree, descending into
// nested sub-rules.
func (a *AutomationStatus) FindRule(ruleID string) *RuleStatus {
	for _, stage := range a.Stages {
		for _, job := range stage.Jobs {
			if found := findRule(job.Rules, ruleID); found != nil {
				return found
			}
		}
	}
	return nil
}

func findRule(rules map[string]*RuleStatus, ruleID string) *RuleStatus {
	if rule, ok := rules[ruleID]; ok {
		return rule
	}
	for _, rule := range rules {
		if rule.Rules == nil {
			continue
		}
		if found := findRule(rule.Rules, ruleID); found != nil {
			return found
		}
	}
	return nil
}
