// Package synthesis owns the generation side of answering: the answer plan
// schema, the prompt that asks for it, and the tolerant parser that reads it
// back. Whether the plan may be shown to a user is the grounding validator's
// call, not this package's.
package synthesis

import (
	"fmt"
)

// Schema bounds for one answer plan.
const (
	MinSummaryLines = 3
	MaxSummaryLines = 5
	MinActions      = 2
	MaxActions      = 4
)

// KeyMetric surfaces one fact as a headline number.
type KeyMetric struct {
	FactID string `json:"fact_id"`
	Label  string `json:"label"`
}

// PlanAction is one recommended action referenced by ID.
type PlanAction struct {
	ActionID    string `json:"action_id"`
	Description string `json:"description"`
}

// Plan is the structured answer the generator must produce. Prose never
// carries raw numbers; it carries {{fact:ID}} placeholders resolved at render
// time, and every placeholder must be declared in UsedFactIDs.
type Plan struct {
	SummaryLines []string     `json:"summary_lines"`
	KeyMetrics   []KeyMetric  `json:"key_metrics"`
	Actions      []PlanAction `json:"actions"`
	Assumptions  []string     `json:"assumptions"`
	Limitations  []string     `json:"limitations"`
	Disclaimer   string       `json:"disclaimer"`

	UsedFactIDs    []string `json:"used_fact_ids"`
	UsedInsightIDs []string `json:"used_insight_ids"`
	UsedActionIDs  []string `json:"used_action_ids"`
}

// CheckSchema enforces the structural bounds before grounding runs. It
// returns the named violated rules so a corrective retry can cite them.
func (p *Plan) CheckSchema() []string {
	var violations []string
	if n := len(p.SummaryLines); n < MinSummaryLines || n > MaxSummaryLines {
		violations = append(violations, fmt.Sprintf("summary_lines_count:%d", n))
	}
	for i, line := range p.SummaryLines {
		if line == "" {
			violations = append(violations, fmt.Sprintf("summary_line_empty:%d", i))
		}
	}
	if n := len(p.Actions); n < MinActions || n > MaxActions {
		violations = append(violations, fmt.Sprintf("actions_count:%d", n))
	}
	for i, a := range p.Actions {
		if a.ActionID == "" {
			violations = append(violations, fmt.Sprintf("action_id_empty:%d", i))
		}
	}
	for i, m := range p.KeyMetrics {
		if m.FactID == "" {
			violations = append(violations, fmt.Sprintf("key_metric_fact_id_empty:%d", i))
		}
	}
	if p.Disclaimer == "" {
		violations = append(violations, "disclaimer_missing")
	}
	return violations
}

// ProseFields returns every free-text field the grounding validator must
// scan: summary lines, action descriptions, assumptions, and limitations.
func (p *Plan) ProseFields() []string {
	out := make([]string, 0, len(p.SummaryLines)+len(p.Actions)+len(p.Assumptions)+len(p.Limitations))
	out = append(out, p.SummaryLines...)
	for _, a := range p.Actions {
		out = append(out, a.Description)
	}
	out = append(out, p.Assumptions...)
	out = append(out, p.Limitations...)
	return out
}
