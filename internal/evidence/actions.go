package evidence

import "sort"

// Action is one recommended next step. Priority is 1..99, lower is more
// urgent; ties break lexically by action_id.
type Action struct {
	ActionID             string             `json:"action_id"`
	Priority             int                `json:"priority"`
	ActionType           string             `json:"action_type"`
	Params               map[string]float64 `json:"params,omitempty"`
	SupportingInsightIDs []string           `json:"supporting_insight_ids"`
}

// actionRule maps a triggering insight kind to an action candidate.
type actionRule struct {
	trigger    string // insight kind
	actionID   string
	priority   int
	actionType string
	params     map[string]float64
}

// actionRules fires in order, one action per matched insight kind.
var actionRules = []actionRule{
	{trigger: "anomaly_alert", actionID: "act.review_flagged_transactions", priority: 3,
		actionType: "review_transactions", params: map[string]float64{"window_days": 30}},
	{trigger: "cashflow_pressure", actionID: "act.reduce_discretionary_spend", priority: 5,
		actionType: "reduce_spending", params: map[string]float64{"review_window_days": 30}},
	{trigger: "low_emergency_fund", actionID: "act.build_emergency_fund", priority: 8,
		actionType: "increase_savings", params: map[string]float64{"target_months": 3}},
	{trigger: "goal_at_risk", actionID: "act.adjust_goal_contribution", priority: 10,
		actionType: "adjust_goal"},
	{trigger: "scenario_infeasible", actionID: "act.revisit_scenario_assumptions", priority: 12,
		actionType: "revisit_scenario"},
	{trigger: "negative_cashflow", actionID: "act.review_top_spending_category", priority: 14,
		actionType: "review_spending", params: map[string]float64{"window_days": 30}},
	{trigger: "low_savings_rate", actionID: "act.set_savings_target", priority: 16,
		actionType: "set_savings_target", params: map[string]float64{"target_percent": 10}},
	{trigger: "recurring_heavy", actionID: "act.audit_subscriptions", priority: 20,
		actionType: "audit_subscriptions", params: map[string]float64{"window_days": 90}},
	{trigger: "scenario_reduces_cashflow", actionID: "act.trim_budget_for_scenario", priority: 22,
		actionType: "adjust_budget", params: map[string]float64{"window_days": 30}},
}

// riskAdjustments shifts priorities by declared risk appetite. Conservative
// users get protective actions sooner; aggressive users get growth-side
// actions sooner. The shifted value stays inside 1..99.
var riskAdjustments = map[string]map[string]int{
	"conservative": {
		"act.build_emergency_fund":       -3,
		"act.reduce_discretionary_spend": -2,
		"act.set_savings_target":         -2,
	},
	"aggressive": {
		"act.build_emergency_fund":     +3,
		"act.adjust_goal_contribution": -3,
		"act.trim_budget_for_scenario": -2,
	},
}

// Generic safe actions appended when fewer than two specific ones fire, so
// the 2..4 action contract always holds.
var padActions = []Action{
	{ActionID: "act.schedule_review", Priority: 90, ActionType: "schedule_review",
		Params: map[string]float64{"cadence_days": 30}},
	{ActionID: "act.refresh_data", Priority: 95, ActionType: "refresh_data",
		Params: map[string]float64{"cadence_days": 7}},
}

const maxActions = 4

// BuildActions derives 2..4 prioritized action candidates from the insights.
// riskAppetite is the declared slot value; unknown values adjust nothing.
func BuildActions(insights []Insight, riskAppetite string) []Action {
	byKind := make(map[string][]string) // kind -> insight IDs
	for _, in := range insights {
		byKind[in.Kind] = append(byKind[in.Kind], in.InsightID)
	}

	adjust := riskAdjustments[riskAppetite]
	var out []Action
	for _, rule := range actionRules {
		supporting, ok := byKind[rule.trigger]
		if !ok {
			continue
		}
		prio := rule.priority + adjust[rule.actionID]
		if prio < 1 {
			prio = 1
		}
		if prio > 99 {
			prio = 99
		}
		out = append(out, Action{
			ActionID:             rule.actionID,
			Priority:             prio,
			ActionType:           rule.actionType,
			Params:               rule.params,
			SupportingInsightIDs: supporting,
		})
	}

	if len(out) < 2 {
		out = append(out, padActions...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ActionID < out[j].ActionID
	})
	if len(out) > maxActions {
		out = out[:maxActions]
	}
	return out
}
