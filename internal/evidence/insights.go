package evidence

// Severity grades how urgently an insight should surface.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Insight is a deterministically derived observation over facts. It records
// exactly which fact IDs justify it; an insight with no supporting facts
// cannot exist.
type Insight struct {
	InsightID         string   `json:"insight_id"`
	Kind              string   `json:"kind"`
	Severity          Severity `json:"severity"`
	MessageSeed       string   `json:"message_seed"`
	SupportingFactIDs []string `json:"supporting_fact_ids"`
}

// insightRule is one row of the ordered condition table. when returns the
// supporting fact IDs, or nil when the rule does not fire.
type insightRule struct {
	id       string
	kind     string
	severity Severity
	seed     string
	when     func(fs factSet) []string
}

type factSet map[string]Fact

func (fs factSet) num(id string) (float64, bool) {
	f, ok := fs[id]
	if !ok || f.Value == nil {
		return 0, false
	}
	return *f.Value, true
}

func (fs factSet) text(id string) (string, bool) {
	f, ok := fs[id]
	if !ok {
		return "", false
	}
	return f.ValueText, true
}

// insightRules fires in order; every firing rule contributes one insight.
// New rules are new rows, never new control flow.
var insightRules = []insightRule{
	{
		id: "ins.cashflow_pressure", kind: "cashflow_pressure", severity: SeverityHigh,
		seed: "spending exceeds income and the cash runway is short",
		when: func(fs factSet) []string {
			net, ok1 := fs.num("spend.net_cashflow.30d")
			runway, ok2 := fs.num("forecast.runway.months")
			if ok1 && ok2 && net < 0 && runway < 3 {
				return []string{"spend.net_cashflow.30d", "forecast.runway.months"}
			}
			return nil
		},
	},
	{
		id: "ins.negative_cashflow", kind: "negative_cashflow", severity: SeverityMedium,
		seed: "more money went out than came in over the last 30 days",
		when: func(fs factSet) []string {
			if net, ok := fs.num("spend.net_cashflow.30d"); ok && net < 0 {
				return []string{"spend.net_cashflow.30d"}
			}
			return nil
		},
	},
	{
		id: "ins.anomaly_alert", kind: "anomaly_alert", severity: SeverityHigh,
		seed: "unusual transactions were flagged in recent activity",
		when: func(fs factSet) []string {
			if _, ok := fs.text("risk.anomaly.flags"); !ok {
				return nil
			}
			ids := []string{"risk.anomaly.flags"}
			if _, ok := fs.num("risk.anomaly.count"); ok {
				ids = append(ids, "risk.anomaly.count")
			}
			return ids
		},
	},
	{
		id: "ins.low_emergency_fund", kind: "low_emergency_fund", severity: SeverityHigh,
		seed: "the emergency fund covers less than three months of expenses",
		when: func(fs factSet) []string {
			if months, ok := fs.num("risk.emergency_fund.months"); ok && months < 3 {
				return []string{"risk.emergency_fund.months"}
			}
			return nil
		},
	},
	{
		id: "ins.goal_at_risk", kind: "goal_at_risk", severity: SeverityHigh,
		seed: "the savings goal is unlikely to be met on the current path",
		when: func(fs factSet) []string {
			if score, ok := fs.num("plan.goal.feasibility"); ok && score < 0.5 {
				ids := []string{"plan.goal.feasibility"}
				if _, ok := fs.num("plan.goal.monthly_required"); ok {
					ids = append(ids, "plan.goal.monthly_required")
				}
				return ids
			}
			return nil
		},
	},
	{
		id: "ins.goal_on_track", kind: "goal_on_track", severity: SeverityLow,
		seed: "the savings goal is on track at the current pace",
		when: func(fs factSet) []string {
			if score, ok := fs.num("plan.goal.feasibility"); ok && score >= 0.8 {
				return []string{"plan.goal.feasibility"}
			}
			return nil
		},
	},
	{
		id: "ins.low_savings_rate", kind: "low_savings_rate", severity: SeverityMedium,
		seed: "less than a tenth of income is being saved",
		when: func(fs factSet) []string {
			if rate, ok := fs.num("spend.savings_rate.30d"); ok && rate >= 0 && rate < 0.1 {
				return []string{"spend.savings_rate.30d"}
			}
			return nil
		},
	},
	{
		id: "ins.recurring_heavy", kind: "recurring_heavy", severity: SeverityMedium,
		seed: "recurring payments make up a large share of monthly spending",
		when: func(fs factSet) []string {
			recurring, ok1 := fs.num("recurring.monthly_total")
			total, ok2 := fs.num("spend.total.30d")
			if ok1 && ok2 && total > 0 && recurring/total > 0.4 {
				return []string{"recurring.monthly_total", "spend.total.30d"}
			}
			return nil
		},
	},
	{
		id: "ins.scenario_infeasible", kind: "scenario_infeasible", severity: SeverityHigh,
		seed: "the simulated change does not fit the current budget",
		when: func(fs factSet) []string {
			if feasible, ok := fs.text("scenario.feasible"); ok && feasible == "false" {
				ids := []string{"scenario.feasible"}
				if _, ok := fs.num("scenario.delta_net_cashflow.30d"); ok {
					ids = append(ids, "scenario.delta_net_cashflow.30d")
				}
				return ids
			}
			return nil
		},
	},
	{
		id: "ins.scenario_reduces_cashflow", kind: "scenario_reduces_cashflow", severity: SeverityMedium,
		seed: "the simulated change would reduce monthly cash flow",
		when: func(fs factSet) []string {
			if delta, ok := fs.num("scenario.delta_net_cashflow.30d"); ok && delta < 0 {
				return []string{"scenario.delta_net_cashflow.30d"}
			}
			return nil
		},
	},
	{
		id: "ins.healthy_cashflow", kind: "healthy_cashflow", severity: SeverityLow,
		seed: "income comfortably covers spending",
		when: func(fs factSet) []string {
			net, ok1 := fs.num("spend.net_cashflow.30d")
			rate, ok2 := fs.num("spend.savings_rate.30d")
			if ok1 && net > 0 && (!ok2 || rate >= 0.1) {
				return []string{"spend.net_cashflow.30d"}
			}
			return nil
		},
	},
}

// DeriveInsights runs the rule table over the facts, in table order.
func DeriveInsights(facts []Fact) []Insight {
	fs := make(factSet, len(facts))
	for _, f := range facts {
		fs[f.FactID] = f
	}
	var out []Insight
	for _, rule := range insightRules {
		supporting := rule.when(fs)
		if len(supporting) == 0 {
			continue
		}
		out = append(out, Insight{
			InsightID:         rule.id,
			Kind:              rule.kind,
			Severity:          rule.severity,
			MessageSeed:       rule.seed,
			SupportingFactIDs: supporting,
		})
	}
	return out
}
