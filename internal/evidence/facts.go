// Package evidence turns raw tool output into the deterministic ground truth
// the generator may not contradict: typed facts with stable IDs, insights
// derived from an ordered rule table, and prioritized action candidates.
package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vantage-fi/advisor/internal/tools"
)

// Fact is the atomic unit of truth. FactID is the only handle by which
// downstream text may reference a number.
type Fact struct {
	FactID     string   `json:"fact_id"`
	Label      string   `json:"label"`
	Value      *float64 `json:"value,omitempty"`
	ValueText  string   `json:"value_text"`
	Unit       string   `json:"unit,omitempty"`
	Timeframe  string   `json:"timeframe,omitempty"`
	SourceTool string   `json:"source_tool"`
	SourcePath string   `json:"source_path"`
}

type fieldKind int

const (
	kindNumber fieldKind = iota
	kindString
	kindBool
	kindStringList
)

// fieldSpec maps one documented output field to one fact. Fields absent from
// the tool output are omitted, never defaulted: a fact that exists always
// reflects a value the tool actually returned.
type fieldSpec struct {
	path      string // key in the tool output object
	factID    string
	label     string
	unit      string
	timeframe string
	kind      fieldKind
}

// factSchemas is the fixed per-tool extraction table.
var factSchemas = map[string][]fieldSpec{
	tools.ToolSpendAnalytics: {
		{path: "total_spend_30d", factID: "spend.total.30d", label: "Total spending (30 days)", unit: "currency", timeframe: "30d", kind: kindNumber},
		{path: "net_cashflow_30d", factID: "spend.net_cashflow.30d", label: "Net cash flow (30 days)", unit: "currency", timeframe: "30d", kind: kindNumber},
		{path: "savings_rate", factID: "spend.savings_rate.30d", label: "Savings rate (30 days)", unit: "ratio", timeframe: "30d", kind: kindNumber},
		{path: "top_category", factID: "spend.top_category.30d", label: "Top spending category", timeframe: "30d", kind: kindString},
	},
	tools.ToolAnomalySignals: {
		{path: "flags", factID: "risk.anomaly.flags", label: "Anomaly flags", timeframe: "30d", kind: kindStringList},
		{path: "count", factID: "risk.anomaly.count", label: "Anomaly count", unit: "count", timeframe: "30d", kind: kindNumber},
		{path: "largest", factID: "risk.anomaly.largest", label: "Largest anomalous amount", unit: "currency", timeframe: "30d", kind: kindNumber},
	},
	tools.ToolCashflowForecast: {
		{path: "net_cashflow_30d", factID: "forecast.net_cashflow.30d", label: "Forecast net cash flow (30 days)", unit: "currency", timeframe: "30d", kind: kindNumber},
		{path: "runway_months", factID: "forecast.runway.months", label: "Cash runway", unit: "months", kind: kindNumber},
		{path: "trend", factID: "forecast.trend", label: "Cash flow trend", kind: kindString},
	},
	tools.ToolRiskProfile: {
		{path: "score", factID: "risk.profile.score", label: "Financial risk score", unit: "score", kind: kindNumber},
		{path: "level", factID: "risk.profile.level", label: "Financial risk level", kind: kindString},
		{path: "emergency_fund_months", factID: "risk.emergency_fund.months", label: "Emergency fund coverage", unit: "months", kind: kindNumber},
	},
	tools.ToolGoalFeasibility: {
		{path: "feasibility_score", factID: "plan.goal.feasibility", label: "Goal feasibility score", unit: "score", kind: kindNumber},
		{path: "monthly_required", factID: "plan.goal.monthly_required", label: "Required monthly contribution", unit: "currency", kind: kindNumber},
		{path: "horizon_months", factID: "plan.goal.horizon.months", label: "Goal horizon", unit: "months", kind: kindNumber},
	},
	tools.ToolRecurringDetect: {
		{path: "monthly_total", factID: "recurring.monthly_total", label: "Recurring payments per month", unit: "currency", kind: kindNumber},
		{path: "count", factID: "recurring.count", label: "Recurring payment count", unit: "count", kind: kindNumber},
	},
	tools.ToolWhatIfScenario: {
		{path: "delta_net_cashflow_30d", factID: "scenario.delta_net_cashflow.30d", label: "Scenario net cash flow change (30 days)", unit: "currency", timeframe: "30d", kind: kindNumber},
		{path: "feasible", factID: "scenario.feasible", label: "Scenario feasible", kind: kindBool},
	},
}

// ExtractFacts applies the per-tool schemas to merged fan-out output. Facts
// are returned sorted by fact_id so the evidence pack is deterministic for a
// given output map.
func ExtractFacts(outputs map[string]map[string]interface{}) []Fact {
	var facts []Fact
	for tool, out := range outputs {
		if tool == tools.ToolJarAllocation {
			facts = append(facts, jarAllocationFacts(out)...)
			continue
		}
		for _, spec := range factSchemas[tool] {
			if f, ok := factFromField(tool, spec, out[spec.path]); ok {
				facts = append(facts, f)
			}
		}
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].FactID < facts[j].FactID })
	return facts
}

func factFromField(tool string, spec fieldSpec, raw interface{}) (Fact, bool) {
	if raw == nil {
		return Fact{}, false
	}
	f := Fact{
		FactID:     spec.factID,
		Label:      spec.label,
		Unit:       spec.unit,
		Timeframe:  spec.timeframe,
		SourceTool: tool,
		SourcePath: spec.path,
	}
	switch spec.kind {
	case kindNumber:
		v, ok := asFloat(raw)
		if !ok {
			return Fact{}, false
		}
		f.Value = &v
		f.ValueText = RenderNumber(v)
	case kindString:
		s, ok := raw.(string)
		if !ok || s == "" {
			return Fact{}, false
		}
		f.ValueText = s
	case kindBool:
		b, ok := raw.(bool)
		if !ok {
			return Fact{}, false
		}
		f.ValueText = strconv.FormatBool(b)
	case kindStringList:
		items, ok := asStringList(raw)
		if !ok || len(items) == 0 {
			return Fact{}, false
		}
		f.ValueText = strings.Join(items, ", ")
	}
	return f, true
}

// jarAllocationFacts emits one fact per suggested jar; jar names come from
// the tool, so fact IDs are derived rather than listed in the schema table.
func jarAllocationFacts(out map[string]interface{}) []Fact {
	raw, ok := out["allocations"].(map[string]interface{})
	if !ok {
		return nil
	}
	facts := make([]Fact, 0, len(raw))
	for jar, v := range raw {
		pct, ok := asFloat(v)
		if !ok {
			continue
		}
		p := pct
		facts = append(facts, Fact{
			FactID:     "allocation.jar." + sanitizeID(jar),
			Label:      fmt.Sprintf("Suggested allocation: %s", jar),
			Value:      &p,
			ValueText:  RenderNumber(pct) + "%",
			Unit:       "percent",
			SourceTool: tools.ToolJarAllocation,
			SourcePath: "allocations." + jar,
		})
	}
	return facts
}

// RenderNumber formats a numeric fact value the same way everywhere: no
// scientific notation, no trailing zeros. The grounding validator matches
// prose numbers against exactly this rendering.
func RenderNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func asStringList(raw interface{}) ([]string, bool) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
