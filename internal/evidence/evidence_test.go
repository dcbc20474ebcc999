package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-fi/advisor/internal/tools"
)

func sampleOutputs() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		tools.ToolSpendAnalytics: {
			"total_spend_30d":  2500.0,
			"net_cashflow_30d": -180.5,
			"savings_rate":     0.05,
			"top_category":     "dining",
		},
		tools.ToolCashflowForecast: {
			"net_cashflow_30d": -120.0,
			"runway_months":    2.0,
			"trend":            "declining",
		},
	}
}

func TestExtractFactsMapsDocumentedFields(t *testing.T) {
	facts := ExtractFacts(sampleOutputs())

	byID := map[string]Fact{}
	for _, f := range facts {
		byID[f.FactID] = f
	}

	net, ok := byID["spend.net_cashflow.30d"]
	require.True(t, ok)
	require.NotNil(t, net.Value)
	assert.Equal(t, -180.5, *net.Value)
	assert.Equal(t, "-180.5", net.ValueText)
	assert.Equal(t, tools.ToolSpendAnalytics, net.SourceTool)
	assert.Equal(t, "net_cashflow_30d", net.SourcePath)
	assert.Equal(t, "30d", net.Timeframe)

	cat, ok := byID["spend.top_category.30d"]
	require.True(t, ok)
	assert.Nil(t, cat.Value)
	assert.Equal(t, "dining", cat.ValueText)
}

func TestExtractFactsOmitsMissingFields(t *testing.T) {
	facts := ExtractFacts(map[string]map[string]interface{}{
		tools.ToolSpendAnalytics: {"total_spend_30d": 900.0},
	})

	require.Len(t, facts, 1)
	assert.Equal(t, "spend.total.30d", facts[0].FactID)
}

func TestExtractFactsOmitsWrongTypes(t *testing.T) {
	facts := ExtractFacts(map[string]map[string]interface{}{
		tools.ToolSpendAnalytics: {
			"total_spend_30d": "not a number",
			"top_category":    42,
		},
	})
	assert.Empty(t, facts)
}

func TestExtractFactsIsDeterministic(t *testing.T) {
	a := ExtractFacts(sampleOutputs())
	b := ExtractFacts(sampleOutputs())
	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1].FactID, a[i].FactID)
	}
}

func TestJarAllocationEmitsPerJarFacts(t *testing.T) {
	facts := ExtractFacts(map[string]map[string]interface{}{
		tools.ToolJarAllocation: {
			"allocations": map[string]interface{}{
				"Essentials":  55.0,
				"Savings":     20.0,
				"Fun & Games": 10.0,
			},
		},
	})

	require.Len(t, facts, 3)
	byID := map[string]Fact{}
	for _, f := range facts {
		byID[f.FactID] = f
	}
	ess, ok := byID["allocation.jar.essentials"]
	require.True(t, ok)
	assert.Equal(t, "55%", ess.ValueText)
	_, ok = byID["allocation.jar.fun___games"]
	assert.True(t, ok)
}

func TestDeriveInsightsCashflowPressure(t *testing.T) {
	facts := ExtractFacts(sampleOutputs())
	insights := DeriveInsights(facts)

	var pressure *Insight
	for i := range insights {
		if insights[i].Kind == "cashflow_pressure" {
			pressure = &insights[i]
		}
	}
	require.NotNil(t, pressure, "negative net cashflow + short runway must fire")
	assert.Equal(t, SeverityHigh, pressure.Severity)
	assert.ElementsMatch(t,
		[]string{"spend.net_cashflow.30d", "forecast.runway.months"},
		pressure.SupportingFactIDs)
}

func TestDeriveInsightsNeverFiresWithoutFacts(t *testing.T) {
	assert.Empty(t, DeriveInsights(nil))
}

func TestDeriveInsightsAnomalyAlert(t *testing.T) {
	facts := ExtractFacts(map[string]map[string]interface{}{
		tools.ToolAnomalySignals: {
			"flags": []interface{}{"abnormal_spend"},
			"count": 1.0,
		},
	})
	insights := DeriveInsights(facts)

	require.Len(t, insights, 1)
	assert.Equal(t, "anomaly_alert", insights[0].Kind)
	assert.Contains(t, insights[0].SupportingFactIDs, "risk.anomaly.flags")
}

func TestBuildActionsContractAlwaysTwoToFour(t *testing.T) {
	// No insights at all: the generic safe actions pad to two.
	actions := BuildActions(nil, "")
	require.Len(t, actions, 2)
	assert.Equal(t, "act.schedule_review", actions[0].ActionID)
	assert.Equal(t, "act.refresh_data", actions[1].ActionID)

	// Many insights: capped at four, sorted by priority.
	facts := ExtractFacts(sampleOutputs())
	more := ExtractFacts(map[string]map[string]interface{}{
		tools.ToolAnomalySignals: {"flags": []interface{}{"x"}, "count": 2.0},
		tools.ToolRiskProfile:    {"emergency_fund_months": 1.0},
	})
	insights := DeriveInsights(append(facts, more...))
	actions = BuildActions(insights, "")
	assert.GreaterOrEqual(t, len(actions), 2)
	assert.LessOrEqual(t, len(actions), 4)
	for i := 1; i < len(actions); i++ {
		if actions[i-1].Priority == actions[i].Priority {
			assert.Less(t, actions[i-1].ActionID, actions[i].ActionID)
		} else {
			assert.Less(t, actions[i-1].Priority, actions[i].Priority)
		}
	}
}

func TestBuildActionsRiskAppetiteAdjustsPriority(t *testing.T) {
	facts := ExtractFacts(map[string]map[string]interface{}{
		tools.ToolRiskProfile: {"emergency_fund_months": 1.0},
	})
	insights := DeriveInsights(facts)

	neutral := BuildActions(insights, "")
	conservative := BuildActions(insights, "conservative")

	var np, cp int
	for _, a := range neutral {
		if a.ActionID == "act.build_emergency_fund" {
			np = a.Priority
		}
	}
	for _, a := range conservative {
		if a.ActionID == "act.build_emergency_fund" {
			cp = a.Priority
		}
	}
	require.NotZero(t, np)
	require.NotZero(t, cp)
	assert.Less(t, cp, np)
}

func TestBuildAssemblesFrozenContext(t *testing.T) {
	ctx := Build(sampleOutputs(), "moderate", []Citation{{ID: "kb-1", Snippet: "s"}}, map[string]string{"guard": "allow"})

	assert.NotEmpty(t, ctx.Facts)
	assert.NotEmpty(t, ctx.Insights)
	assert.GreaterOrEqual(t, len(ctx.Actions), 2)
	assert.Len(t, ctx.Citations, 1)

	f, ok := ctx.Fact("spend.net_cashflow.30d")
	require.True(t, ok)
	assert.Equal(t, "-180.5", f.ValueText)
	_, ok = ctx.Fact("no.such.fact")
	assert.False(t, ok)
}
