package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vantage-fi/advisor/internal/evidence"
	"github.com/vantage-fi/advisor/internal/synthesis"
)

func testContext() *evidence.AdvisoryContext {
	net := -180.5
	return &evidence.AdvisoryContext{
		Facts: []evidence.Fact{
			{FactID: "spend.net_cashflow.30d", Label: "Net cash flow (30 days)",
				Value: &net, ValueText: "-180.5", Unit: "currency", Timeframe: "30d"},
			{FactID: "forecast.runway.months", Label: "Cash runway",
				ValueText: "2", Unit: "months"},
		},
		Actions: []evidence.Action{
			{ActionID: "act.reduce_discretionary_spend", Priority: 5, ActionType: "reduce_spending"},
			{ActionID: "act.schedule_review", Priority: 90, ActionType: "schedule_review"},
		},
	}
}

func TestPlanResolvesPlaceholders(t *testing.T) {
	p := &synthesis.Plan{
		SummaryLines: []string{
			"Your net cash flow was {{fact:spend.net_cashflow.30d}} over the last month.",
			"Your runway is {{fact:forecast.runway.months}} months.",
			"Cutting back now would extend it.",
		},
		Actions: []synthesis.PlanAction{
			{ActionID: "act.reduce_discretionary_spend", Description: "Trim discretionary spending."},
			{ActionID: "act.schedule_review", Description: "Review again soon."},
		},
		Disclaimer: "Not financial advice.",
	}

	out := Plan(p, testContext())
	assert.Contains(t, out, "was -180.5 over")
	assert.Contains(t, out, "runway is 2 months")
	assert.NotContains(t, out, "{{fact:")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "Not financial advice."))
}

func TestPlanRendersKeyMetricsAndActions(t *testing.T) {
	p := &synthesis.Plan{
		SummaryLines: []string{"a", "b", "c"},
		KeyMetrics: []synthesis.KeyMetric{
			{FactID: "forecast.runway.months", Label: "Runway"},
			{FactID: "missing.fact"},
		},
		Actions: []synthesis.PlanAction{
			{ActionID: "x", Description: "First step."},
			{ActionID: "y", Description: "Second step."},
		},
	}

	out := Plan(p, testContext())
	assert.Contains(t, out, "- Runway: 2 months")
	assert.NotContains(t, out, "missing.fact")
	assert.Contains(t, out, "1. First step.")
	assert.Contains(t, out, "2. Second step.")
	assert.Contains(t, out, Disclaimer, "missing disclaimer falls back to the default")
}

func TestFallbackListsFactsVerbatim(t *testing.T) {
	out := Fallback(testContext())

	assert.Contains(t, out, "Net cash flow (30 days): -180.5")
	assert.Contains(t, out, "Cash runway: 2 months")
	assert.Contains(t, out, "Look for discretionary spending you can cut back.")
	assert.True(t, strings.HasSuffix(out, Disclaimer))
}

func TestFallbackWithNoFacts(t *testing.T) {
	out := Fallback(&evidence.AdvisoryContext{})

	assert.Contains(t, out, "No figures are available")
	assert.Contains(t, out, Disclaimer)
}

func TestRefusalCarriesDisclaimer(t *testing.T) {
	assert.Contains(t, RefusalText, "can't recommend specific investments")
	assert.True(t, strings.HasSuffix(RefusalText, Disclaimer))
}
