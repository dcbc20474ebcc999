package synthesis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-fi/advisor/internal/evidence"
)

func validPlan() *Plan {
	return &Plan{
		SummaryLines: []string{
			"Spending was {{fact:spend.total.30d}} over the period.",
			"Cash flow stayed positive.",
			"No unusual activity was flagged.",
		},
		KeyMetrics: []KeyMetric{{FactID: "spend.total.30d", Label: "Total spending"}},
		Actions: []PlanAction{
			{ActionID: "act.schedule_review", Description: "Check back in next month."},
			{ActionID: "act.refresh_data", Description: "Sync your accounts."},
		},
		Disclaimer:    "General guidance, not financial advice.",
		UsedFactIDs:   []string{"spend.total.30d"},
		UsedActionIDs: []string{"act.schedule_review", "act.refresh_data"},
	}
}

func TestCheckSchemaAcceptsValidPlan(t *testing.T) {
	assert.Empty(t, validPlan().CheckSchema())
}

func TestCheckSchemaNamesEveryViolation(t *testing.T) {
	p := validPlan()
	p.SummaryLines = p.SummaryLines[:2]
	p.Actions = append(p.Actions, PlanAction{}, PlanAction{ActionID: "a"}, PlanAction{ActionID: "b"})
	p.Disclaimer = ""

	violations := p.CheckSchema()
	assert.Contains(t, violations, "summary_lines_count:2")
	assert.Contains(t, violations, "actions_count:5")
	assert.Contains(t, violations, "action_id_empty:2")
	assert.Contains(t, violations, "disclaimer_missing")
}

func TestProseFieldsCoversAllFreeText(t *testing.T) {
	p := validPlan()
	p.Assumptions = []string{"assumes stable income"}
	p.Limitations = []string{"last 30 days only"}

	fields := p.ProseFields()
	assert.Len(t, fields, 3+2+1+1)
	assert.Contains(t, fields, "assumes stable income")
	assert.Contains(t, fields, "Check back in next month.")
}

func TestParsePlanTolerantOfFencesAndProse(t *testing.T) {
	raw := "Here is the plan:\n```json\n" + `{
  "summary_lines": ["a", "b", "c"],
  "actions": [{"action_id": "act.x", "description": "do x"}],
  "disclaimer": "d",
  "used_fact_ids": ["f1"],
}` + "\n```"

	p, err := ParsePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, p.SummaryLines)
	assert.Equal(t, []string{"f1"}, p.UsedFactIDs)
}

func TestParsePlanRejectsProse(t *testing.T) {
	_, err := ParsePlan("I would recommend reviewing your spending.")
	assert.Error(t, err)
}

func TestBuildPromptListsEvidence(t *testing.T) {
	v := 1200.0
	ctx := &evidence.AdvisoryContext{
		Facts: []evidence.Fact{{
			FactID: "spend.total.30d", Label: "Total spending",
			Value: &v, ValueText: "1200", Unit: "currency",
		}},
		Insights: []evidence.Insight{{
			InsightID: "ins.healthy_cashflow", Kind: "healthy_cashflow",
			Severity: evidence.SeverityLow, MessageSeed: "income covers spending",
			SupportingFactIDs: []string{"spend.total.30d"},
		}},
		Actions: []evidence.Action{{
			ActionID: "act.schedule_review", Priority: 90, ActionType: "schedule_review",
		}},
	}

	prompt := BuildPrompt("how is my spending", ctx, nil)
	assert.Contains(t, prompt, "how is my spending")
	assert.Contains(t, prompt, "spend.total.30d")
	assert.Contains(t, prompt, "ins.healthy_cashflow")
	assert.Contains(t, prompt, "act.schedule_review")
	assert.Contains(t, prompt, "answer_plan")
	assert.NotContains(t, prompt, "Corrections required")
}

func TestBuildPromptCarriesViolationsForRetry(t *testing.T) {
	ctx := &evidence.AdvisoryContext{}
	prompt := BuildPrompt("q", ctx, []string{"ungrounded_number:9876"})

	idx := strings.Index(prompt, "Corrections required")
	require.Greater(t, idx, 0)
	assert.Contains(t, prompt[idx:], "ungrounded_number:9876")
}
