// Package render turns a validated answer plan into final response text, and
// provides the deterministic facts-only fallback used when synthesis cannot
// be trusted. The fallback performs no generation at all: it cannot
// hallucinate because it only copies fact values verbatim.
package render

import (
	"fmt"
	"strings"

	"github.com/vantage-fi/advisor/internal/evidence"
	"github.com/vantage-fi/advisor/internal/grounding"
	"github.com/vantage-fi/advisor/internal/metrics"
	"github.com/vantage-fi/advisor/internal/synthesis"
)

// Disclaimer closes every advisory response, generated or not.
const Disclaimer = "This is general guidance based on your transaction data, not professional financial advice."

// RefusalText is the fixed response for requests the suitability guard
// denies. It bypasses generation entirely.
const RefusalText = "I can't recommend specific investments or securities. " +
	"I can help you review your spending, build an emergency fund, or check whether your budget leaves room to invest regularly. " +
	Disclaimer

// Plan renders a validated plan: placeholders become fact values, sections
// are assembled in fixed order. Must only be called with a plan that passed
// grounding; unresolved placeholders here would be a pipeline bug.
func Plan(p *synthesis.Plan, ctx *evidence.AdvisoryContext) string {
	var b strings.Builder

	for _, line := range p.SummaryLines {
		b.WriteString(resolve(line, ctx))
		b.WriteByte('\n')
	}

	if len(p.KeyMetrics) > 0 {
		b.WriteString("\nKey numbers:\n")
		for _, m := range p.KeyMetrics {
			f, ok := ctx.Fact(m.FactID)
			if !ok {
				continue
			}
			label := m.Label
			if label == "" {
				label = f.Label
			}
			b.WriteString(fmt.Sprintf("- %s: %s%s\n", label, f.ValueText, unitSuffix(f)))
		}
	}

	if len(p.Actions) > 0 {
		b.WriteString("\nWhat you can do:\n")
		for i, a := range p.Actions {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, resolve(a.Description, ctx)))
		}
	}

	if len(p.Assumptions) > 0 {
		b.WriteString("\nAssumptions: " + strings.Join(resolveAll(p.Assumptions, ctx), " "))
		b.WriteByte('\n')
	}
	if len(p.Limitations) > 0 {
		b.WriteString("Limitations: " + strings.Join(resolveAll(p.Limitations, ctx), " "))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	disclaimer := p.Disclaimer
	if disclaimer == "" {
		disclaimer = Disclaimer
	}
	b.WriteString(disclaimer)
	return b.String()
}

// Fallback is the deterministic facts-only renderer: top facts verbatim, the
// derived actions through a fixed template, nothing free-form.
func Fallback(ctx *evidence.AdvisoryContext) string {
	metrics.FallbackRenders.Inc()

	var b strings.Builder
	b.WriteString("Here is what your data shows:\n")

	facts := ctx.TopFacts(6)
	if len(facts) == 0 {
		b.WriteString("- No figures are available right now.\n")
	}
	for _, f := range facts {
		line := fmt.Sprintf("- %s: %s%s", f.Label, f.ValueText, unitSuffix(f))
		b.WriteString(line + "\n")
	}

	if len(ctx.Actions) > 0 {
		b.WriteString("\nSuggested next steps:\n")
		for i, a := range ctx.Actions {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, actionTemplate(a)))
		}
	}

	b.WriteByte('\n')
	b.WriteString(Disclaimer)
	return b.String()
}

// actionTemplates maps action types to fixed sentences. Unknown types fall
// back to the action ID itself, which is at least honest.
var actionTemplates = map[string]string{
	"review_transactions": "Review the transactions that were flagged as unusual.",
	"reduce_spending":     "Look for discretionary spending you can cut back.",
	"increase_savings":    "Set aside more toward your emergency fund.",
	"adjust_goal":         "Revisit your savings goal amount or timeline.",
	"revisit_scenario":    "Adjust the scenario and run it again.",
	"review_spending":     "Go through your top spending category for savings.",
	"set_savings_target":  "Pick a fixed share of income to save each month.",
	"audit_subscriptions": "Go through your recurring payments and cancel what you no longer use.",
	"adjust_budget":       "Rework your budget to absorb the simulated change.",
	"schedule_review":     "Check back in on your finances at your next review.",
	"refresh_data":        "Sync your accounts so the next answer uses fresh data.",
}

func actionTemplate(a evidence.Action) string {
	if tmpl, ok := actionTemplates[a.ActionType]; ok {
		return tmpl
	}
	return a.ActionID
}

func resolve(text string, ctx *evidence.AdvisoryContext) string {
	return grounding.PlaceholderRe.ReplaceAllStringFunc(text, func(ph string) string {
		id := grounding.PlaceholderRe.FindStringSubmatch(ph)[1]
		if f, ok := ctx.Fact(id); ok {
			return f.ValueText
		}
		return ph
	})
}

func resolveAll(texts []string, ctx *evidence.AdvisoryContext) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = resolve(t, ctx)
	}
	return out
}

func unitSuffix(f evidence.Fact) string {
	switch f.Unit {
	case "months":
		return " months"
	case "count", "currency", "percent", "ratio", "score", "":
		return ""
	default:
		return " " + f.Unit
	}
}
