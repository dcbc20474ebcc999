package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vantage-fi/advisor/internal/evidence"
)

// BuildPrompt assembles the single generation prompt: the frozen advisory
// context plus the format rules the plan must satisfy. One prompt, one JSON
// object back; anything else is the parser's and validator's problem.
func BuildPrompt(userPrompt string, ctx *evidence.AdvisoryContext, violations []string) string {
	var b strings.Builder

	b.WriteString("You are a personal-finance advisory assistant. Answer the user's request using ONLY the evidence below.\n\n")

	b.WriteString("## User request\n")
	b.WriteString(userPrompt)
	b.WriteString("\n\n## Evidence\n")

	b.WriteString("### Facts\n")
	for _, f := range ctx.Facts {
		line := fmt.Sprintf("- %s: %s = %s", f.FactID, f.Label, f.ValueText)
		if f.Unit != "" {
			line += " (" + f.Unit + ")"
		}
		b.WriteString(line + "\n")
	}

	if len(ctx.Insights) > 0 {
		b.WriteString("### Insights\n")
		for _, in := range ctx.Insights {
			b.WriteString(fmt.Sprintf("- %s [%s/%s]: %s (facts: %s)\n",
				in.InsightID, in.Kind, in.Severity, in.MessageSeed,
				strings.Join(in.SupportingFactIDs, ", ")))
		}
	}

	if len(ctx.Actions) > 0 {
		b.WriteString("### Actions\n")
		for _, a := range ctx.Actions {
			params, _ := json.Marshal(a.Params)
			b.WriteString(fmt.Sprintf("- %s (priority %d, type %s, params %s)\n",
				a.ActionID, a.Priority, a.ActionType, params))
		}
	}

	if len(ctx.Citations) > 0 {
		b.WriteString("### Citations\n")
		for _, c := range ctx.Citations {
			b.WriteString(fmt.Sprintf("- %s: %s\n", c.ID, c.Snippet))
		}
	}

	b.WriteString(`
## Output format
Respond with exactly one JSON object of schema "answer_plan":
{
  "summary_lines": [3 to 5 short sentences],
  "key_metrics": [{"fact_id": "...", "label": "..."}],
  "actions": [2 to 4 of {"action_id": "...", "description": "..."}],
  "assumptions": ["..."],
  "limitations": ["..."],
  "disclaimer": "one sentence",
  "used_fact_ids": ["every fact id you reference"],
  "used_insight_ids": ["..."],
  "used_action_ids": ["..."]
}

Rules:
- Never write a raw number in prose. Use a placeholder {{fact:FACT_ID}} instead; it will be replaced with the fact's value.
- Reference only fact, insight, and action ids listed in the evidence above.
- Every placeholder you use must also appear in used_fact_ids.
- action_id values in "actions" must come from the Actions list.
`)

	if len(violations) > 0 {
		b.WriteString("\n## Corrections required\nYour previous answer violated these rules; fix every one:\n")
		for _, v := range violations {
			b.WriteString("- " + v + "\n")
		}
	}

	return b.String()
}
