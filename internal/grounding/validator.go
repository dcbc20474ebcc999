// Package grounding cross-checks a synthesized answer plan against the
// advisory context it was generated from. A plan passes only when every
// identifier it references exists in the context and every number in its
// prose traces to evidence or an explicitly allowed constant.
package grounding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vantage-fi/advisor/internal/evidence"
	"github.com/vantage-fi/advisor/internal/metrics"
	"github.com/vantage-fi/advisor/internal/synthesis"
)

// Violated rule names, carried verbatim into corrective retry feedback.
const (
	RuleUnknownUsedFact       = "unknown_used_fact_id"
	RuleUnknownUsedInsight    = "unknown_used_insight_id"
	RuleUnknownUsedAction     = "unknown_used_action_id"
	RuleUnknownKeyMetric      = "unknown_key_metric_fact_id"
	RuleUnknownPlanAction     = "unknown_plan_action_id"
	RulePlaceholderUnresolved = "placeholder_unresolved"
	RulePlaceholderUndeclared = "placeholder_undeclared"
	RuleUngroundedNumber      = "ungrounded_number"
)

// PlaceholderRe matches the {{fact:ID}} placeholders allowed in prose.
var PlaceholderRe = regexp.MustCompile(`\{\{fact:([A-Za-z0-9_.\-]+)\}\}`)

// numberRe matches standalone numbers and percentages in already-stripped
// prose. Thousands separators are not produced by the renderer, so they are
// treated as ordinary ungrounded text.
var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?%?`)

// listMarkerRe strips leading enumeration markers ("1.", "2)", "-") so list
// numbering never counts as a prose number.
var listMarkerRe = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*•])\s+`)

// cadenceAllowList are the small scheduling constants prose may use without
// a backing fact, and only when a day/week/month word follows ("review every
// 14 days"). A bare cadence number is still ungrounded.
var cadenceAllowList = map[string]bool{
	"1": true, "2": true, "3": true, "7": true,
	"14": true, "30": true, "60": true, "90": true,
}

// cadenceUnitRe matches the scheduling unit that must follow a cadence
// constant for it to count as grounded.
var cadenceUnitRe = regexp.MustCompile(`^[\s-]*(?:day|days|week|weeks|month|months)\b`)

// maxFreePercent is the largest percentage allowed without a backing fact.
const maxFreePercent = 25

// Report is the validation outcome for one plan.
type Report struct {
	Violations []string
	// UndeclaredPlaceholders are fact IDs used in prose placeholders but
	// missing from used_fact_ids: the one mechanically repairable class.
	UndeclaredPlaceholders []string
}

// OK reports whether the plan passed both checks.
func (r *Report) OK() bool { return len(r.Violations) == 0 }

// RepairableOnly reports whether every violation is an undeclared
// placeholder, i.e. the plan is fixable without regeneration.
func (r *Report) RepairableOnly() bool {
	return len(r.Violations) > 0 &&
		len(r.Violations) == len(r.UndeclaredPlaceholders)
}

// Validate runs identifier grounding then numeric grounding. The two checks
// are independent; all violations are reported together.
func Validate(plan *synthesis.Plan, ctx *evidence.AdvisoryContext) *Report {
	r := &Report{}
	validateIdentifiers(plan, ctx, r)
	validateNumbers(plan, ctx, r)
	for _, v := range r.Violations {
		rule, _, _ := strings.Cut(v, ":")
		metrics.GroundingViolations.WithLabelValues(rule).Inc()
	}
	return r
}

func validateIdentifiers(plan *synthesis.Plan, ctx *evidence.AdvisoryContext, r *Report) {
	for _, id := range plan.UsedFactIDs {
		if _, ok := ctx.Fact(id); !ok {
			r.add(RuleUnknownUsedFact, id)
		}
	}
	for _, id := range plan.UsedInsightIDs {
		if !ctx.HasInsight(id) {
			r.add(RuleUnknownUsedInsight, id)
		}
	}
	for _, id := range plan.UsedActionIDs {
		if _, ok := ctx.ActionByID(id); !ok {
			r.add(RuleUnknownUsedAction, id)
		}
	}
	for _, m := range plan.KeyMetrics {
		if _, ok := ctx.Fact(m.FactID); !ok {
			r.add(RuleUnknownKeyMetric, m.FactID)
		}
	}
	for _, a := range plan.Actions {
		if _, ok := ctx.ActionByID(a.ActionID); !ok {
			r.add(RuleUnknownPlanAction, a.ActionID)
		}
	}

	declared := make(map[string]bool, len(plan.UsedFactIDs))
	for _, id := range plan.UsedFactIDs {
		declared[id] = true
	}
	seenUndeclared := map[string]bool{}
	for _, field := range plan.ProseFields() {
		for _, match := range PlaceholderRe.FindAllStringSubmatch(field, -1) {
			id := match[1]
			if _, ok := ctx.Fact(id); !ok {
				r.add(RulePlaceholderUnresolved, id)
				continue
			}
			if !declared[id] && !seenUndeclared[id] {
				seenUndeclared[id] = true
				r.add(RulePlaceholderUndeclared, id)
				r.UndeclaredPlaceholders = append(r.UndeclaredPlaceholders, id)
			}
		}
	}
}

func validateNumbers(plan *synthesis.Plan, ctx *evidence.AdvisoryContext, r *Report) {
	allowed := allowedNumbers(ctx)
	for _, field := range plan.ProseFields() {
		stripped := PlaceholderRe.ReplaceAllString(field, " ")
		stripped = listMarkerRe.ReplaceAllString(stripped, " ")
		for _, loc := range numberRe.FindAllStringIndex(stripped, -1) {
			tok := stripped[loc[0]:loc[1]]
			if numberAllowed(tok, allowed) {
				continue
			}
			if cadenceAllowList[tok] && cadenceUnitRe.MatchString(stripped[loc[1]:]) {
				continue
			}
			r.add(RuleUngroundedNumber, tok)
		}
	}
}

// allowedNumbers collects every numeric string evidence can justify: fact
// rendered and raw values, timeframe day-counts, and action parameters.
func allowedNumbers(ctx *evidence.AdvisoryContext) map[string]bool {
	allowed := map[string]bool{}
	addNum := func(v float64) {
		s := evidence.RenderNumber(v)
		allowed[s] = true
		allowed[strings.TrimPrefix(s, "-")] = true
	}
	for _, f := range ctx.Facts {
		if f.Value != nil {
			addNum(*f.Value)
		}
		allowed[strings.TrimSuffix(f.ValueText, "%")] = true
		allowed[f.ValueText] = true
		if tf := strings.TrimSuffix(f.Timeframe, "d"); tf != f.Timeframe && tf != "" {
			allowed[tf] = true
		}
	}
	for _, a := range ctx.Actions {
		for _, v := range a.Params {
			addNum(v)
		}
	}
	return allowed
}

func numberAllowed(tok string, allowed map[string]bool) bool {
	if allowed[tok] {
		return true
	}
	if pct, ok := strings.CutSuffix(tok, "%"); ok {
		if allowed[pct] {
			return true
		}
		v, err := strconv.ParseFloat(pct, 64)
		return err == nil && v >= 0 && v <= maxFreePercent
	}
	return false
}

// Repair is the single mechanical fix: extend used_fact_ids to cover
// placeholders used in prose but not declared. It touches nothing else and
// reports whether it changed the plan.
func Repair(plan *synthesis.Plan, report *Report) bool {
	if len(report.UndeclaredPlaceholders) == 0 {
		return false
	}
	plan.UsedFactIDs = append(plan.UsedFactIDs, report.UndeclaredPlaceholders...)
	return true
}

func (r *Report) add(rule, detail string) {
	r.Violations = append(r.Violations, fmt.Sprintf("%s:%s", rule, detail))
}
