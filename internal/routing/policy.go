// Package routing decides, per request, whether to execute a tool bundle,
// ask one clarifying question, or refuse. The clarification protocol is
// bounded: once the round counter reaches the configured maximum the router
// must decide, never ask again.
package routing

import (
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/intent"
	"github.com/vantage-fi/advisor/internal/metrics"
	"github.com/vantage-fi/advisor/internal/tools"
)

// Mode is the terminal state of a routing decision.
type Mode string

const (
	ModeFinal   Mode = "final"
	ModeClarify Mode = "clarify"
	ModeRefuse  Mode = "refuse"
)

// Source records which layer produced the final intent.
type Source string

const (
	SourceExtractor Source = "extractor"
	SourceOverride  Source = "override"
	SourceForced    Source = "forced"
)

// FallbackClarifyExhausted marks a decision forced by the clarification budget.
const FallbackClarifyExhausted = "clarify_exhausted"

// Decision is the router's output for one turn.
type Decision struct {
	Mode               Mode          `json:"mode"`
	PolicyVersion      string        `json:"policy_version"`
	FinalIntent        intent.Intent `json:"final_intent"`
	ToolBundle         []string      `json:"tool_bundle"`
	ClarifyNeeded      bool          `json:"clarify_needed"`
	ClarifyingQuestion *Question     `json:"clarifying_question,omitempty"`
	ReasonCodes        []string      `json:"reason_codes"`
	FallbackUsed       string        `json:"fallback_used,omitempty"`
	Source             Source        `json:"source"`
}

// bundles maps each resolved intent to its fixed tool bundle. The invest and
// out-of-scope rows are guard-only: no analytics spend before the suitability
// guard has ruled.
var bundles = map[intent.Intent][]string{
	intent.IntentSpending:   {tools.ToolSpendAnalytics, tools.ToolRecurringDetect, tools.ToolAnomalySignals},
	intent.IntentRisk:       {tools.ToolAnomalySignals, tools.ToolRiskProfile, tools.ToolSpendAnalytics},
	intent.IntentForecast:   {tools.ToolCashflowForecast, tools.ToolSpendAnalytics, tools.ToolRecurringDetect},
	intent.IntentPlanning:   {tools.ToolGoalFeasibility, tools.ToolCashflowForecast, tools.ToolSpendAnalytics},
	intent.IntentAllocation: {tools.ToolJarAllocation, tools.ToolSpendAnalytics, tools.ToolRiskProfile},
	intent.IntentScenario:   {tools.ToolWhatIfScenario, tools.ToolCashflowForecast},
	intent.IntentRecurring:  {tools.ToolRecurringDetect, tools.ToolSpendAnalytics},
	intent.IntentInvest:     {tools.ToolSuitabilityGuard},
	intent.IntentOutOfScope: {tools.ToolSuitabilityGuard},
}

// BundleFor returns a copy of the tool bundle for an intent.
func BundleFor(it intent.Intent) []string {
	b := bundles[it]
	out := make([]string, len(b))
	copy(out, b)
	return out
}

// Decide applies the confidence-gated routing policy to a validated
// extraction. round is the number of clarifying questions already asked in
// this conversation; overrideReasons are the codes appended by the heuristic
// layer.
func Decide(ext *intent.Extraction, overrideReasons []string, round int, cfg config.RoutingConfig) Decision {
	d := Decision{
		Mode:          ModeFinal,
		PolicyVersion: cfg.PolicyVersion,
		FinalIntent:   ext.Intent,
		Source:        SourceExtractor,
		ReasonCodes:   append([]string{}, overrideReasons...),
	}
	if len(overrideReasons) > 0 {
		d.Source = SourceOverride
	}

	triggers := clarifyTriggers(ext, cfg)
	d.ReasonCodes = append(d.ReasonCodes, triggers...)

	// Soft clarification: advisory only, never gates execution.
	if softClarifyNeeded(ext) {
		d.ReasonCodes = append(d.ReasonCodes, reasonSoftRiskAppetite)
	}

	if len(triggers) > 0 {
		if round >= cfg.MaxClarifyQuestions {
			// Budget exhausted: decide with what we have, fail-open.
			d.ClarifyNeeded = false
			d.FallbackUsed = FallbackClarifyExhausted
			metrics.ClarificationsExhausted.Inc()
		} else {
			q := questionFor(triggers, ext)
			d.Mode = ModeClarify
			d.ClarifyNeeded = true
			d.ClarifyingQuestion = &q
			metrics.ClarificationsAsked.WithLabelValues(q.Reason).Inc()
		}
	}

	if !d.ClarifyNeeded {
		d.ToolBundle = BundleFor(d.FinalIntent)
	}

	metrics.RouteDecisions.WithLabelValues(string(d.FinalIntent), string(d.Mode)).Inc()
	return d
}

// ForceOutOfScope is the router's answer to an unusable extraction: never
// guess. The bundle stays guard-only and, budget permitting, the user is
// asked to rephrase.
func ForceOutOfScope(reason string, round int, cfg config.RoutingConfig) Decision {
	d := Decision{
		Mode:          ModeFinal,
		PolicyVersion: cfg.PolicyVersion,
		FinalIntent:   intent.IntentOutOfScope,
		ToolBundle:    BundleFor(intent.IntentOutOfScope),
		Source:        SourceForced,
		ReasonCodes:   []string{reason},
	}
	if round >= cfg.MaxClarifyQuestions {
		d.FallbackUsed = FallbackClarifyExhausted
		metrics.ClarificationsExhausted.Inc()
		return d
	}
	q := questionForReason(reasonExtractionFailed, nil)
	d.Mode = ModeClarify
	d.ClarifyNeeded = true
	d.ClarifyingQuestion = &q
	d.ToolBundle = nil
	metrics.ClarificationsAsked.WithLabelValues(q.Reason).Inc()
	return d
}

func clarifyTriggers(ext *intent.Extraction, cfg config.RoutingConfig) []string {
	var triggers []string
	if ext.DomainRelevance < cfg.DomainRelevanceMin {
		triggers = append(triggers, reasonOutOfDomain)
	}
	if ext.Intent == intent.IntentScenario {
		if len(ext.MissingScenarioSlots()) > 0 {
			triggers = append(triggers, reasonMissingScenarioSlots)
		}
		if ext.ScenarioConfidence != nil && *ext.ScenarioConfidence < cfg.ScenarioConfidenceMin {
			triggers = append(triggers, reasonLowScenarioConfidence)
		}
	}
	if ext.Top2Gap() < cfg.Top2GapMin {
		triggers = append(triggers, reasonNarrowTop2Gap)
	}
	if ext.Confidence < cfg.ConfidenceMin {
		triggers = append(triggers, reasonLowConfidence)
	}
	return triggers
}

func softClarifyNeeded(ext *intent.Extraction) bool {
	switch ext.Intent {
	case intent.IntentAllocation, intent.IntentPlanning, intent.IntentRisk:
		return ext.Slots[intent.SlotRiskAppetite] == ""
	}
	return false
}
