package intent

import (
	"strings"

	"github.com/vantage-fi/advisor/internal/metrics"
)

// overrideRule corrects a known extractor mistake on strong lexical evidence.
// Rules are evaluated in order; the first match wins.
type overrideRule struct {
	reason   string
	target   Intent
	phrases  []string
	applies  func(e *Extraction) bool // extra guard beyond phrase match
}

// overrideRules is the whitelisted correction table. Adding a rule never
// requires touching control flow.
var overrideRules = []overrideRule{
	{
		reason: "override:anomaly_phrase",
		target: IntentRisk,
		phrases: []string{
			"anomaly", "anomalies", "unusual charge", "unusual transaction",
			"suspicious", "fraud", "flagged", "didn't recognize", "did not recognize",
		},
		applies: func(e *Extraction) bool { return e.Intent != IntentRisk },
	},
	{
		reason: "override:what_if_phrase",
		target: IntentScenario,
		phrases: []string{
			"what if", "what happens if", "suppose i", "would it work if",
		},
		applies: func(e *Extraction) bool { return e.Intent != IntentScenario },
	},
	{
		reason: "override:recurring_phrase",
		target: IntentRecurring,
		phrases: []string{
			"subscription", "subscriptions", "recurring payment", "recurring bill",
			"every month i pay", "monthly bill",
		},
		applies: func(e *Extraction) bool {
			return e.Intent != IntentRecurring && e.Intent != IntentSpending
		},
	},
	{
		reason: "override:security_purchase",
		target: IntentInvest,
		phrases: []string{
			"buy stock", "buy stocks", "buy shares", "which stock", "which etf",
			"invest in stock", "crypto to buy", "coin to buy",
		},
		applies: func(e *Extraction) bool { return e.Intent != IntentInvest },
	},
}

// ApplyOverrides runs the heuristic layer over the extraction. The normalized
// prompt must already be lowercase-folded admission output. Every fired rule
// appends its named reason code.
func ApplyOverrides(e *Extraction, normalizedPrompt string) (*Extraction, []string) {
	prompt := strings.ToLower(normalizedPrompt)
	var reasons []string
	for _, rule := range overrideRules {
		if !rule.applies(e) {
			continue
		}
		if !containsAny(prompt, rule.phrases) {
			continue
		}
		out := *e
		out.Intent = rule.target
		reasons = append(reasons, rule.reason)
		metrics.IntentOverrides.WithLabelValues(rule.reason).Inc()
		return &out, reasons
	}
	return e, reasons
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
