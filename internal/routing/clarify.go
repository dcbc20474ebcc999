package routing

import (
	"fmt"
	"strings"

	"github.com/vantage-fi/advisor/internal/intent"
)

// Clarification reason codes. Hard triggers gate tool execution; the single
// soft code is advisory and never gates.
const (
	reasonExtractionFailed      = "clarify:extraction_failed"
	reasonOutOfDomain           = "clarify:out_of_domain"
	reasonMissingScenarioSlots  = "clarify:missing_scenario_slots"
	reasonLowScenarioConfidence = "clarify:low_scenario_confidence"
	reasonNarrowTop2Gap         = "clarify:narrow_top2_gap"
	reasonLowConfidence         = "clarify:low_confidence"

	reasonSoftRiskAppetite = "clarify_soft:risk_appetite_unknown"
)

// questionPrecedence fixes which reason wins when several triggers fire.
// Exactly one question is asked per round.
var questionPrecedence = []string{
	reasonExtractionFailed,
	reasonOutOfDomain,
	reasonMissingScenarioSlots,
	reasonLowScenarioConfidence,
	reasonNarrowTop2Gap,
	reasonLowConfidence,
}

// Question is one clarifying question with a closed, bounded option list.
type Question struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Reason  string   `json:"reason"`
}

// intentLabels render intents as user-facing choices.
var intentLabels = map[intent.Intent]string{
	intent.IntentSpending:   "review my spending",
	intent.IntentRisk:       "check unusual activity and risk",
	intent.IntentForecast:   "forecast my cash flow",
	intent.IntentPlanning:   "check a savings goal",
	intent.IntentAllocation: "split my income into jars",
	intent.IntentScenario:   "simulate a what-if change",
	intent.IntentRecurring:  "review recurring payments",
	intent.IntentInvest:     "get an investment recommendation",
	intent.IntentOutOfScope: "something else",
}

// questionFor picks the single question for the fired triggers by fixed
// precedence.
func questionFor(triggers []string, ext *intent.Extraction) Question {
	fired := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		fired[t] = true
	}
	for _, reason := range questionPrecedence {
		if fired[reason] {
			return questionForReason(reason, ext)
		}
	}
	// Unreachable when triggers is non-empty; keep a safe default.
	return questionForReason(reasonLowConfidence, ext)
}

func questionForReason(reason string, ext *intent.Extraction) Question {
	switch reason {
	case reasonExtractionFailed:
		return Question{
			Text:    "I couldn't work out what you'd like me to do. Could you pick the closest option?",
			Options: allIntentOptions(),
			Reason:  reason,
		}
	case reasonOutOfDomain:
		return Question{
			Text:    "That looks outside personal-finance territory. Did you mean one of these?",
			Options: allIntentOptions(),
			Reason:  reason,
		}
	case reasonMissingScenarioSlots:
		missing := ext.MissingScenarioSlots()
		return Question{
			Text:    fmt.Sprintf("To simulate that, I still need: %s. What change should I apply?", strings.Join(missing, ", ")),
			Options: []string{"change my income", "change an expense", "one-off payment"},
			Reason:  reason,
		}
	case reasonLowScenarioConfidence:
		return Question{
			Text:    "I'm not sure which scenario you want to simulate. Which is closest?",
			Options: []string{"income change", "expense change", "one-off purchase", "different goal"},
			Reason:  reason,
		}
	case reasonNarrowTop2Gap:
		// The option list is limited to exactly the two ranked candidates.
		opts := make([]string, 0, 2)
		for _, c := range ext.Candidates {
			opts = append(opts, intentLabels[c.Intent])
		}
		return Question{
			Text:    "I can read your request two ways. Which did you mean?",
			Options: opts,
			Reason:  reason,
		}
	default: // reasonLowConfidence
		return Question{
			Text:    "Just to be sure I help with the right thing, which of these fits best?",
			Options: allIntentOptions(),
			Reason:  reasonLowConfidence,
		}
	}
}

func allIntentOptions() []string {
	// Stable order, investment intentionally omitted: the guard owns that path.
	ordered := []intent.Intent{
		intent.IntentSpending, intent.IntentRisk, intent.IntentForecast,
		intent.IntentPlanning, intent.IntentAllocation, intent.IntentScenario,
		intent.IntentRecurring,
	}
	opts := make([]string, 0, len(ordered))
	for _, it := range ordered {
		opts = append(opts, intentLabels[it])
	}
	return opts
}
