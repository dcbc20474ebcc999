// Package intent defines the structured intent extraction contract and the
// whitelisted heuristic overrides applied on top of extractor output.
package intent

import (
	"fmt"
)

// Intent is a resolved user intent category.
type Intent string

const (
	IntentSpending   Intent = "spending"
	IntentRisk       Intent = "risk"
	IntentForecast   Intent = "forecast"
	IntentPlanning   Intent = "planning"
	IntentAllocation Intent = "allocation"
	IntentScenario   Intent = "scenario"
	IntentRecurring  Intent = "recurring"
	IntentInvest     Intent = "invest"
	IntentOutOfScope Intent = "out_of_scope"
)

// knownIntents is the closed set the extractor may return.
var knownIntents = map[Intent]bool{
	IntentSpending:   true,
	IntentRisk:       true,
	IntentForecast:   true,
	IntentPlanning:   true,
	IntentAllocation: true,
	IntentScenario:   true,
	IntentRecurring:  true,
	IntentInvest:     true,
	IntentOutOfScope: true,
}

// Valid reports whether the intent is one of the closed set.
func (i Intent) Valid() bool { return knownIntents[i] }

// Candidate is one ranked intent hypothesis from the extractor.
type Candidate struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the structured output of the inference boundary for one prompt.
type Extraction struct {
	Intent             Intent            `json:"intent"`
	SubIntent          string            `json:"sub_intent,omitempty"`
	Confidence         float64           `json:"confidence"`
	DomainRelevance    float64           `json:"domain_relevance"`
	Candidates         []Candidate       `json:"candidates"` // exactly 2, ranked
	Slots              map[string]string `json:"slots,omitempty"`
	ScenarioConfidence *float64          `json:"scenario_confidence,omitempty"`
}

// RequiredScenarioSlots are the slots a scenario intent cannot run without.
var RequiredScenarioSlots = []string{"scenario_change"}

// SlotRiskAppetite is advisory only; its absence never gates execution.
const SlotRiskAppetite = "risk_appetite"

// Validate enforces the extraction schema before routing trusts it.
func (e *Extraction) Validate() error {
	if !e.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", e.Intent)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", e.Confidence)
	}
	if e.DomainRelevance < 0 || e.DomainRelevance > 1 {
		return fmt.Errorf("domain_relevance %v out of range", e.DomainRelevance)
	}
	if len(e.Candidates) != 2 {
		return fmt.Errorf("expected exactly 2 candidates, got %d", len(e.Candidates))
	}
	for i, c := range e.Candidates {
		if !c.Intent.Valid() {
			return fmt.Errorf("candidate %d has unknown intent %q", i, c.Intent)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("candidate %d confidence %v out of range", i, c.Confidence)
		}
	}
	if e.Candidates[0].Confidence < e.Candidates[1].Confidence {
		return fmt.Errorf("candidates not ranked")
	}
	if e.ScenarioConfidence != nil && (*e.ScenarioConfidence < 0 || *e.ScenarioConfidence > 1) {
		return fmt.Errorf("scenario_confidence %v out of range", *e.ScenarioConfidence)
	}
	return nil
}

// Top2Gap returns the confidence gap between the two ranked candidates.
func (e *Extraction) Top2Gap() float64 {
	if len(e.Candidates) != 2 {
		return 0
	}
	return e.Candidates[0].Confidence - e.Candidates[1].Confidence
}

// MissingScenarioSlots returns the required scenario slots absent or empty.
func (e *Extraction) MissingScenarioSlots() []string {
	var missing []string
	for _, slot := range RequiredScenarioSlots {
		if e.Slots[slot] == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}
