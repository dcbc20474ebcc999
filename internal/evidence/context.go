package evidence

// Citation is one knowledge-base snippet backing the answer.
type Citation struct {
	ID       string  `json:"id"`
	Snippet  string  `json:"snippet"`
	Citation string  `json:"citation"`
	Score    float64 `json:"score"`
}

// AdvisoryContext is the frozen bundle handed to the generator: the entire
// universe of truth an answer may draw from. Built once per request, after
// fan-out settles, and never mutated afterwards.
type AdvisoryContext struct {
	Facts       []Fact            `json:"facts"`
	Insights    []Insight         `json:"insights"`
	Actions     []Action          `json:"actions"`
	Citations   []Citation        `json:"citations"`
	PolicyFlags map[string]string `json:"policy_flags,omitempty"`
}

// Build assembles the advisory context from fan-out output.
func Build(outputs map[string]map[string]interface{}, riskAppetite string, citations []Citation, policyFlags map[string]string) *AdvisoryContext {
	facts := ExtractFacts(outputs)
	insights := DeriveInsights(facts)
	return &AdvisoryContext{
		Facts:       facts,
		Insights:    insights,
		Actions:     BuildActions(insights, riskAppetite),
		Citations:   citations,
		PolicyFlags: policyFlags,
	}
}

// Fact returns the fact with the given ID, if present.
func (c *AdvisoryContext) Fact(id string) (Fact, bool) {
	for _, f := range c.Facts {
		if f.FactID == id {
			return f, true
		}
	}
	return Fact{}, false
}

// HasInsight reports whether the insight ID exists in the context.
func (c *AdvisoryContext) HasInsight(id string) bool {
	for _, in := range c.Insights {
		if in.InsightID == id {
			return true
		}
	}
	return false
}

// ActionByID returns the action with the given ID, if present.
func (c *AdvisoryContext) ActionByID(id string) (Action, bool) {
	for _, a := range c.Actions {
		if a.ActionID == id {
			return a, true
		}
	}
	return Action{}, false
}

// TopFacts returns up to n facts ordered by fact_id; used by the fallback
// renderer, which needs a deterministic selection.
func (c *AdvisoryContext) TopFacts(n int) []Fact {
	if n > len(c.Facts) {
		n = len(c.Facts)
	}
	out := make([]Fact, n)
	copy(out, c.Facts[:n])
	return out
}
