package activities

import (
	"context"

	"github.com/vantage-fi/advisor/internal/guard"
)

// CheckSuitabilityInput is the policy context for one request.
type CheckSuitabilityInput struct {
	SessionID    string   `json:"session_id"`
	UserID       string   `json:"user_id"`
	Intent       string   `json:"intent"`
	SubIntent    string   `json:"sub_intent,omitempty"`
	ReasonCodes  []string `json:"reason_codes,omitempty"`
	RiskAppetite string   `json:"risk_appetite,omitempty"`
}

// CheckSuitabilityResult is the guard verdict.
type CheckSuitabilityResult struct {
	Allow         bool   `json:"allow"`
	Reason        string `json:"reason,omitempty"`
	EffectiveMode string `json:"effective_mode"`
	WouldDeny     bool   `json:"would_deny,omitempty"`
}

// CheckSuitability evaluates the suitability policy. Runs before any
// analytics tool is invoked; a denial short-circuits to the refusal
// template.
func (a *Activities) CheckSuitability(ctx context.Context, in CheckSuitabilityInput) (*CheckSuitabilityResult, error) {
	d, err := a.guard.Evaluate(ctx, &guard.Input{
		SessionID:    in.SessionID,
		UserID:       in.UserID,
		Intent:       in.Intent,
		SubIntent:    in.SubIntent,
		ReasonCodes:  in.ReasonCodes,
		RiskAppetite: in.RiskAppetite,
	})
	if err != nil {
		// Evaluate already applied the fail-open/fail-closed default.
		a.logger.Warn("suitability evaluation degraded")
	}
	return &CheckSuitabilityResult{
		Allow:         d.Allow,
		Reason:        d.Reason,
		EffectiveMode: string(d.EffectiveMode),
		WouldDeny:     d.WouldDeny,
	}, nil
}
