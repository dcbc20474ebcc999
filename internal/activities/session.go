package activities

import (
	"context"
	"errors"
	"time"

	"github.com/vantage-fi/advisor/internal/session"
)

// SessionStateInput identifies one conversation.
type SessionStateInput struct {
	SessionID string `json:"session_id"`
}

// SessionStateResult carries the routing-relevant session state.
type SessionStateResult struct {
	ClarifyRound int    `json:"clarify_round"`
	RiskAppetite string `json:"risk_appetite,omitempty"`
}

// GetSessionState loads the clarification round and stored preferences. A
// missing session reads as a fresh conversation rather than an error.
func (a *Activities) GetSessionState(ctx context.Context, in SessionStateInput) (*SessionStateResult, error) {
	res := &SessionStateResult{}

	round, err := a.sessions.ClarifyRound(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	res.ClarifyRound = round

	s, err := a.sessions.Get(ctx, in.SessionID)
	switch {
	case err == nil:
		res.RiskAppetite = s.RiskAppetite
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
	default:
		return nil, err
	}
	return res, nil
}

// BumpClarifyInput marks one clarifying question as asked.
type BumpClarifyInput struct {
	SessionID string `json:"session_id"`
}

// BumpClarifyResult returns the new monotonic round count.
type BumpClarifyResult struct {
	Round int `json:"round"`
}

// BumpClarifyRound increments the conversation's clarification counter.
func (a *Activities) BumpClarifyRound(ctx context.Context, in BumpClarifyInput) (*BumpClarifyResult, error) {
	n, err := a.sessions.BumpClarifyRound(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	return &BumpClarifyResult{Round: n}, nil
}

// RecordTurnInput appends the completed exchange to session history and
// stores any newly declared risk appetite.
type RecordTurnInput struct {
	SessionID    string `json:"session_id"`
	Prompt       string `json:"prompt"`
	Response     string `json:"response"`
	Intent       string `json:"intent"`
	TraceID      string `json:"trace_id"`
	ClarifyUsed  bool   `json:"clarify_used"`
	RiskAppetite string `json:"risk_appetite,omitempty"`
}

// RecordTurn persists the turn. Best-effort from the workflow's point of
// view: a failure loses history, not the response.
func (a *Activities) RecordTurn(ctx context.Context, in RecordTurnInput) error {
	if in.RiskAppetite != "" {
		if err := a.sessions.SetRiskAppetite(ctx, in.SessionID, in.RiskAppetite); err != nil {
			return err
		}
	}
	return a.sessions.AppendTurn(ctx, in.SessionID, session.Turn{
		Prompt:      in.Prompt,
		Response:    in.Response,
		Intent:      in.Intent,
		TraceID:     in.TraceID,
		ClarifyUsed: in.ClarifyUsed,
		Timestamp:   time.Now(),
	})
}
