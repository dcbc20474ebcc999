package activities

import (
	"context"

	"github.com/vantage-fi/advisor/internal/audit"
)

// PersistAuditInput is the per-turn audit payload.
type PersistAuditInput struct {
	TraceID   string                 `json:"trace_id"`
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id"`
	Intent    string                 `json:"intent"`
	Mode      string                 `json:"mode"`
	Payload   map[string]interface{} `json:"payload"`
}

// PersistAudit enqueues the audit record. Always succeeds from the caller's
// perspective; the writer swallows downstream failures.
func (a *Activities) PersistAudit(ctx context.Context, in PersistAuditInput) error {
	if a.auditor == nil {
		return nil
	}
	a.auditor.Enqueue(audit.Record{
		TraceID:   in.TraceID,
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Intent:    in.Intent,
		Mode:      in.Mode,
		Payload:   audit.JSONB(in.Payload),
	})
	return nil
}
