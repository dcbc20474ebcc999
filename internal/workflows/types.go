// Package workflows contains the advisory pipeline as a single Temporal
// workflow. Deterministic stages (admission, overrides, routing, derivation,
// grounding, rendering) run inline; everything that touches the network runs
// as an activity.
package workflows

import (
	"github.com/vantage-fi/advisor/internal/evidence"
	"github.com/vantage-fi/advisor/internal/routing"
)

// Task queue shared by worker and starters.
const TaskQueue = "advisor-pipeline"

// AdvisoryInput starts one advisory turn.
type AdvisoryInput struct {
	Prompt    string `json:"prompt"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	TraceID   string `json:"trace_id"`
}

// AdvisoryResult is everything the API surface returns for one turn.
type AdvisoryResult struct {
	Response           string              `json:"response"`
	TraceID            string              `json:"trace_id"`
	SessionID          string              `json:"session_id"`
	Mode               string              `json:"mode"` // final | clarify | refuse | fail_fast
	Intent             string              `json:"intent,omitempty"`
	ClarifyNeeded      bool                `json:"clarify_needed"`
	ClarifyingQuestion *routing.Question   `json:"clarifying_question,omitempty"`
	Citations          []evidence.Citation `json:"citations,omitempty"`
	InvokedTools       []string            `json:"invoked_tools,omitempty"`
	ReasonCodes        []string            `json:"reason_codes,omitempty"`
	FallbackUsed       string              `json:"fallback_used,omitempty"`
	Metadata           map[string]string   `json:"metadata,omitempty"`
}

// Modes of a finished turn.
const (
	ModeFinal    = "final"
	ModeClarify  = "clarify"
	ModeRefuse   = "refuse"
	ModeFailFast = "fail_fast"
)

// Fallback markers beyond the router's clarify_exhausted.
const (
	FallbackSynthesis  = "synthesis_fallback"
	FallbackNoEvidence = "no_evidence"
)

// pipelineState threads one request through the stages. Once Response is
// non-empty every later stage is a no-op; helpers must check responded()
// before doing work.
type pipelineState struct {
	input      AdvisoryInput
	normalized string
	round      int
	appetite   string

	result AdvisoryResult
}

func (s *pipelineState) responded() bool { return s.result.Response != "" }

// respond sets the terminal response exactly once.
func (s *pipelineState) respond(mode, text string) {
	if s.responded() {
		return
	}
	s.result.Mode = mode
	s.result.Response = text
}

func (s *pipelineState) addReasons(codes ...string) {
	s.result.ReasonCodes = append(s.result.ReasonCodes, codes...)
}

func (s *pipelineState) setMeta(key, value string) {
	if s.result.Metadata == nil {
		s.result.Metadata = map[string]string{}
	}
	s.result.Metadata[key] = value
}
