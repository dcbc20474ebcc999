package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/vantage-fi/advisor/internal/tools"
)

// Tool error types. Deterministic failures are marked non-retryable so the
// workflow's retry policy never burns attempts on them.
const (
	ErrTypeToolTransport  = "ToolTransportError"
	ErrTypeToolValidation = "ToolValidationError"
	ErrTypeToolSchema     = "ToolSchemaError"
	ErrTypeToolCircuit    = "ToolCircuitOpen"
)

// InvokeToolInput is one tool call within a fan-out.
type InvokeToolInput struct {
	Tool   string             `json:"tool"`
	UserID string             `json:"user_id"`
	Args   map[string]float64 `json:"args,omitempty"`
}

// InvokeToolResult is the documented output object of one tool.
type InvokeToolResult struct {
	Tool       string                 `json:"tool"`
	Output     map[string]interface{} `json:"output"`
	DurationMs int64                  `json:"duration_ms"`
}

// InvokeTool runs one analytics tool. Per-call transport timeout, argument
// clamping, rate limiting, and circuit breaking all live in the tool client.
func (a *Activities) InvokeTool(ctx context.Context, in InvokeToolInput) (*InvokeToolResult, error) {
	args := make(map[string]float64, len(in.Args))
	for k, v := range in.Args {
		args[k] = v
	}

	res, err := a.tools.Invoke(ctx, in.Tool, in.UserID, args)
	if err != nil {
		var ie *tools.InvocationError
		if errors.As(err, &ie) {
			switch ie.Kind {
			case tools.ErrKindValidation, tools.ErrKindSchema:
				return nil, temporal.NewNonRetryableApplicationError(
					ie.Message, toolErrType(ie.Kind), err)
			case tools.ErrKindCircuitOpen:
				return nil, temporal.NewNonRetryableApplicationError(
					ie.Message, ErrTypeToolCircuit, err)
			default:
				return nil, temporal.NewApplicationError(ie.Message, ErrTypeToolTransport)
			}
		}
		return nil, temporal.NewApplicationError(err.Error(), ErrTypeToolTransport)
	}

	return &InvokeToolResult{
		Tool:       res.Tool,
		Output:     res.Output,
		DurationMs: res.DurationMs,
	}, nil
}

func toolErrType(kind string) string {
	if kind == tools.ErrKindSchema {
		return ErrTypeToolSchema
	}
	return ErrTypeToolValidation
}
