package workflows

import (
	"errors"
	"sort"
	"strconv"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/vantage-fi/advisor/internal/activities"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/intent"
	"github.com/vantage-fi/advisor/internal/metrics"
)

// ToolError is the recorded outcome of a tool call that produced no output.
type ToolError struct {
	Tool      string `json:"tool"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// fanoutResult aggregates a settled fan-out. Outputs holds one entry per
// successful tool; Errors one per failed or timed-out tool. The two sets are
// disjoint and together cover the bundle.
type fanoutResult struct {
	Outputs map[string]map[string]interface{}
	Errors  []ToolError
}

// runFanout executes the tool bundle in parallel, bounded by the worker
// budget, and settles within the fan-out deadline. Per-tool failures are
// recorded and tolerated; only an empty bundle or total loss is the caller's
// problem.
func runFanout(ctx workflow.Context, in AdvisoryInput, bundle []string, ext *intent.Extraction, cfg *config.Config) fanoutResult {
	res := fanoutResult{Outputs: make(map[string]map[string]interface{}, len(bundle))}
	if len(bundle) == 0 {
		return res
	}

	logger := workflow.GetLogger(ctx)

	workers := cfg.Fanout.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(bundle) {
		workers = len(bundle)
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: cfg.Tools.Timeout + cfg.Inference.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    cfg.Tools.RetryBase,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    int32(cfg.Tools.MaxRetries + 1),
			NonRetryableErrorTypes: []string{
				activities.ErrTypeToolValidation,
				activities.ErrTypeToolSchema,
				activities.ErrTypeToolCircuit,
			},
		},
	}
	actCtx := workflow.WithActivityOptions(ctx, actOpts)

	args := toolArgs(ext)

	type slot struct {
		output map[string]interface{}
		err    error
		done   bool
	}
	slots := make([]slot, len(bundle))
	completed := 0

	// Stragglers past the deadline are abandoned, not joined: their slots
	// surface as timeout errors below.
	sem := workflow.NewSemaphore(ctx, int64(workers))
	for i := range bundle {
		i := i
		tool := bundle[i]
		workflow.Go(ctx, func(gctx workflow.Context) {
			if err := sem.Acquire(gctx, 1); err != nil {
				slots[i].err = err
				slots[i].done = true
				completed++
				return
			}
			defer sem.Release(1)

			var out activities.InvokeToolResult
			err := workflow.ExecuteActivity(actCtx, "InvokeTool", activities.InvokeToolInput{
				Tool:   tool,
				UserID: in.UserID,
				Args:   args,
			}).Get(gctx, &out)
			if err != nil {
				slots[i].err = err
			} else {
				slots[i].output = out.Output
			}
			slots[i].done = true
			completed++
		})
	}

	ok, _ := workflow.AwaitWithTimeout(ctx, cfg.Fanout.Timeout, func() bool {
		return completed == len(bundle)
	})
	if !ok {
		logger.Warn("tool fan-out deadline reached with calls outstanding",
			"completed", completed, "bundle", len(bundle))
	}

	for i, tool := range bundle {
		s := slots[i]
		switch {
		case !s.done:
			res.Errors = append(res.Errors, ToolError{
				Tool:      tool,
				ErrorKind: "timeout",
				Message:   "fan-out deadline exceeded",
			})
		case s.err != nil:
			res.Errors = append(res.Errors, ToolError{
				Tool:      tool,
				ErrorKind: errorKind(s.err),
				Message:   s.err.Error(),
			})
		default:
			res.Outputs[tool] = s.output
		}
	}
	sort.Slice(res.Errors, func(a, b int) bool { return res.Errors[a].Tool < res.Errors[b].Tool })

	if len(res.Errors) > 0 {
		metrics.FanoutPartialFailures.Inc()
	}
	return res
}

// toolArgs lifts numeric slot values into tool arguments. Non-numeric slots
// stay with the prompt; per-tool clamping drops anything a tool's schema does
// not name.
func toolArgs(ext *intent.Extraction) map[string]float64 {
	if ext == nil {
		return nil
	}
	args := make(map[string]float64)
	for k, v := range ext.Slots {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		args[k] = f
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// errorKind maps an activity failure to the recorded error taxonomy.
func errorKind(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case activities.ErrTypeToolValidation:
			return "validation"
		case activities.ErrTypeToolSchema:
			return "schema"
		case activities.ErrTypeToolCircuit:
			return "circuit_open"
		case activities.ErrTypeToolTransport:
			return "transport"
		}
	}
	if temporal.IsTimeoutError(err) {
		return "timeout"
	}
	return "unknown"
}
