package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vantage-fi/advisor/internal/circuitbreaker"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/metrics"
)

// Error kinds recorded per failed tool invocation. The pipeline keys partial
// failure handling off these, never off raw error strings.
const (
	ErrKindTransport   = "transport"
	ErrKindTimeout     = "timeout"
	ErrKindValidation  = "validation"
	ErrKindSchema      = "schema"
	ErrKindRateLimited = "rate_limited"
	ErrKindCircuitOpen = "circuit_open"
	ErrKindUnknown     = "unknown"
)

// InvocationError carries the classification alongside the cause.
type InvocationError struct {
	Tool    string
	Kind    string
	Message string
	cause   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Message)
}

func (e *InvocationError) Unwrap() error { return e.cause }

// Retryable reports whether a retry could plausibly change the outcome.
// Validation and schema failures are deterministic; retrying burns budget.
func (e *InvocationError) Retryable() bool {
	switch e.Kind {
	case ErrKindValidation, ErrKindSchema, ErrKindCircuitOpen:
		return false
	}
	return true
}

// Result is one tool's output, documented fields only.
type Result struct {
	Tool       string                 `json:"tool"`
	Output     map[string]interface{} `json:"output"`
	DurationMs int64                  `json:"duration_ms"`
}

// Client invokes analytics tools over HTTP with per-tool rate limiting and
// circuit breaking. Tool internals stay opaque: the client returns the parsed
// JSON object and nothing else.
type Client struct {
	cfg      config.ToolsConfig
	http     *http.Client
	logger   *zap.Logger
	breakers *circuitbreaker.Registry

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds the tool client.
func NewClient(cfg config.ToolsConfig, breakers *circuitbreaker.Registry, logger *zap.Logger) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		breakers: breakers,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Invoke calls one tool by stable name on behalf of userID. Arguments are
// clamped to the catalog's parameter bounds before the request leaves the
// process.
func (c *Client) Invoke(ctx context.Context, tool, userID string, args map[string]float64) (*Result, error) {
	spec, ok := Lookup(tool)
	if !ok {
		return nil, &InvocationError{Tool: tool, Kind: ErrKindValidation,
			Message: "unknown tool name"}
	}

	if !c.limiter(tool).Allow() {
		metrics.RecordToolMetrics(tool, "rate_limited", 0)
		return nil, &InvocationError{Tool: tool, Kind: ErrKindRateLimited,
			Message: "per-tool rate limit exceeded"}
	}

	clamped := ClampArgs(spec, args)
	start := time.Now()

	var (
		res          *Result
		nonRetryable *InvocationError
	)
	err := c.breakers.Get(tool).Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.post(ctx, tool, spec, userID, clamped)
		if err != nil {
			var ie *InvocationError
			// Deterministic failures must not trip the breaker.
			if errors.As(err, &ie) && !ie.Retryable() {
				nonRetryable = ie
				return nil
			}
		}
		return err
	})
	elapsed := time.Since(start)

	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrProbeBudget) {
		metrics.RecordToolMetrics(tool, "circuit_open", 0)
		return nil, &InvocationError{Tool: tool, Kind: ErrKindCircuitOpen,
			Message: "circuit breaker open", cause: err}
	}
	if err == nil && nonRetryable != nil {
		err = nonRetryable
	}
	if err != nil {
		kind := ErrKindUnknown
		var ie *InvocationError
		if errors.As(err, &ie) {
			kind = ie.Kind
		}
		metrics.RecordToolMetrics(tool, kind, elapsed.Seconds())
		c.logger.Warn("tool invocation failed",
			zap.String("tool", tool),
			zap.String("kind", kind),
			zap.Error(err))
		return nil, err
	}

	res.DurationMs = elapsed.Milliseconds()
	metrics.RecordToolMetrics(tool, "ok", elapsed.Seconds())
	return res, nil
}

func (c *Client) post(ctx context.Context, tool string, spec Spec, userID string, args map[string]float64) (*Result, error) {
	// Tools scope their analytics to the caller; user_id travels with every
	// request alongside the clamped numeric arguments.
	body, err := json.Marshal(map[string]interface{}{"user_id": userID, "args": args})
	if err != nil {
		return nil, &InvocationError{Tool: tool, Kind: ErrKindValidation,
			Message: "marshal request", cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+spec.Path, bytes.NewReader(body))
	if err != nil {
		return nil, &InvocationError{Tool: tool, Kind: ErrKindTransport,
			Message: "build request", cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		kind := ErrKindTransport
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = ErrKindTimeout
		}
		return nil, &InvocationError{Tool: tool, Kind: kind,
			Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &InvocationError{Tool: tool, Kind: ErrKindTransport,
			Message: "read response", cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &InvocationError{Tool: tool, Kind: ErrKindValidation,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, 200))}
	default:
		return nil, &InvocationError{Tool: tool, Kind: ErrKindTransport,
			Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &InvocationError{Tool: tool, Kind: ErrKindSchema,
			Message: "response is not a JSON object", cause: err}
	}
	return &Result{Tool: tool, Output: out}, nil
}

func (c *Client) limiter(tool string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[tool]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RateLimit), c.cfg.RateBurst)
		c.limiters[tool] = l
	}
	return l
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
