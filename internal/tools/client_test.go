package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vantage-fi/advisor/internal/circuitbreaker"
	"github.com/vantage-fi/advisor/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.ToolsConfig{
		BaseURL:   baseURL,
		Timeout:   2 * time.Second,
		RateLimit: 100,
		RateBurst: 100,
	}
	reg := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), zaptest.NewLogger(t))
	return NewClient(cfg, reg, zaptest.NewLogger(t))
}

func TestInvokeReturnsParsedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/spend-analytics", r.URL.Path)

		var body struct {
			UserID string             `json:"user_id"`
			Args   map[string]float64 `json:"args"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body.UserID)
		assert.Equal(t, 30.0, body.Args["window_days"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_spend_30d":  1250.5,
			"net_cashflow_30d": 320.0,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Invoke(context.Background(), ToolSpendAnalytics, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, ToolSpendAnalytics, res.Tool)
	assert.Equal(t, 1250.5, res.Output["total_spend_30d"])
}

func TestInvokeClampsArgumentsBeforeSending(t *testing.T) {
	var got map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Args map[string]float64 `json:"args"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body.Args
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), ToolAnomalySignals, "user-1", map[string]float64{
		"window_days": 9999, // above max, clamp to 180
		"sensitivity": -3,   // below min, clamp to 0.1
		"unknown_key": 1,    // dropped
	})
	require.NoError(t, err)
	assert.Equal(t, 180.0, got["window_days"])
	assert.InDelta(t, 0.1, got["sensitivity"], 1e-9)
	_, present := got["unknown_key"]
	assert.False(t, present)
}

func TestInvokeClassifies4xxAsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad window"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), ToolCashflowForecast, "user-1", nil)

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrKindValidation, ie.Kind)
	assert.False(t, ie.Retryable())
}

func TestInvokeClassifies5xxAsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), ToolRiskProfile, "user-1", nil)

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrKindTransport, ie.Kind)
	assert.True(t, ie.Retryable())
}

func TestInvokeClassifiesNonObjectAsSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), ToolRecurringDetect, "user-1", nil)

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrKindSchema, ie.Kind)
}

func TestInvokeUnknownToolFailsFast(t *testing.T) {
	c := newTestClient(t, "http://unused")
	_, err := c.Invoke(context.Background(), "no-such-tool", "user-1", nil)

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrKindValidation, ie.Kind)
}

func TestValidationFailuresDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := config.ToolsConfig{BaseURL: srv.URL, Timeout: time.Second, RateLimit: 100, RateBurst: 100}
	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		ProbeBudget:      1,
		OpenFor:          time.Minute,
		CountersReset:    time.Minute,
	}, zaptest.NewLogger(t))
	c := NewClient(cfg, reg, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		_, err := c.Invoke(context.Background(), ToolGoalFeasibility, "user-1", nil)
		var ie *InvocationError
		require.ErrorAs(t, err, &ie)
		require.NotEqual(t, ErrKindCircuitOpen, ie.Kind)
	}
	assert.Equal(t, circuitbreaker.StateClosed, reg.Get(ToolGoalFeasibility).State())
}

func TestTransportFailuresTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := config.ToolsConfig{BaseURL: srv.URL, Timeout: time.Second, RateLimit: 100, RateBurst: 100}
	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		ProbeBudget:      1,
		OpenFor:          time.Minute,
		CountersReset:    time.Minute,
	}, zaptest.NewLogger(t))
	c := NewClient(cfg, reg, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), ToolWhatIfScenario, "user-1", nil)
		require.Error(t, err)
	}

	_, err := c.Invoke(context.Background(), ToolWhatIfScenario, "user-1", nil)
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrKindCircuitOpen, ie.Kind)
}

func TestClampArgsDefaultsMissingParams(t *testing.T) {
	spec, ok := Lookup(ToolGoalFeasibility)
	require.True(t, ok)

	out := ClampArgs(spec, map[string]float64{"horizon_months": 240})
	assert.Equal(t, 120.0, out["horizon_months"])
	assert.Equal(t, 0.0, out["target_amount"])
}
