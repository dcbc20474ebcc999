package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vantage-fi/advisor/internal/config"
)

func newEnforceEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.GuardConfig{Enabled: true, Mode: "enforce"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.True(t, e.Enabled())
	return e
}

func TestEvaluateDeniesInvestmentIntent(t *testing.T) {
	e := newEnforceEngine(t)

	d, err := e.Evaluate(context.Background(), &Input{
		SessionID: "s-1",
		Intent:    "invest",
	})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, "personalized_security_recommendation", d.Reason)
}

func TestEvaluateDeniesSecurityPurchasePhrase(t *testing.T) {
	e := newEnforceEngine(t)

	d, err := e.Evaluate(context.Background(), &Input{
		SessionID:   "s-2",
		Intent:      "spending",
		ReasonCodes: []string{"override:security_purchase"},
	})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, "security_purchase_phrase", d.Reason)
}

func TestEvaluateAllowsNonInvestment(t *testing.T) {
	e := newEnforceEngine(t)

	d, err := e.Evaluate(context.Background(), &Input{
		SessionID: "s-3",
		Intent:    "forecast",
	})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Equal(t, "non_investment_request", d.Reason)
}

func TestDryRunAllowsButRecordsWouldDeny(t *testing.T) {
	e, err := New(config.GuardConfig{Enabled: true, Mode: "dry-run"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), &Input{
		SessionID: "s-4",
		Intent:    "invest",
	})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.True(t, d.WouldDeny)
	assert.Equal(t, ModeDryRun, d.EffectiveMode)
}

func TestDisabledEngineFailsOpen(t *testing.T) {
	e, err := New(config.GuardConfig{Enabled: false, Mode: "off"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, e.Enabled())

	d, err := e.Evaluate(context.Background(), &Input{Intent: "invest"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Equal(t, "guard_disabled", d.Reason)
}
