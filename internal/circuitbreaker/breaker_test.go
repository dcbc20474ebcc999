package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ProbeBudget:      3,
		OpenFor:          20 * time.Millisecond,
		CountersReset:    time.Minute,
	}
}

var errDownstream = errors.New("downstream unavailable")

func fail(context.Context) error { return errDownstream }
func ok(context.Context) error   { return nil }

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("spend-analytics", testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(ctx, fail), errDownstream)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Do(ctx, fail), ErrOpen)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New("spend-analytics", testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	require.Error(t, b.Do(ctx, fail))
	require.Error(t, b.Do(ctx, fail))
	require.NoError(t, b.Do(ctx, ok))
	require.Error(t, b.Do(ctx, fail))
	require.Error(t, b.Do(ctx, fail))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	b := New("cashflow-forecast", testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(ctx, ok))
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("anomaly-signals", testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, b.Do(ctx, fail), errDownstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestRegistryIsolatesDependencies(t *testing.T) {
	r := NewRegistry(testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	bad := r.Get("what-if-scenario")
	good := r.Get("spend-analytics")
	assert.Same(t, bad, r.Get("what-if-scenario"))

	for i := 0; i < 3; i++ {
		_ = bad.Do(ctx, fail)
	}
	assert.Equal(t, StateOpen, bad.State())
	assert.Equal(t, StateClosed, good.State())
	assert.NoError(t, good.Do(ctx, ok))
}
