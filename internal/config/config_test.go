package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreComplete(t *testing.T) {
	c := Default()

	assert.Equal(t, 0.60, c.Routing.ConfidenceMin)
	assert.Equal(t, 0.15, c.Routing.Top2GapMin)
	assert.Equal(t, 2, c.Routing.MaxClarifyQuestions)
	assert.Equal(t, 4, c.Fanout.MaxWorkers)
	assert.Equal(t, 20*time.Second, c.Fanout.Timeout)
	assert.Equal(t, 2, c.Synthesis.MaxAttempts)
	assert.Equal(t, 1, c.Synthesis.MaxRepairs)
	assert.True(t, c.Guard.Enabled)
	assert.Equal(t, "enforce", c.Guard.Mode)
	assert.False(t, c.Guard.FailClosed)

	// The admission score cannot exceed 0.5; both thresholds must sit below.
	assert.Less(t, c.Admission.FailFastThreshold, 0.5)
	assert.Less(t, c.Admission.RepairThreshold, c.Admission.FailFastThreshold)
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routing:
  confidence_min: 0.75
  max_clarify_questions: 1
guard:
  mode: dry-run
`), 0o644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("JWT_SIGNING_KEY", "secret")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.75, c.Routing.ConfidenceMin)
	assert.Equal(t, 1, c.Routing.MaxClarifyQuestions)
	assert.Equal(t, "dry-run", c.Guard.Mode)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.15, c.Routing.Top2GapMin)
	// Env wins over both file and defaults.
	assert.Equal(t, "localhost:6380", c.Session.RedisAddr)
	assert.Equal(t, "secret", c.Auth.SigningKey)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.60, c.Routing.ConfidenceMin)
}
