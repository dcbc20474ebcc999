// Package activities holds the Temporal activities of the advisory pipeline:
// every network call the workflow makes lives here. Pure decision logic stays
// in the workflow; activities only move bytes and classify failures.
package activities

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/audit"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/guard"
	"github.com/vantage-fi/advisor/internal/session"
	"github.com/vantage-fi/advisor/internal/tools"
)

// Activities bundles the dependencies activities need.
type Activities struct {
	cfg      *config.Config
	logger   *zap.Logger
	tools    *tools.Client
	sessions *session.Manager
	auditor  *audit.Writer
	guard    *guard.Engine

	inferenceHTTP *http.Client
	knowledgeHTTP *http.Client
}

// NewActivities wires the activity set. auditor may be nil when audit is
// disabled; guard may be nil only in tests.
func NewActivities(
	cfg *config.Config,
	toolClient *tools.Client,
	sessions *session.Manager,
	auditor *audit.Writer,
	guardEngine *guard.Engine,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		cfg:           cfg,
		logger:        logger,
		tools:         toolClient,
		sessions:      sessions,
		auditor:       auditor,
		guard:         guardEngine,
		inferenceHTTP: &http.Client{Timeout: cfg.Inference.Timeout},
		knowledgeHTTP: &http.Client{Timeout: cfg.Knowledge.Timeout},
	}
}
