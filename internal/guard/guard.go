// Package guard evaluates the suitability policy that fences off personalized
// investment advice. The rules live in rego so compliance can change them
// without a code deploy; the engine only compiles, evaluates, and enforces.
package guard

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/metrics"
)

// Mode is the guard enforcement mode.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeDryRun  Mode = "dry-run"
	ModeEnforce Mode = "enforce"
)

const decisionQuery = "data.advisor.suitability.decision"

//go:embed suitability.rego
var defaultPolicy string

// Input is the policy evaluation context for one request.
type Input struct {
	SessionID    string   `json:"session_id"`
	UserID       string   `json:"user_id,omitempty"`
	Intent       string   `json:"intent"`
	SubIntent    string   `json:"sub_intent,omitempty"`
	ReasonCodes  []string `json:"reason_codes,omitempty"`
	RiskAppetite string   `json:"risk_appetite,omitempty"`
}

// Decision is the guard's verdict.
type Decision struct {
	Allow         bool   `json:"allow"`
	Reason        string `json:"reason,omitempty"`
	EffectiveMode Mode   `json:"effective_mode"`
	WouldDeny     bool   `json:"would_deny,omitempty"` // dry-run only
}

// Engine compiles the suitability policy once and evaluates it per request.
type Engine struct {
	cfg      config.GuardConfig
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
}

// New builds the engine from config. Policy files under cfg.PolicyPath
// override the embedded default; with fail_closed unset a broken policy
// directory degrades to the embedded policy, never to an outage.
func New(cfg config.GuardConfig, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		enabled: cfg.Enabled && Mode(cfg.Mode) != ModeOff,
	}
	if !e.enabled {
		logger.Warn("suitability guard disabled", zap.String("mode", cfg.Mode))
		return e, nil
	}
	if err := e.loadPolicies(); err != nil {
		if cfg.FailClosed {
			return nil, fmt.Errorf("load suitability policies: %w", err)
		}
		logger.Error("policy load failed, falling back to embedded policy", zap.Error(err))
		if err := e.compile(map[string]string{"suitability": defaultPolicy}); err != nil {
			return nil, fmt.Errorf("compile embedded policy: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) loadPolicies() error {
	modules := map[string]string{"suitability": defaultPolicy}

	if e.cfg.PolicyPath != "" {
		if _, err := os.Stat(e.cfg.PolicyPath); err == nil {
			loaded := map[string]string{}
			err := filepath.Walk(e.cfg.PolicyPath, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
					return nil
				}
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read policy %s: %w", path, err)
				}
				rel, _ := filepath.Rel(e.cfg.PolicyPath, path)
				loaded[strings.TrimSuffix(rel, ".rego")] = string(content)
				return nil
			})
			if err != nil {
				return err
			}
			if len(loaded) > 0 {
				modules = loaded
			}
		}
	}

	if err := e.compile(modules); err != nil {
		return err
	}
	e.logger.Info("suitability policies compiled",
		zap.Int("modules", len(modules)),
		zap.String("query", decisionQuery))
	return nil
}

func (e *Engine) compile(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, content := range modules {
		opts = append(opts, rego.Module(name, content))
	}
	compiled, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}
	e.compiled = &compiled
	return nil
}

// Enabled reports whether the engine will actually evaluate policies.
func (e *Engine) Enabled() bool { return e.enabled && e.compiled != nil }

// Mode returns the configured enforcement mode.
func (e *Engine) Mode() Mode { return Mode(e.cfg.Mode) }

// Evaluate runs the policy. Evaluation errors fail open unless fail_closed is
// set: an unavailable guard must not take down non-investment traffic.
func (e *Engine) Evaluate(ctx context.Context, in *Input) (*Decision, error) {
	start := time.Now()
	def := &Decision{Allow: !e.cfg.FailClosed, Reason: "guard_unavailable", EffectiveMode: e.Mode()}

	if !e.Enabled() {
		def.Reason = "guard_disabled"
		return def, nil
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		e.logger.Error("policy evaluation failed", zap.Error(err),
			zap.String("session_id", in.SessionID))
		if e.cfg.FailClosed {
			return &Decision{Allow: false, Reason: "policy_evaluation_error", EffectiveMode: e.Mode()}, err
		}
		return def, nil
	}

	d := parseResults(results)
	d.EffectiveMode = e.Mode()

	if !d.Allow {
		metrics.GuardDenials.WithLabelValues(d.Reason).Inc()
	}

	if e.Mode() == ModeDryRun && !d.Allow {
		e.logger.Info("dry-run: would deny",
			zap.String("reason", d.Reason),
			zap.String("intent", in.Intent),
			zap.String("session_id", in.SessionID))
		d.WouldDeny = true
		d.Allow = true
	}

	e.logger.Debug("suitability evaluated",
		zap.Bool("allow", d.Allow),
		zap.String("reason", d.Reason),
		zap.Duration("duration", time.Since(start)))
	return d, nil
}

func parseResults(results rego.ResultSet) *Decision {
	d := &Decision{Allow: false, Reason: "no_matching_rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return d
	}
	value := results[0].Expressions[0].Value
	if m, ok := value.(map[string]interface{}); ok {
		if allow, ok := m["allow"].(bool); ok {
			d.Allow = allow
		}
		if reason, ok := m["reason"].(string); ok {
			d.Reason = reason
		}
	} else if allow, ok := value.(bool); ok {
		d.Allow = allow
		d.Reason = "policy_boolean"
	}
	return d
}
