package workflows

import (
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/vantage-fi/advisor/internal/activities"
	"github.com/vantage-fi/advisor/internal/admission"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/evidence"
	"github.com/vantage-fi/advisor/internal/grounding"
	"github.com/vantage-fi/advisor/internal/intent"
	"github.com/vantage-fi/advisor/internal/render"
	"github.com/vantage-fi/advisor/internal/routing"
	"github.com/vantage-fi/advisor/internal/synthesis"
	"github.com/vantage-fi/advisor/internal/tools"
)

// Workflows carries the immutable configuration into workflow code. Config is
// loaded once per process; changing it requires a redeploy, which keeps
// replays consistent within a deployment.
type Workflows struct {
	cfg *config.Config
}

// NewWorkflows builds the workflow set around one configuration.
func NewWorkflows(cfg *config.Config) *Workflows {
	return &Workflows{cfg: cfg}
}

// AdvisoryWorkflow runs one advisory turn end to end: admission, intent
// routing with bounded clarification, the suitability guard, tool fan-out,
// evidence derivation, grounded synthesis, and best-effort persistence.
// Exactly one terminal response is produced per run.
func (w *Workflows) AdvisoryWorkflow(ctx workflow.Context, in AdvisoryInput) (*AdvisoryResult, error) {
	logger := workflow.GetLogger(ctx)

	if in.TraceID == "" {
		in.TraceID = workflow.GetInfo(ctx).WorkflowExecution.RunID
	}
	st := &pipelineState{input: in}
	st.result.TraceID = in.TraceID
	st.result.SessionID = in.SessionID

	// Admission gate. Pure, runs inline.
	gate := admission.Evaluate(in.Prompt, admission.Thresholds{
		Repair:   w.cfg.Admission.RepairThreshold,
		FailFast: w.cfg.Admission.FailFastThreshold,
		MinDelta: w.cfg.Admission.MinRepairDelta,
	})
	st.addReasons(gate.ReasonCodes...)
	st.setMeta("admission_decision", string(gate.Decision))
	if gate.Decision == admission.DecisionFailFast {
		logger.Info("admission rejected input", "score", gate.MojibakeScore)
		st.respond(ModeFailFast, admission.FailFastMessage)
		w.persist(ctx, st, nil)
		return &st.result, nil
	}
	st.normalized = gate.Text

	// Session state: clarification round already spent, stored preferences.
	var sess activities.SessionStateResult
	if err := workflow.ExecuteActivity(w.shortCtx(ctx), "GetSessionState",
		activities.SessionStateInput{SessionID: in.SessionID}).Get(ctx, &sess); err != nil {
		// A session store outage degrades to a fresh conversation.
		logger.Warn("session state unavailable", "error", err)
	}
	st.round = sess.ClarifyRound
	st.appetite = sess.RiskAppetite

	// Intent extraction, bounded retries, then routing. An unusable
	// extraction forces out_of_scope; the router never guesses.
	decision, ext := w.routeIntent(ctx, st)
	st.result.Intent = string(decision.FinalIntent)
	st.addReasons(decision.ReasonCodes...)
	if decision.FallbackUsed != "" {
		st.result.FallbackUsed = decision.FallbackUsed
	}
	st.setMeta("policy_version", decision.PolicyVersion)
	st.setMeta("route_source", string(decision.Source))

	if ext != nil && ext.Slots[intent.SlotRiskAppetite] != "" {
		st.appetite = ext.Slots[intent.SlotRiskAppetite]
	}

	if decision.ClarifyNeeded {
		w.askClarification(ctx, st, decision)
		w.persist(ctx, st, nil)
		return &st.result, nil
	}

	// Suitability guard rules before any analytics tool runs.
	guardRes := w.checkGuard(ctx, st, ext)
	if !guardRes.Allow {
		st.addReasons("guard:" + guardRes.Reason)
		st.respond(ModeRefuse, render.RefusalText)
		w.persist(ctx, st, nil)
		return &st.result, nil
	}
	policyFlags := map[string]string{
		"suitability": "allow",
		"guard_mode":  guardRes.EffectiveMode,
	}
	if guardRes.WouldDeny {
		policyFlags["suitability_dry_run"] = "would_deny"
		st.addReasons("guard_dry_run:" + guardRes.Reason)
	}

	// Parallel tool fan-out. Per-tool failures are recorded and tolerated.
	st.result.InvokedTools = decision.ToolBundle
	bundle := analyticsOnly(decision.ToolBundle)
	fan := runFanout(ctx, in, bundle, ext, w.cfg)
	for _, te := range fan.Errors {
		st.addReasons("tool_error:" + te.Tool)
	}

	// Citations enrich, never gate.
	var cites activities.FetchCitationsResult
	if err := workflow.ExecuteActivity(w.shortCtx(ctx), "FetchCitations",
		activities.FetchCitationsInput{Query: st.normalized}).Get(ctx, &cites); err != nil {
		logger.Warn("citation fetch failed", "error", err)
	}

	advCtx := evidence.Build(fan.Outputs, st.appetite, cites.Citations, policyFlags)
	st.result.Citations = advCtx.Citations

	if len(advCtx.Facts) == 0 {
		// Nothing to ground an answer on; generation would only invent.
		if st.result.FallbackUsed != "" {
			st.addReasons("fallback:" + st.result.FallbackUsed)
		}
		st.result.FallbackUsed = FallbackNoEvidence
		st.respond(ModeFinal, render.Fallback(advCtx))
		w.persist(ctx, st, fan.Errors)
		return &st.result, nil
	}

	w.synthesize(ctx, st, advCtx)
	w.persist(ctx, st, fan.Errors)
	return &st.result, nil
}

// routeIntent runs extraction with its attempt budget and applies the
// override and routing layers. Returns a nil extraction only on the forced
// out_of_scope path.
func (w *Workflows) routeIntent(ctx workflow.Context, st *pipelineState) (routing.Decision, *intent.Extraction) {
	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.Inference.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    int32(w.cfg.Routing.ExtractorMaxAttempts),
		},
	})

	var res activities.ExtractIntentResult
	err := workflow.ExecuteActivity(actCtx, "ExtractIntent",
		activities.ExtractIntentInput{Prompt: st.normalized}).Get(ctx, &res)
	if err != nil || res.Extraction == nil {
		workflow.GetLogger(ctx).Warn("intent extraction unusable", "error", err)
		return routing.ForceOutOfScope("clarify:extraction_failed", st.round, w.cfg.Routing), nil
	}

	ext, overrideReasons := intent.ApplyOverrides(res.Extraction, strings.ToLower(st.normalized))
	return routing.Decide(ext, overrideReasons, st.round, w.cfg.Routing), ext
}

// askClarification bumps the monotonic round counter and turns the question
// into the terminal response for this turn.
func (w *Workflows) askClarification(ctx workflow.Context, st *pipelineState, d routing.Decision) {
	var bump activities.BumpClarifyResult
	if err := workflow.ExecuteActivity(w.shortCtx(ctx), "BumpClarifyRound",
		activities.BumpClarifyInput{SessionID: st.input.SessionID}).Get(ctx, &bump); err != nil {
		workflow.GetLogger(ctx).Warn("clarify round bump failed", "error", err)
	}

	q := d.ClarifyingQuestion
	st.result.ClarifyNeeded = true
	st.result.ClarifyingQuestion = q

	var b strings.Builder
	b.WriteString(q.Text)
	for _, opt := range q.Options {
		b.WriteString("\n- ")
		b.WriteString(opt)
	}
	st.respond(ModeClarify, b.String())
}

// checkGuard consults the suitability policy. Activity-level failure falls
// back to an allow verdict here only if the activity itself errored past its
// retries; the guard engine applies its own fail-open/fail-closed default.
func (w *Workflows) checkGuard(ctx workflow.Context, st *pipelineState, ext *intent.Extraction) activities.CheckSuitabilityResult {
	in := activities.CheckSuitabilityInput{
		SessionID:    st.input.SessionID,
		UserID:       st.input.UserID,
		Intent:       st.result.Intent,
		ReasonCodes:  st.result.ReasonCodes,
		RiskAppetite: st.appetite,
	}
	if ext != nil {
		in.SubIntent = ext.SubIntent
	}

	var res activities.CheckSuitabilityResult
	if err := workflow.ExecuteActivity(w.shortCtx(ctx), "CheckSuitability", in).Get(ctx, &res); err != nil {
		workflow.GetLogger(ctx).Warn("suitability check unavailable", "error", err)
		if w.cfg.Guard.FailClosed {
			return activities.CheckSuitabilityResult{Allow: false, Reason: "guard_unavailable", EffectiveMode: "enforce"}
		}
		return activities.CheckSuitabilityResult{Allow: true, Reason: "guard_unavailable", EffectiveMode: "off"}
	}
	return res
}

// synthesize runs the generate-validate loop: schema check, grounding, at
// most one mechanical repair, at most one corrective regeneration, then the
// deterministic facts-only fallback.
func (w *Workflows) synthesize(ctx workflow.Context, st *pipelineState, advCtx *evidence.AdvisoryContext) {
	logger := workflow.GetLogger(ctx)
	genCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.Inference.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    2,
		},
	})

	var violations []string
	repairs := 0
	for attempt := 1; attempt <= w.cfg.Synthesis.MaxAttempts; attempt++ {
		prompt := synthesis.BuildPrompt(st.normalized, advCtx, violations)

		var gen activities.GenerateAnswerResult
		if err := workflow.ExecuteActivity(genCtx, "GenerateAnswer",
			activities.GenerateAnswerInput{Prompt: prompt}).Get(ctx, &gen); err != nil {
			logger.Warn("generation failed", "attempt", attempt, "error", err)
			violations = nil
			continue
		}

		plan, err := synthesis.ParsePlan(gen.Raw)
		if err != nil {
			violations = []string{"invalid_json:answer_plan"}
			continue
		}
		if violations = plan.CheckSchema(); len(violations) > 0 {
			logger.Info("plan schema rejected", "attempt", attempt, "violations", violations)
			continue
		}

		report := grounding.Validate(plan, advCtx)
		if report.RepairableOnly() && repairs < w.cfg.Synthesis.MaxRepairs {
			if grounding.Repair(plan, report) {
				repairs++
				report = grounding.Validate(plan, advCtx)
			}
		}
		if report.OK() {
			st.setMeta("synthesis_attempts", strconv.Itoa(attempt))
			st.respond(ModeFinal, render.Plan(plan, advCtx))
			return
		}
		logger.Info("grounding rejected plan", "attempt", attempt, "violations", report.Violations)
		violations = report.Violations
	}

	st.result.FallbackUsed = FallbackSynthesis
	st.respond(ModeFinal, render.Fallback(advCtx))
}

// persist records the turn and the audit row. Both are best-effort: failures
// are logged and never surface to the user.
func (w *Workflows) persist(ctx workflow.Context, st *pipelineState, toolErrors []ToolError) {
	logger := workflow.GetLogger(ctx)
	actCtx := w.shortCtx(ctx)

	if err := workflow.ExecuteActivity(actCtx, "RecordTurn", activities.RecordTurnInput{
		SessionID:    st.input.SessionID,
		Prompt:       st.input.Prompt,
		Response:     st.result.Response,
		Intent:       st.result.Intent,
		TraceID:      st.result.TraceID,
		ClarifyUsed:  st.result.ClarifyNeeded,
		RiskAppetite: st.appetite,
	}).Get(ctx, nil); err != nil {
		logger.Warn("turn record failed", "error", err)
	}

	payload := map[string]interface{}{
		"reason_codes": st.result.ReasonCodes,
		"metadata":     st.result.Metadata,
	}
	if st.result.FallbackUsed != "" {
		payload["fallback_used"] = st.result.FallbackUsed
	}
	if len(toolErrors) > 0 {
		payload["tool_errors"] = toolErrors
	}
	if len(st.result.InvokedTools) > 0 {
		payload["invoked_tools"] = st.result.InvokedTools
	}
	if err := workflow.ExecuteActivity(actCtx, "PersistAudit", activities.PersistAuditInput{
		TraceID:   st.result.TraceID,
		UserID:    st.input.UserID,
		SessionID: st.input.SessionID,
		Intent:    st.result.Intent,
		Mode:      st.result.Mode,
		Payload:   payload,
	}).Get(ctx, nil); err != nil {
		logger.Warn("audit persist failed", "error", err)
	}
}

// shortCtx is the default activity context for quick store and policy calls.
func (w *Workflows) shortCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    200 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})
}

// analyticsOnly strips the guard pseudo-tool from a bundle: the guard runs as
// a dedicated policy activity, not through the analytics client.
func analyticsOnly(bundle []string) []string {
	out := make([]string, 0, len(bundle))
	for _, t := range bundle {
		if t == tools.ToolSuitabilityGuard {
			continue
		}
		out = append(out, t)
	}
	return out
}
