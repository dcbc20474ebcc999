package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/intent"
	"github.com/vantage-fi/advisor/internal/metrics"
)

// Error types surfaced to workflow retry policies.
const (
	ErrTypeInferenceTransport = "InferenceTransportError"
	ErrTypeExtractionSchema   = "ExtractionSchemaError"
)

// ExtractIntentInput is one extraction request.
type ExtractIntentInput struct {
	Prompt string `json:"prompt"`
}

// ExtractIntentResult carries the validated extraction.
type ExtractIntentResult struct {
	Extraction *intent.Extraction `json:"extraction"`
}

// extractionInstruction pins the output contract for the extractor model.
const extractionInstruction = `Classify the user's personal-finance request. Respond with exactly one JSON object:
{"intent": one of [spending,risk,forecast,planning,allocation,scenario,recurring,invest,out_of_scope],
 "sub_intent": "free text or empty",
 "confidence": 0..1, "domain_relevance": 0..1,
 "candidates": [exactly 2 of {"intent": ..., "confidence": 0..1}, ranked],
 "slots": {"scenario_change": "...", "risk_appetite": "...", ...},
 "scenario_confidence": 0..1 (only for scenario intent)}

User request:
`

// ExtractIntent calls the inference service for a structured intent
// extraction. Transport failures and schema-invalid output are retried by
// the workflow's retry policy up to the configured attempt bound; after that
// the router forces out_of_scope rather than guessing.
func (a *Activities) ExtractIntent(ctx context.Context, in ExtractIntentInput) (*ExtractIntentResult, error) {
	start := time.Now()
	raw, err := a.complete(ctx, extractionInstruction+in.Prompt)
	metrics.ExtractionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExtractionErrors.Inc()
		return nil, temporal.NewApplicationError(err.Error(), ErrTypeInferenceTransport)
	}

	ext, err := intent.ParseExtraction(raw)
	if err != nil {
		metrics.ExtractionErrors.Inc()
		a.logger.Warn("extraction output rejected",
			zap.Error(err),
			zap.Int("raw_len", len(raw)))
		return nil, temporal.NewApplicationError(err.Error(), ErrTypeExtractionSchema)
	}
	return &ExtractIntentResult{Extraction: ext}, nil
}

// GenerateAnswerInput carries the fully built synthesis prompt.
type GenerateAnswerInput struct {
	Prompt string `json:"prompt"`
}

// GenerateAnswerResult is the raw model output; parsing and validation are
// workflow-side so the retry bookkeeping stays deterministic.
type GenerateAnswerResult struct {
	Raw string `json:"raw"`
}

// GenerateAnswer runs one synthesis generation.
func (a *Activities) GenerateAnswer(ctx context.Context, in GenerateAnswerInput) (*GenerateAnswerResult, error) {
	raw, err := a.complete(ctx, in.Prompt)
	if err != nil {
		return nil, temporal.NewApplicationError(err.Error(), ErrTypeInferenceTransport)
	}
	return &GenerateAnswerResult{Raw: raw}, nil
}

// complete performs one single-turn completion with near-deterministic
// sampling.
func (a *Activities) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":       a.cfg.Inference.Model,
		"prompt":      prompt,
		"temperature": a.cfg.Inference.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.Inference.BaseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.inferenceHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("inference status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	return out.Text, nil
}
