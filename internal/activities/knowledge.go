package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/evidence"
)

// FetchCitationsInput queries the knowledge base for supporting snippets.
type FetchCitationsInput struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
}

// FetchCitationsResult carries ranked snippets; may be empty.
type FetchCitationsResult struct {
	Citations []evidence.Citation `json:"citations"`
}

// FetchCitations retrieves knowledge-base snippets for the answer. The
// workflow treats a failure here as an empty citation list: citations enrich
// an answer, they never gate one.
func (a *Activities) FetchCitations(ctx context.Context, in FetchCitationsInput) (*FetchCitationsResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":   in.Query,
		"filters": in.Filters,
		"limit":   a.cfg.Knowledge.MaxCitations,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal knowledge query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.Knowledge.BaseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build knowledge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.knowledgeHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read knowledge response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("knowledge status %d", resp.StatusCode)
	}

	var out struct {
		Results []evidence.Citation `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode knowledge response: %w", err)
	}

	if len(out.Results) > a.cfg.Knowledge.MaxCitations {
		out.Results = out.Results[:a.cfg.Knowledge.MaxCitations]
	}
	a.logger.Debug("fetched citations", zap.Int("count", len(out.Results)))
	return &FetchCitationsResult{Citations: out.Results}, nil
}
