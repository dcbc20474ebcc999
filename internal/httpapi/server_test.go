package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/auth"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/session"
	"github.com/vantage-fi/advisor/internal/workflows"
)

type fakeRun struct {
	res workflows.AdvisoryResult
	err error
}

func (f fakeRun) GetID() string    { return "advisory-test" }
func (f fakeRun) GetRunID() string { return "run-1" }

func (f fakeRun) Get(ctx context.Context, valuePtr interface{}) error {
	if f.err != nil {
		return f.err
	}
	*valuePtr.(*workflows.AdvisoryResult) = f.res
	return nil
}

func (f fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, options client.WorkflowRunGetOptions) error {
	return f.Get(ctx, valuePtr)
}

type fakeStarter struct {
	run      fakeRun
	startErr error
	input    workflows.AdvisoryInput
}

func (f *fakeStarter) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if len(args) == 1 {
		if in, ok := args[0].(workflows.AdvisoryInput); ok {
			f.input = in
		}
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.run, nil
}

func newTestServer(t *testing.T, starter *fakeStarter) (*Server, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := session.NewManager(mr.Addr(), time.Hour, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	authMgr := auth.NewManager("test-signing-key", "vantage-advisor")
	token, err := authMgr.Issue("user-1", "pat", []string{"advise"})
	require.NoError(t, err)

	srv := NewServer(config.Default(), starter, sessions, nil, authMgr, zap.NewNop())
	return srv, token
}

func advise(t *testing.T, srv *Server, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/advise", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAdviseRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeStarter{})
	rec := advise(t, srv, "", `{"prompt":"how is my spending"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdviseRejectsEmptyPrompt(t *testing.T) {
	srv, token := newTestServer(t, &fakeStarter{})
	rec := advise(t, srv, token, `{"prompt":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdviseReturnsWorkflowResult(t *testing.T) {
	starter := &fakeStarter{run: fakeRun{res: workflows.AdvisoryResult{
		Mode:     workflows.ModeFinal,
		Intent:   "spending",
		Response: "Your spending is fine.",
	}}}
	srv, token := newTestServer(t, starter)

	rec := advise(t, srv, token, `{"prompt":"how is my spending"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflows.AdvisoryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, workflows.ModeFinal, res.Mode)
	require.Equal(t, "Your spending is fine.", res.Response)

	// The user identity comes from the token, never the body.
	require.Equal(t, "user-1", starter.input.UserID)
	require.NotEmpty(t, starter.input.SessionID)
	require.NotEmpty(t, starter.input.TraceID)
}

func TestAdviseStartFailureIs503(t *testing.T) {
	srv, token := newTestServer(t, &fakeStarter{startErr: errors.New("temporal down")})
	rec := advise(t, srv, token, `{"prompt":"how is my spending"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzReportsRedis(t *testing.T) {
	srv, _ := newTestServer(t, &fakeStarter{})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var checks map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checks))
	require.Equal(t, "ok", checks["redis"])
}
