package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewManager("test-signing-key", "vantage-advisor")

	token, err := m.Issue("user-1", "alex", []string{"advise"})
	require.NoError(t, err)

	id, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "alex", id.Username)
	assert.True(t, id.HasScope("advise"))
	assert.False(t, id.HasScope("admin"))
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewManager("key-a", "vantage-advisor")
	verifier := NewManager("key-b", "vantage-advisor")

	token, err := issuer.Issue("user-1", "", nil)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issuer := NewManager("shared-key", "someone-else")
	verifier := NewManager("shared-key", "vantage-advisor")

	token, err := issuer.Issue("user-1", "", nil)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmptySigningKeyFailsClosed(t *testing.T) {
	m := NewManager("", "vantage-advisor")

	_, err := m.Issue("user-1", "", nil)
	assert.Error(t, err)

	_, err = m.Validate("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	m := NewManager("test-signing-key", "vantage-advisor")
	token, err := m.Issue("user-7", "", nil)
	require.NoError(t, err)

	var got *Identity
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Valid token
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/advise", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-7", got.UserID)

	// Missing header
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/advise", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/advise", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
