package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	v := NewVerifier("test-secret")

	tok, err := v.Sign("nurse-1", "charge_nurse", time.Minute)
	require.NoError(t, err)

	ai, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "nurse-1", ai.Subject)
	assert.Equal(t, "charge_nurse", ai.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewVerifier("secret-a").Sign("nurse-1", "", time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").Verify(tok)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")
	tok, err := v.Sign("nurse-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(tok)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("test-secret")
	var gotSubject string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ai := FromContext(r.Context())
		require.NotNil(t, ai)
		gotSubject = ai.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	// no token
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/patients", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// garbage token
	req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// valid token
	tok, err := v.Sign("nurse-1", "", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "nurse-1", gotSubject)
}
