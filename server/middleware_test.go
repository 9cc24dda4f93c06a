package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func (f *testFixture) preflight(path, origin string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(http.MethodOptions, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

// The web client posts credentialed JSON from another origin, so the browser
// preflights every API call; those OPTIONS requests must be answered rather
// than falling through to the method-specific route patterns.
func TestPreflightAllowedOriginGetsCorsHeaders(t *testing.T) {
	f := setupTestFixture(t)

	for _, path := range []string{RouteSessionCheck, RouteLogout, RouteForceLogout} {
		rec := f.preflight(path, "http://localhost:3000")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	}
}

func TestPreflightUnknownOriginGetsNoCorsHeaders(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.preflight(RouteSessionCheck, "http://evil.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOptionsWithoutOriginHeader(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.preflight(RouteLogout, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
