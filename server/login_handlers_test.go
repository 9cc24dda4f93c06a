package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/nauthd/nauth/server/authstate"
	"github.com/stretchr/testify/require"
)

func TestLoginRedirectRecordsFlowState(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodGet, RouteLogin, nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	flow, err := f.flowStates.Get(state)
	require.NoError(t, err)
	require.Equal(t, loc.Query().Get("nonce"), flow.Nonce)
	require.Equal(t, f.now, flow.CreatedAt)
}

func TestCallbackRejectsExpiredFlowState(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.flowStates.Upsert("state-1", &authstate.FlowState{
		Nonce:     "nonce-1",
		CreatedAt: f.now,
	}))

	f.now = f.now.Add(authFlowTTL + time.Minute)

	req := httptest.NewRequest(http.MethodGet, RouteToken+"?state=state-1&code=abc", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "expired")

	// The state is consumed even on rejection
	_, err := f.flowStates.Get("state-1")
	require.Error(t, err)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodGet, RouteToken+"?state=forged&code=abc", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
