package server

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nauthd/nauth/server/authstate"
	"github.com/rs/zerolog/log"
)

// authFlowTTL bounds how long an authorization redirect may stay in flight
// before the callback rejects its state parameter.
const authFlowTTL = 10 * time.Minute

// LoginRedirectHandler starts a login by sending the browser to the identity
// provider's authorize endpoint with fresh state and nonce values.
func (s *Server) LoginRedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := generateRandomString(32)
		nonce := generateRandomString(32)

		if err := s.authState.Upsert(state, &authstate.FlowState{
			Nonce:     nonce,
			ReturnURL: r.URL.Query().Get("return_url"),
			CreatedAt: s.nowTime(),
		}); err != nil {
			log.Error().Err(err).Msg("failed to record auth flow state")
			http.Error(w, "Failed to start login", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, s.provider.AuthCodeURL(state, nonce), http.StatusFound)
	}
}

// TokenCallbackHandler completes the code exchange when the provider sends
// the browser back. The resulting identity and tokens are parked under a
// one-time login_id and the browser is forwarded to the frontend, which
// must still bind a device via /session/check before any session exists.
func (s *Server) TokenCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Check for authorization errors
		if errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, errorDesc), http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		flowState, err := s.authState.Get(state)
		if err != nil || flowState == nil {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		// Clean up state after use
		if err := s.authState.Delete(state); err != nil {
			http.Error(w, "Invalid state parameter", http.StatusInternalServerError)
			return
		}

		if s.nowTime().Sub(flowState.CreatedAt) > authFlowTTL {
			http.Error(w, "Login attempt expired, please retry", http.StatusBadRequest)
			return
		}

		result, err := s.provider.Exchange(r.Context(), code)
		if err != nil {
			log.Error().Err(err).Msg("code exchange failed")
			http.Error(w, "Token exchange failed", http.StatusInternalServerError)
			return
		}

		// Validate nonce to prevent replay attacks
		if result.Nonce != flowState.Nonce {
			http.Error(w, "Invalid nonce", http.StatusUnauthorized)
			return
		}

		loginID, err := s.auth.StashLogin(r.Context(), result.Identity, result.Tokens)
		if err != nil {
			log.Error().Err(err).Msg("failed to stash pending login")
			http.Error(w, "Failed to create login", http.StatusInternalServerError)
			return
		}

		redirectURL := fmt.Sprintf("%s/callback?login_id=%s", s.config.GetFrontendURI(), url.QueryEscape(loginID))
		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}
