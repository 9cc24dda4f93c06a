package server

import (
	"net/http"
	"time"

	"github.com/nauthd/nauth/auth"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"service": s.config.GetAppName(), "status": "ok"})
	}
}

// ProtectedHandler answers with the claims of the verified bearer token.
// RequireBearerAuth has already done the work.
func (s *Server) ProtectedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid or missing token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     "authorized",
			"user_id":     claims.Subject,
			"permissions": claims.Permissions,
		})
	}
}

// ProfileHandler resolves the identity behind the session cookie. Unlike
// validation, this path insists on a fresh provider token, so a refresh
// refusal fails the request while the session itself stays open.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.config.GetSessionCookieName())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "no session"})
			return
		}

		user, err := s.auth.CurrentUser(r.Context(), cookie.Value)
		if err != nil {
			var forcedErr *auth.ForceLogoutError
			switch {
			case errors.As(err, &forcedErr):
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"message":       "session was remotely logged out",
					"logged_out_by": forcedErr.By,
					"logged_out_at": forcedErr.At.Format(time.RFC3339),
				})
			case ierrors.Is(err, ierrors.ErrSessionNotFound), ierrors.Is(err, ierrors.ErrSessionExpired):
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid or expired session"})
			case ierrors.Is(err, ierrors.ErrRefreshFailed):
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token refresh failed"})
			default:
				log.Error().Err(err).Msg("profile lookup failed")
				writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal server error"})
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message": "protected route",
			"user": map[string]any{
				"user_id": user.UserID,
				"email":   user.Email,
			},
		})
	}
}
