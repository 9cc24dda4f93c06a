package server

import (
	"net/http"
	"time"

	"github.com/nauthd/nauth/auth"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type sessionCheckRequest struct {
	LoginID    string `json:"login_id"`
	DeviceName string `json:"device_name"`
	DeviceInfo string `json:"device_info"`
}

// SessionCheckHandler binds a completed login to the presenting device. The
// session_id travels back only as an HttpOnly cookie, never in the body.
func (s *Server) SessionCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sessionCheckRequest
		if err := decodeJSON(r, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid request body"})
			return
		}
		if payload.LoginID == "" || payload.DeviceName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "login_id and device_name are required"})
			return
		}

		device := sessions.DeviceIdentity{
			Address: clientAddress(r),
			Name:    payload.DeviceName,
			Info:    payload.DeviceInfo,
		}

		outcome, err := s.auth.CreateOrReuse(r.Context(), payload.LoginID, device)
		if err != nil {
			var quotaErr *auth.QuotaExceededError
			switch {
			case ierrors.Is(err, ierrors.ErrLoginNotFound):
				writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid or expired login"})
			case errors.As(err, &quotaErr):
				writeJSON(w, http.StatusConflict, map[string]any{
					"success":     false,
					"error":       "quota_exceeded",
					"message":     quotaErr.Error(),
					"max_devices": quotaErr.Max,
					"devices":     quotaErr.Devices,
				})
			default:
				log.Error().Err(err).Msg("session check failed")
				writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "internal server error"})
			}
			return
		}

		maxAge := int(time.Until(outcome.Session.ExpiresAt).Seconds())
		s.SetSessionCookie(w, outcome.Session.SessionID, r, maxAge)

		message := "session established"
		if outcome.Reused {
			message = "existing session reused"
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "reused": outcome.Reused, "message": message})
	}
}

// SessionValidateHandler reports the state of the session cookie. Invalid
// states come back as 200 with valid=false and a machine-readable reason,
// so the frontend can distinguish expiry from force logout.
func (s *Server) SessionValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.config.GetSessionCookieName())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "reason": "no_cookie"})
			return
		}

		result, err := s.auth.Validate(r.Context(), cookie.Value)
		if err != nil {
			log.Error().Err(err).Msg("session validation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal server error"})
			return
		}

		switch result.Status {
		case auth.StatusNotFound:
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": "session_not_found"})
		case auth.StatusExpired:
			s.ClearSessionCookie(w, r)
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": "session_expired"})
		case auth.StatusForceLoggedOut:
			writeJSON(w, http.StatusOK, map[string]any{
				"valid":  false,
				"reason": "force_logged_out",
				"details": map[string]any{
					"logged_out_by": result.ForceLogout.By,
					"logged_out_at": result.ForceLogout.At.Format(time.RFC3339),
					"message":       result.ForceLogout.Message,
				},
			})
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"valid":      true,
				"session_id": result.Session.SessionID,
				"user_id":    result.Session.UserID,
			})
		}
	}
}

// LogoutHandler closes the cookie's session and clears the cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.config.GetSessionCookieName())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "no session"})
			return
		}

		closed, err := s.auth.Logout(r.Context(), cookie.Value)
		if err != nil {
			log.Error().Err(err).Msg("logout failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "internal server error"})
			return
		}

		// The cookie goes regardless; a session already closed elsewhere
		// still counts as a successful logout for this browser.
		s.ClearSessionCookie(w, r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "closed": closed})
	}
}

type forceLogoutRequest struct {
	DeviceAddress string `json:"logout_device_address"`
	DeviceName    string `json:"device_name"`
}

// ForceLogoutHandler remotely closes every active session on the named
// device. Zero matches is still success; the caller learns the count.
func (s *Server) ForceLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload forceLogoutRequest
		if err := decodeJSON(r, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid request body"})
			return
		}
		if payload.DeviceAddress == "" || payload.DeviceName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "logout_device_address and device_name are required"})
			return
		}

		target := sessions.DeviceKey{Address: payload.DeviceAddress, Name: payload.DeviceName}
		affected, err := s.auth.ForceLogout(r.Context(), target, clientAddress(r))
		if err != nil {
			log.Error().Err(err).Msg("force logout failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "internal server error"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "affected_sessions": affected})
	}
}
