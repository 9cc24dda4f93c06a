// Package server exposes the HTTP surface: the login redirect and callback,
// the device-binding handoff, the session validate/logout endpoints, and the
// bearer-protected API routes.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/nauthd/nauth/auth"
	"github.com/nauthd/nauth/idp"
	"github.com/nauthd/nauth/internal/config"
	"github.com/nauthd/nauth/server/authstate"
	"github.com/nauthd/nauth/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.Service
	tokens    *token.Validator
	provider  *idp.Provider
	authState authstate.Repo
	nowTime   func() time.Time // nowTime function (injectable for testing)
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(config config.Config, authService *auth.Service, tokenValidator *token.Validator, provider *idp.Provider, authStateRepo authstate.Repo, options ...Option) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] nil auth service")
	}
	if tokenValidator == nil {
		return nil, errors.New("[Server New] nil token validator")
	}
	if provider == nil {
		return nil, errors.New("[Server New] nil identity provider")
	}
	if authStateRepo == nil {
		authStateRepo = authstate.NewInMemoryRepo(authFlowTTL)
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		auth:      authService,
		tokens:    tokenValidator,
		provider:  provider,
		authState: authStateRepo,
		nowTime:   time.Now,
	}
	s.env = config.GetEnv()
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Str("method", method).Str("path", path).Msg("route")
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
