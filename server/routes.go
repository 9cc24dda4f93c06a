package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET /{$}", s.IndexHandler())

	// Login handoff with the identity provider
	s.RegisterRouteFunc("GET "+RouteLogin, s.LoginRedirectHandler())
	s.RegisterRouteFunc("GET "+RouteToken, s.TokenCallbackHandler())

	// Preflight requests carry the OPTIONS method, so the method-specific
	// patterns below never match them; this route hands them to CorsMiddleware
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// Session lifecycle API
	s.RegisterRouteHandler("POST "+RouteSessionCheck, ChainMiddleware(s.SessionCheckHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionValidate, ChainMiddleware(s.SessionValidateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteForceLogout, ChainMiddleware(s.ForceLogoutHandler(), s.APIMiddleware()...))

	// Protected API routes
	s.RegisterRouteHandler("GET "+RouteProtected, ChainMiddleware(s.ProtectedHandler(), s.BearerAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteProfile, ChainMiddleware(s.ProfileHandler(), s.APIMiddleware()...))
}
