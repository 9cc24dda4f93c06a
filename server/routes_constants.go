package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Login handoff
	RouteLogin = "/login"
	RouteToken = "/token"

	// Session lifecycle
	RouteSessionCheck    = "/session/check"
	RouteSessionValidate = "/session/validate"
	RouteLogout          = "/logout"
	RouteForceLogout     = "/logout/force"

	// Bearer-protected API
	RouteProtected = "/protected"

	// Cookie-protected API
	RouteProfile = "/profile"
)
