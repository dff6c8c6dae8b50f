package api

// HTTP API endpoints
const (
	// Registration and verification
	SignUp     = "/api/sign-up"
	VerifyCode = "/api/verify-code"

	// Session endpoints
	SignIn  = "/api/sign-in"
	SignOut = "/api/sign-out"
	Session = "/api/session"

	// Message endpoints
	Messages       = "/api/messages"
	AcceptMessages = "/api/accept-messages"

	// Operational endpoints
	Health  = "/healthz"
	Metrics = "/metrics"
)

// Page routes gated by the route guard
const (
	PageHome      = "/"
	PageSignIn    = "/sign-in"
	PageSignUp    = "/sign-up"
	PageVerify    = "/verify"
	PageDashboard = "/dashboard"
)

// RedirectWhenAuthenticated lists the pages a signed-in user is bounced away from.
var RedirectWhenAuthenticated = []string{
	PageHome,
	PageSignIn,
	PageSignUp,
	PageVerify,
}

// ProtectedPrefixes lists the page prefixes that require a session.
var ProtectedPrefixes = []string{
	PageDashboard,
}
