package server

// Route path constants
const (
	// OAuth login
	RouteAuthURL   = "/authentication/{provider}/url"
	RouteAuthLogin = "/authentication/{provider}"

	// Accounts
	RouteUserLogin          = "/user/login"
	RouteUserSignUp         = "/user/sign-up"
	RouteUserInfo           = "/user/info"
	RouteResendVerification = "/user/verify-email/resend"
	RouteVerifyEmail        = "/verify-email"

	// System
	RouteWellKnownJWKS = "/.well-known/jwks.json"
	RouteHealth        = "/healthz"
	RouteRoot          = "/"
)
