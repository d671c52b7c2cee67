package server

func (s *Server) initRoutes() {
	// OAUTH
	s.RegisterRouteFunc("GET "+RouteAuthURL, s.AuthURLHandler())
	s.RegisterRouteFunc("GET "+RouteAuthLogin, s.OAuthLoginHandler())

	// ACCOUNTS
	s.RegisterRouteFunc("POST "+RouteUserLogin, s.LoginHandler())
	s.RegisterRouteFunc("POST "+RouteUserSignUp, s.SignUpHandler())
	s.RegisterRouteFunc("GET "+RouteUserInfo, s.UserInfoHandler())
	s.RegisterRouteFunc("PATCH "+RouteUserInfo, s.EditUserInfoHandler())
	s.RegisterRouteFunc("POST "+RouteResendVerification, s.ResendVerificationHandler())
	s.RegisterRouteFunc("GET "+RouteVerifyEmail, s.VerifyEmailHandler())

	// SYSTEM
	s.RegisterRouteFunc("GET "+RouteWellKnownJWKS, s.JWKSHandler())
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteFunc(RouteRoot, s.NotFoundHandler())
}
