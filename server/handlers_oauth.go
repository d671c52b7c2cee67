package server

import (
	"net/http"

	"github.com/Lipoic/Lipoic-Server/auth"
)

// AuthURLHandler returns the provider authorization URL and its state.
func (s *Server) AuthURLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := authURLRequest{
			Provider:    r.PathValue("provider"),
			RedirectURI: r.URL.Query().Get("redirect_uri"),
		}
		if err := s.check(req); err != nil {
			writeError(w, err)
			return
		}

		authURL, err := s.auth.AuthorizationURL(r.Context(), req.Provider, req.RedirectURI)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, authURL)
	}
}

// OAuthLoginHandler completes the provider callback and returns a session token.
func (s *Server) OAuthLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := oauthLoginRequest{
			Provider:         r.PathValue("provider"),
			Code:             q.Get("code"),
			State:            q.Get("state"),
			OAuthRedirectURI: q.Get("oauth_redirect_uri"),
		}
		if err := s.check(req); err != nil {
			writeError(w, err)
			return
		}

		tok, err := s.auth.OAuthLogin(r.Context(), auth.OAuthLoginParams{
			Provider:    req.Provider,
			Code:        req.Code,
			State:       req.State,
			RedirectURI: req.OAuthRedirectURI,
			ClientIP:    s.clientIP(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, tok)
	}
}
