package server

import (
	"net/http"

	"github.com/Lipoic/Lipoic-Server/auth"
	"github.com/Lipoic/Lipoic-Server/response"
)

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeLogin(r)
		if err != nil {
			writeFailure(w, response.InvalidRequest)
			return
		}
		if err := s.check(req); err != nil {
			writeError(w, err)
			return
		}

		tok, err := s.auth.Login(r.Context(), req.Email, req.Password, s.clientIP(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, tok)
	}
}

func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSignUp(r)
		if err != nil {
			writeFailure(w, response.InvalidRequest)
			return
		}
		if err := s.check(req); err != nil {
			writeError(w, err)
			return
		}

		tok, err := s.auth.SignUp(r.Context(), auth.SignUpParams{
			Email:    req.Email,
			Password: req.Password,
			Username: req.Username,
			Modes:    req.modes(),
			ClientIP: s.clientIP(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, tok)
	}
}

func (s *Server) UserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		info, err := s.auth.UserInfo(r.Context(), raw)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, info)
	}
}

func (s *Server) EditUserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		req, err := decodeEditUserInfo(r)
		if err != nil {
			writeFailure(w, response.InvalidRequest)
			return
		}
		if err := s.check(req); err != nil {
			writeError(w, err)
			return
		}

		info, err := s.auth.EditUserInfo(r.Context(), raw, req.params())
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, info)
	}
}

func (s *Server) ResendVerificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.auth.ResendVerification(r.Context(), raw); err != nil {
			writeError(w, err)
			return
		}
		writeDone(w)
	}
}

// VerifyEmailHandler is the target of the link in the verification e-mail.
func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			writeFailure(w, response.VerifyEmailError)
			return
		}
		if err := s.auth.VerifyEmail(r.Context(), code); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("email verified"))
	}
}
