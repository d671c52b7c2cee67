package server

import (
	"net/http"

	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/rs/zerolog/log"
)

// JWKSHandler publishes the session token verification key. Only available
// when tokens are signed with an RSA key pair.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, ok := s.tokens.JWKS()
		if !ok {
			writeFailure(w, response.NotFound)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		if err := jsonEncode(w, jwks); err != nil {
			log.Warn().Err(err).Msg("failed to write jwks")
		}
	}
}

type healthStatus struct {
	Providers []string          `json:"providers"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Providers: s.auth.Providers()}
		healthy := true
		for _, c := range s.checks {
			if status.Checks == nil {
				status.Checks = make(map[string]string, len(s.checks))
			}
			if err := c.Check(r); err != nil {
				log.Warn().Err(err).Str("check", c.Name).Msg("health check failed")
				status.Checks[c.Name] = "down"
				healthy = false
				continue
			}
			status.Checks[c.Name] = "up"
		}
		if !healthy {
			writeJSON(w, http.StatusServiceUnavailable, response.Fail(response.ServerError))
			return
		}
		writeOK(w, status)
	}
}

func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, response.NotFound)
	}
}
