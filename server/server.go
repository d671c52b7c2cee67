// Package server exposes the authentication flows over HTTP.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Lipoic/Lipoic-Server/auth"
	"github.com/Lipoic/Lipoic-Server/internal/config"
	"github.com/Lipoic/Lipoic-Server/token"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.Service
	tokens   *token.Manager
	validate *validator.Validate
	checks   []HealthCheck
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(r *http.Request) error
}

type ServerOption func(*Server)

// WithHealthCheck adds a dependency probed by the health endpoint.
func WithHealthCheck(name string, check func(r *http.Request) error) ServerOption {
	return func(s *Server) {
		s.checks = append(s.checks, HealthCheck{Name: name, Check: check})
	}
}

func New(cfg config.Config, authService *auth.Service, tokens *token.Manager, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if authService == nil {
		return nil, errors.New("[server.New] auth service is required")
	}
	if tokens == nil {
		return nil, errors.New("[server.New] token manager is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     authService,
		tokens:   tokens,
		validate: newValidator(),
	}
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

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.RegisterRouteHandler(pattern, ChainMiddleware(handler, s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, ok := strings.Cut(route, " ")
		if !ok {
			method, path = "", route
		}
		log.Info().Msg(colouredRoute(method, path))
	}
}

func colouredRoute(method, path string) string {
	colour, ok := methodColors[method]
	if !ok {
		colour = Gray
	}
	return fmt.Sprintf("[%s %-7s%s] %s", colour, method, ResetColor, path)
}
