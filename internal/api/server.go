package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/autobrr/litebase/internal/config"
)

// Server wraps the chi router built by NewRouter in an *http.Server with
// the teacher's configured timeouts, matching the NewServer(deps).Handler()
// shape referenced by the teacher's (partially corrupted — see DESIGN.md)
// internal/api/server_test.go.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds a Server bound to cfg.Host:cfg.Port, applying
// cfg.HTTPTimeouts (internal/config) to the underlying http.Server.
func NewServer(deps *Dependencies) *Server {
	handler := NewRouter(deps)

	timeouts := httpTimeouts(deps.Config)
	return &Server{
		handler: handler,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", deps.Config.Host, deps.Config.Port),
			Handler:      handler,
			ReadTimeout:  timeouts.ReadTimeout,
			WriteTimeout: timeouts.WriteTimeout,
			IdleTimeout:  timeouts.IdleTimeout,
		},
	}
}

type resolvedTimeouts struct {
	ReadTimeout, WriteTimeout, IdleTimeout time.Duration
}

func httpTimeouts(cfg *config.AppConfig) resolvedTimeouts {
	t := resolvedTimeouts{ReadTimeout: 60 * time.Second, WriteTimeout: 60 * time.Second, IdleTimeout: 120 * time.Second}
	if cfg == nil {
		return t
	}
	if cfg.HTTPTimeouts.ReadTimeout > 0 {
		t.ReadTimeout = time.Duration(cfg.HTTPTimeouts.ReadTimeout) * time.Second
	}
	if cfg.HTTPTimeouts.WriteTimeout > 0 {
		t.WriteTimeout = time.Duration(cfg.HTTPTimeouts.WriteTimeout) * time.Second
	}
	if cfg.HTTPTimeouts.IdleTimeout > 0 {
		t.IdleTimeout = time.Duration(cfg.HTTPTimeouts.IdleTimeout) * time.Second
	}
	return t
}

// Handler returns the underlying http.Handler, mainly for tests that want
// to drive the router with httptest without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
