package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a Manager's registry on a dedicated listener, separate
// from internal/api's main router — matching the teacher's own isolated
// metrics port (a scrape target should not be reachable through the same
// auth/session gate as the application).
type Server struct {
	manager        *Manager
	basicAuthUsers map[string]string
	server         *http.Server
}

// NewMetricsServer builds a Server listening on host:port. basicAuthUsers
// is a comma-separated "user:pass,user2:pass2" list; malformed entries
// (missing the colon) are skipped rather than rejected outright, since a
// single typo in a long list shouldn't lock every other credential out.
func NewMetricsServer(manager *Manager, host string, port int, basicAuthUsers string) *Server {
	users := parseBasicAuthUsers(basicAuthUsers)

	mux := http.NewServeMux()
	handler := promhttp.HandlerFor(manager.GetRegistry(), promhttp.HandlerOpts{})
	if len(users) > 0 {
		handler = BasicAuth("litebase-metrics", users)(handler)
	}
	mux.Handle("/metrics", handler)

	return &Server{
		manager:        manager,
		basicAuthUsers: users,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", host, port),
			Handler: mux,
		},
	}
}

func parseBasicAuthUsers(raw string) map[string]string {
	users := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, pass, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		users[user] = pass
	}
	return users
}

// BasicAuth returns middleware that requires HTTP basic auth against the
// given user/password map, using constant-time comparison to avoid
// leaking credential length or prefix through timing.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !validCredentials(users, user, pass) {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, realm))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validCredentials(users map[string]string, user, pass string) bool {
	want, ok := users[user]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(pass)) == 1
}

// ListenAndServe starts serving /metrics, blocking until Stop/Shutdown.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Stop closes the underlying listener immediately, dropping in-flight
// requests. Provided alongside Shutdown for callers that don't need a
// graceful drain (e.g. test cleanup).
func (s *Server) Stop() error {
	return s.server.Close()
}

// Shutdown drains in-flight requests before closing, honoring ctx's
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
