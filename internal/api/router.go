// Package api assembles internal/auth, internal/recordapi, internal/realtime
// and internal/admin behind a single go-chi/chi/v5 router, the HTTP boundary
// SPEC_FULL.md §6 describes. Grounded on the teacher's internal/api/router.go
// route tree and middleware stack, generalized from a fixed qBittorrent
// resource set to the schema-driven {table}/{pk} routes this repository
// exposes.
package api

import (
	"net/http"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/litebase/internal/admin"
	"github.com/autobrr/litebase/internal/api/handlers"
	apimiddleware "github.com/autobrr/litebase/internal/api/middleware"
	"github.com/autobrr/litebase/internal/auth"
	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/realtime"
	"github.com/autobrr/litebase/internal/recordapi"
	"github.com/autobrr/litebase/internal/schema"
)

// Dependencies holds every service NewRouter wires into the route tree,
// mirroring the teacher's own api.Dependencies struct.
type Dependencies struct {
	Config         *config.AppConfig
	Engine         *engine.Engine
	AuthService    *auth.Service
	SessionManager *scs.SessionManager
	OIDCProvider   *auth.OIDCProvider // nil when OIDC is not configured

	RecordAPI  *recordapi.Service
	RecordAPIs *recordapi.Registry
	Schema     *schema.Cache
	Realtime   *realtime.Hub
}

// NewRouter builds the full application router.
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID) // must run before the logger to tag each line
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	compressor, err := httpcompression.DefaultAdapter()
	if err != nil {
		log.Error().Err(err).Msg("api: failed to create http compression adapter")
	} else {
		r.Use(compressor)
	}

	allowedOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	r.Use(apimiddleware.CORSWithCredentials(allowedOrigins))

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.SessionManager, deps.OIDCProvider)
	recordsHandler := handlers.NewRecordsHandler(deps.RecordAPI, deps.RecordAPIs, deps.Schema)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Realtime)

	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.RequireSetup(deps.AuthService))

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.ThrottleBacklog(1, 1, time.Second))

			r.Post("/setup", authHandler.Setup)
			r.Post("/login", authHandler.Login)
			r.Get("/check-setup", authHandler.CheckSetupRequired)
			if deps.OIDCProvider != nil {
				r.Get("/oidc/login", authHandler.OIDCLogin)
				r.Get("/oidc/callback", authHandler.OIDCCallback)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.IsAuthenticated(deps.AuthService, deps.SessionManager))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.GetCurrentUser)
			r.Put("/auth/change-password", authHandler.ChangePassword)

			r.Route("/api-keys", func(r chi.Router) {
				r.Get("/", authHandler.ListAPIKeys)
				r.Post("/", authHandler.CreateAPIKey)
				r.Delete("/{id}", authHandler.DeleteAPIKey)
			})

			r.Mount("/admin", admin.NewRouter(deps.Engine, deps.RecordAPIs, deps.Config))
		})

		// Record API routes serve both world and authenticated audiences;
		// OptionalAuth attaches an identity when one is present without
		// rejecting anonymous callers, leaving the ACL gate itself to
		// internal/access (spec.md §4.3).
		r.Route("/records/{table}", func(r chi.Router) {
			r.Use(apimiddleware.OptionalAuth(deps.AuthService, deps.SessionManager))

			r.Get("/", recordsHandler.List)
			r.Post("/", recordsHandler.Create)
			r.Get("/{pk}", recordsHandler.Get)
			r.Put("/{pk}", recordsHandler.Update)
			r.Delete("/{pk}", recordsHandler.Delete)

			r.With(apimiddleware.APIKeyFromQuery("apiKey")).Get("/subscribe", realtimeHandler.Subscribe)
		})
	})

	r.Get("/health", handlers.Health)

	return r
}
