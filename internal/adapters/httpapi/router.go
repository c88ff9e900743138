package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions carries the cross-cutting middleware the router installs.
type RouterOptions struct {
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *logrus.Logger
	CORSOrigins    []string
	// Changes handles the websocket change-feed endpoint; nil disables it.
	Changes http.Handler
}

// NewRouter constructs the API HTTP router.
//
// This is intentionally a thin adapter: it wires routes and middleware and
// delegates to the Server handlers.
func NewRouter(api *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Logger != nil {
		r.Use(NewLoggingMiddleware(opts.Logger))
	}
	r.Use(NewMetricsMiddleware())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Debug-Subject"},
		AllowCredentials: true,
	}).Handler)

	if opts.AuthMiddleware != nil {
		r.Use(opts.AuthMiddleware)
	}

	// Infra endpoints, unauthenticated.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Get("/", api.ListMembers)
			r.Post("/", api.CreateMember)
			r.Post("/bulk/status", api.BulkUpdateStatus)
			r.Post("/bulk/delete", api.BulkDelete)
			r.Route("/{memberID}", func(r chi.Router) {
				r.Get("/", api.GetMember)
				r.Patch("/", api.UpdateMember)
				r.Delete("/", api.DeleteMember)
				r.Post("/status", api.UpdateMemberStatus)
			})
		})
		r.Get("/dashboard/stats", api.DashboardStats)
		if opts.Changes != nil {
			r.Method(http.MethodGet, "/changes", opts.Changes)
		}
	})

	return r
}
