package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davitran/accountd/internal/account"
)

// RouterConfig carries the HTTP-surface settings and the optional readiness
// probes for backing stores.
type RouterConfig struct {
	CORSAllowedOrigins []string
	Readiness          []func(context.Context) error
}

// NewRouter wires all routes. The admin subtree is restricted to root and
// admin roles; everything under authentication also passes the active and
// verified gates.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(withCORS(cfg.CORSAllowedOrigins))
	}
	r.Use(h.metrics.instrument)

	r.Get("/healthz", healthHandler(cfg.Readiness))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/get-otp", h.handleGetOTP)
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/forgot-password", h.handleForgotPassword)
		r.Patch("/reset-password", h.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticated)

			r.Get("/profile", h.handleProfile)
			r.Patch("/update-profile", h.handleUpdateProfile)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireRole(account.RoleRoot, account.RoleAdmin))

				r.Get("/users", h.handleListUsers)
				r.Get("/user/{id}", h.handleGetUser)
				r.Post("/user", h.handleCreateUser)
				r.Patch("/update-user", h.handleUpdateUser)
				r.Delete("/user/{id}", h.handleDeleteUser)
				r.Post("/users/import", h.handleImportUsers)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondFail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondFail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func healthHandler(probes []func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, probe := range probes {
			if err := probe(ctx); err != nil {
				respondFail(w, http.StatusServiceUnavailable, "dependency unavailable")
				return
			}
		}
		respondOK(w, "ok", nil)
	}
}
