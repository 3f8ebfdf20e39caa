package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gynoconnect/clinic-scheduler/internal/auth"
	"github.com/gynoconnect/clinic-scheduler/internal/availability"
	"github.com/gynoconnect/clinic-scheduler/internal/booking"
	httpmiddleware "github.com/gynoconnect/clinic-scheduler/internal/http/middleware"
	"github.com/gynoconnect/clinic-scheduler/internal/reminders"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Availability  *availability.Handler
	Booking       *booking.Handler
	Notifications *reminders.Handler

	AuthSecret         string
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler

	// Checks run by /health; a failing check turns the response into 503.
	Checks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Checks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		api.Use(httpmiddleware.Authenticate(cfg.AuthSecret))

		if cfg.Availability != nil {
			api.Route("/doctors/{doctorID}", func(doctor chi.Router) {
				cfg.Availability.RegisterReadRoutes(doctor)
				doctor.Group(func(staff chi.Router) {
					staff.Use(httpmiddleware.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleReceptionist))
					cfg.Availability.RegisterWriteRoutes(staff)
				})
			})
		}

		if cfg.Booking != nil {
			cfg.Booking.RegisterRoutes(api, httpmiddleware.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
		}

		if cfg.Notifications != nil {
			api.Group(func(admin chi.Router) {
				admin.Use(httpmiddleware.RequireRole(auth.RoleAdmin))
				cfg.Notifications.RegisterRoutes(admin)
			})
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]any{"status": "ok"}
		if len(checks) > 0 {
			results := make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					results[name] = err.Error()
					status = http.StatusServiceUnavailable
					resp["status"] = "degraded"
					continue
				}
				results[name] = "ok"
			}
			resp["checks"] = results
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
