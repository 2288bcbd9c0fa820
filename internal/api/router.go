package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sampleflow/internal/api/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	CORSOrigins    []string
	MaxUploadBytes int64
	AdminTokenTTL  time.Duration
}

// NewRouter builds the chi router serving the API, health and metrics routes.
func NewRouter(svc Service, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	h := NewHandler(svc, logger, cfg.AdminTokenTTL)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.NewMetrics(registry).Handler)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.BodyLimit(cfg.MaxUploadBytes))

	r.Get("/health/live", h.live)
	r.Get("/health/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/signup", h.signup)
		r.Get("/activate/{token}", h.activate)
		r.Post("/request_password_reset", h.requestPasswordReset)
		r.Post("/reset_password", h.resetPassword)
		r.Get("/remaining", h.remaining)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(svc))
			r.Post("/change_password", h.changePassword)
			r.Get("/running_options", h.runningOptions)
			r.Get("/samples", h.samples)
			r.Post("/sample", h.addSample)
			r.Post("/reference_sequence", h.referenceSequence)
			r.Post("/result", h.result)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/settings", h.adminSettings)
				r.Post("/settings", h.adminUpdateSettings)
				r.Get("/settings/history", h.adminSettingsHistory)
				r.Get("/samples", h.adminSamples)
				r.Post("/zipsamples", h.adminZipSamples)
				r.Get("/users", h.adminUsers)
				r.Get("/token", h.adminToken)
				r.Post("/result", h.adminResult)
				r.Post("/resubmit", h.adminResubmit)
			})
		})
	})
	return r
}

func (h *Handler) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "sampleflow",
	})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
