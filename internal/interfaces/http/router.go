package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/handlers"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
)

// LoginPath is served without a session.
const LoginPath = "/api/v1/auth/login"

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	ContractHandler  *handlers.ContractHandler
	MissionHandler   *handlers.MissionHandler
	PaymentHandler   *handlers.PaymentHandler
	DemurrageHandler *handlers.DemurrageHandler
	AuthHandler      *handlers.AuthHandler
	HealthHandler    *handlers.HealthHandler

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    middleware.RateLimiter

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the complete HTTP route tree from the given configuration.
// Probes and /metrics are public; everything under /api/v1 except login
// requires a session.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := chi.NewRouter()

	// --- Global middleware (applied to every request) ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter, "/healthz", "/readyz", "/metrics"))
	}

	// --- Public health endpoints (no auth) ---
	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	// --- API v1 ---
	r.Route("/api/v1", func(api chi.Router) {
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.Handler)
		}

		registerAuthRoutes(api, cfg.AuthHandler)
		registerContractRoutes(api, cfg.ContractHandler)
		registerMissionRoutes(api, cfg.MissionHandler)
		registerPaymentRoutes(api, cfg.PaymentHandler)
		registerDemurrageRoutes(api, cfg.DemurrageHandler)
	})

	return r
}

// registerAuthRoutes mounts session endpoints under /auth.
func registerAuthRoutes(r chi.Router, h *handlers.AuthHandler) {
	if h == nil {
		return
	}
	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/login", h.Login)
		ar.Post("/logout", h.Logout)
		ar.Post("/password", h.ChangePassword)
	})
}

// registerContractRoutes mounts contract endpoints under /contracts.
func registerContractRoutes(r chi.Router, h *handlers.ContractHandler) {
	if h == nil {
		return
	}
	r.Route("/contracts", func(cr chi.Router) {
		cr.Post("/", h.Create)

		cr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Put("/", h.Update)
			item.Delete("/", h.Delete)
			item.Post("/cancel", h.Cancel)
			item.Post("/caution/block", h.BlockCaution)
			item.Post("/caution/release", h.ReleaseCaution)
			item.Get("/events", h.Events)
			item.Post("/export", h.Export)
		})
	})
}

// registerMissionRoutes mounts the mission state machine under /missions.
func registerMissionRoutes(r chi.Router, h *handlers.MissionHandler) {
	if h == nil {
		return
	}
	r.Route("/missions/{id}", func(item chi.Router) {
		item.Get("/", h.Get)
		item.Post("/terminate", h.Terminate)
		item.Post("/cancel", h.Cancel)
		item.Post("/arrival", h.Arrival)
		item.Post("/unloading", h.Unloading)
		item.Get("/demurrage", h.Demurrage)
		item.Get("/events", h.Events)
	})
}

// registerPaymentRoutes mounts payment and caution endpoints.
func registerPaymentRoutes(r chi.Router, h *handlers.PaymentHandler) {
	if h == nil {
		return
	}
	r.Route("/payments/{id}", func(item chi.Router) {
		item.Get("/", h.GetPayment)
		item.Post("/validate", h.ValidatePayment)
	})
	r.Route("/cautions/{id}", func(item chi.Router) {
		item.Get("/", h.GetCaution)
		item.Post("/refund", h.RefundCaution)
		item.Post("/consume", h.ConsumeCaution)
		item.Post("/not-refunded", h.MarkCautionNotRefunded)
	})
}

// registerDemurrageRoutes mounts the stateless demurrage quote.
func registerDemurrageRoutes(r chi.Router, h *handlers.DemurrageHandler) {
	if h == nil {
		return
	}
	r.Post("/demurrage/compute", h.Compute)
}
