package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medqueue/opd-admission/internal/admission"
)

type RouterConfig struct {
	Controller  *admission.Controller
	Reallocator *admission.Reallocator
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	ClinicTZ    *time.Location
	Logger      *zap.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Provider endpoints
	r.Route("/api/providers", func(r chi.Router) {
		r.Post("/", createProviderHandler(cfg.Controller))
		r.Get("/", listProvidersHandler(cfg.Controller))
		r.Get("/{id}/schedule", getScheduleHandler(cfg.Controller, cfg.ClinicTZ))
		r.Put("/{id}/slots", updateTemplatesHandler(cfg.Controller))
	})

	// Token endpoints
	r.Route("/api/tokens", func(r chi.Router) {
		r.Post("/", createTokenHandler(cfg.Controller, cfg.ClinicTZ))
		r.Post("/emergency", createEmergencyTokenHandler(cfg.Controller, cfg.ClinicTZ))
		r.Put("/{id}/cancel", cancelTokenHandler(cfg.Controller))
		r.Put("/{id}/no-show", noShowTokenHandler(cfg.Controller))
		r.Get("/provider/{id}", listProviderTokensHandler(cfg.Controller, cfg.ClinicTZ))
		r.Post("/reallocate/{id}", reallocateHandler(cfg.Reallocator, cfg.ClinicTZ))
	})

	return r
}
