package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/docintel-api/internal/api"
	apiMiddleware "github.com/phrazzld/docintel-api/internal/api/middleware"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/ratelimit"
)

// healthChecks returns the dependency probes reported by /health. The cache
// fails open, so only the database is checked.
func (app *application) healthChecks() map[string]api.HealthCheck {
	if app.db == nil {
		return nil
	}
	return map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return app.db.PingContext(ctx) },
	}
}

// baseRouter creates a router with the shared middleware stack and the
// operational endpoints.
func (app *application) baseRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(apiMiddleware.NewMetricsMiddleware(app.metrics))
	r.Use(middleware.Recoverer)

	healthHandler := api.NewHealthHandler(app.healthChecks(), app.logger)
	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())
	return r
}

// setupOpsRouter serves only /health and /metrics, for worker processes.
func (app *application) setupOpsRouter() http.Handler {
	return app.baseRouter()
}

// setupRouter creates the full API router.
func (app *application) setupRouter() http.Handler {
	r := app.baseRouter()

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.apiKeys, app.logger)
	documentHandler := api.NewDocumentHandler(app.documentService, app.config.Upload.MaxSizeBytes, app.logger)

	limit := func(tier string) func(http.Handler) http.Handler {
		if !app.config.RateLimit.Enabled {
			return passThrough
		}
		return apiMiddleware.RateLimit(app.limiter, tier)
	}
	limitList := passThrough
	if app.config.RateLimit.Enabled {
		limitList = apiMiddleware.RateLimitSearch(app.limiter)
	}
	require := apiMiddleware.RequirePermission

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/documents", func(r chi.Router) {
			r.With(require(domain.PermissionDocumentsCreate), limit(ratelimit.TierUpload)).
				Post("/upload", documentHandler.Upload)
			r.With(require(domain.PermissionDocumentsRead), limitList).
				Get("/", documentHandler.List)
			r.With(require(domain.PermissionDocumentsRead), limit(ratelimit.TierDefault)).
				Get("/stats", documentHandler.Stats)

			r.Group(func(r chi.Router) {
				r.Use(require(domain.PermissionDocumentsUpdate), limit(ratelimit.TierBulk))
				r.Post("/bulk/action", documentHandler.BulkAction)
				r.Post("/bulk/update", documentHandler.BulkUpdate)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Use(limit(ratelimit.TierDefault))
				r.With(require(domain.PermissionDocumentsRead)).Get("/", documentHandler.Get)
				r.With(require(domain.PermissionDocumentsRead)).Get("/download", documentHandler.Download)
				r.With(require(domain.PermissionDocumentsUpdate)).Patch("/", documentHandler.Update)
				// A hard delete additionally needs documents:delete, checked by the service.
				r.With(require(domain.PermissionDocumentsUpdate)).Delete("/", documentHandler.Delete)
			})
		})

		r.With(require(domain.PermissionDocumentsRead), limit(ratelimit.TierDefault)).
			Get("/tasks/{task_id}", documentHandler.GetTask)
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }
