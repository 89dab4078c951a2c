package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/loan-query-service/internal/api/http/handlers"
	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queries        *handlers.QueriesHandler
	QueryActions   *handlers.QueryActionsHandler
	Approvals      *handlers.ApprovalsHandler
	Updates        *handlers.UpdatesHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyTeam())

	protected.Post("/queries", auth.RequireTeam(domain.TeamOperations), cfg.Queries.CreateQuery)
	protected.Get("/queries", cfg.Queries.ListQueries)
	protected.Get("/queries/:id", cfg.Queries.GetQuery)
	protected.Patch("/queries", auth.RequireTeam(domain.TeamOperations, domain.TeamSales, domain.TeamCredit), cfg.Queries.UpdateQuery)

	protected.Post("/query-actions", cfg.QueryActions.PostAction)
	protected.Get("/query-actions", cfg.QueryActions.ListActions)

	protected.Post("/approvals", auth.RequireTeam(domain.TeamApproval), cfg.Approvals.Decide)
	protected.Get("/approvals", cfg.Approvals.ListApprovals)

	protected.Get("/updates", cfg.Updates.Poll)
}
