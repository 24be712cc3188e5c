package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispute-service/internal/api/http/handlers"
	"github.com/spec-kit/dispute-service/internal/auth"
	"github.com/spec-kit/dispute-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Agents         *handlers.AgentsHandler
	Disputes       *handlers.DisputesHandler
	AgentDisputes  *handlers.AgentDisputesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/agents/login", cfg.Agents.Login)

	protectedAuth := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protectedAuth.Post("/password/change", cfg.Users.ChangePassword)

	userGroup := app.Group("/disputes", cfg.AuthMiddleware.Handle, auth.RequireUser())
	userGroup.Post("", cfg.Disputes.CreateDispute)
	userGroup.Get("", cfg.Disputes.ListDisputes)
	userGroup.Get("/:id", cfg.Disputes.GetDispute)
	userGroup.Post("/:id/comments", cfg.Disputes.AddComment)
	userGroup.Post("/:id/evidence", cfg.Disputes.UploadEvidence)
	userGroup.Get("/:id/evidence", cfg.Disputes.ListEvidence)
	userGroup.Post("/:id/cancel", cfg.Disputes.CancelDispute)
	userGroup.Post("/:id/close", cfg.Disputes.CloseDispute)
	userGroup.Post("/:id/reopen", cfg.Disputes.ReopenDispute)
	userGroup.Post("/:id/appeal", cfg.Disputes.AppealDispute)

	anyAgent := auth.RequireAgentRole(domain.AgentRoleAgent, domain.AgentRoleSenior, domain.AgentRoleAdmin)
	agentGroup := app.Group("/agent/disputes", cfg.AuthMiddleware.Handle, anyAgent)
	agentGroup.Get("", cfg.AgentDisputes.ListDisputes)
	agentGroup.Get("/:id", cfg.AgentDisputes.GetDispute)
	agentGroup.Post("/:id/claim", cfg.AgentDisputes.SelfAssign)
	agentGroup.Post("/:id/resolve", cfg.AgentDisputes.Resolve)
	agentGroup.Post("/:id/escalate", cfg.AgentDisputes.Escalate)
	agentGroup.Post("/:id/request-info", cfg.AgentDisputes.RequestInfo)
	agentGroup.Post("/:id/comments", cfg.AgentDisputes.AddComment)

	// Assignment of others, cancellation, and closure need senior privileges.
	senior := auth.RequireAgentRole(domain.AgentRoleSenior, domain.AgentRoleAdmin)
	seniorGroup := app.Group("/agent/disputes", cfg.AuthMiddleware.Handle, senior)
	seniorGroup.Post("/:id/assign", cfg.AgentDisputes.Assign)
	seniorGroup.Post("/:id/cancel", cfg.AgentDisputes.Cancel)
	seniorGroup.Post("/:id/close", cfg.AgentDisputes.Close)
}
