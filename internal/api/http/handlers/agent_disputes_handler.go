package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispute-service/internal/api/dto"
	"github.com/spec-kit/dispute-service/internal/auth"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/service"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// AgentDisputesHandler manages the agent-facing dispute surface.
type AgentDisputesHandler struct {
	disputes    *service.DisputeService
	assignments *service.AssignmentService
}

// NewAgentDisputesHandler constructs handler.
func NewAgentDisputesHandler(disputeService *service.DisputeService, assignmentService *service.AssignmentService) *AgentDisputesHandler {
	return &AgentDisputesHandler{disputes: disputeService, assignments: assignmentService}
}

// ListDisputes GET /agent/disputes.
func (h *AgentDisputesHandler) ListDisputes(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	filter := parseAgentDisputeQuery(c)
	disputes, err := h.disputes.ListAgentDisputes(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.DisputeSummary, 0, len(disputes))
	for i := range disputes {
		items = append(items, disputeSummary(&disputes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetDispute GET /agent/disputes/:id.
func (h *AgentDisputesHandler) GetDispute(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	dispute, timeline, err := h.disputes.GetDisputeForAgent(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeDetail(dispute, timeline)})
}

// SelfAssign POST /agent/disputes/:id/claim.
func (h *AgentDisputesHandler) SelfAssign(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	dispute, err := h.assignments.SelfAssign(c.Context(), agent, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// Assign POST /agent/disputes/:id/assign.
func (h *AgentDisputesHandler) Assign(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	dispute, err := h.assignments.AssignToAgent(c.Context(), agent, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// Resolve POST /agent/disputes/:id/resolve.
func (h *AgentDisputesHandler) Resolve(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.ResolveInput{
		Outcome:           req.Outcome,
		Details:           req.Details,
		RefundAmountMinor: req.RefundAmountMinor,
	}
	dispute, err := h.disputes.Resolve(c.Context(), agent, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// Escalate POST /agent/disputes/:id/escalate.
func (h *AgentDisputesHandler) Escalate(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dispute, err := h.disputes.Escalate(c.Context(), agent, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// RequestInfo POST /agent/disputes/:id/request-info.
func (h *AgentDisputesHandler) RequestInfo(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	_ = c.BodyParser(&req)
	dispute, err := h.disputes.RequestInfo(c.Context(), agent, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// Cancel POST /agent/disputes/:id/cancel.
func (h *AgentDisputesHandler) Cancel(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	_ = c.BodyParser(&req)
	dispute, err := h.disputes.Cancel(c.Context(), domain.ActorAgent, &agent.ID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// Close POST /agent/disputes/:id/close.
func (h *AgentDisputesHandler) Close(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	dispute, err := h.disputes.Close(c.Context(), domain.ActorAgent, &agent.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// AddComment POST /agent/disputes/:id/comments.
func (h *AgentDisputesHandler) AddComment(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.disputes.AddComment(c.Context(), domain.ActorAgent, &agent.ID, c.Params("id"), req.Body, req.Internal)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": timelineEntryResponse(entry)})
}

func requireAgent(c *fiber.Ctx) (*domain.Agent, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return nil, apperrors.NewUnauthorized("agent required")
	}
	return principal.Agent, nil
}

func parseAgentDisputeQuery(c *fiber.Ctx) service.DisputeAgentFilter {
	filter := service.DisputeAgentFilter{}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if userID := c.Query("user_id"); userID != "" {
		filter.UserID = &userID
	}
	if stateStr := c.Query("state"); stateStr != "" {
		for _, part := range strings.Split(stateStr, ",") {
			filter.States = append(filter.States, domain.DisputeState(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.DisputePriority(strings.TrimSpace(part)))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.DisputeCategory(strings.TrimSpace(part)))
		}
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}
