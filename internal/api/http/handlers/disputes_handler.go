package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispute-service/internal/api/dto"
	"github.com/spec-kit/dispute-service/internal/auth"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/service"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// DisputesHandler manages end-user dispute endpoints.
type DisputesHandler struct {
	disputes *service.DisputeService
	evidence *service.EvidenceService
}

// NewDisputesHandler constructs handler.
func NewDisputesHandler(disputeService *service.DisputeService, evidenceService *service.EvidenceService) *DisputesHandler {
	return &DisputesHandler{disputes: disputeService, evidence: evidenceService}
}

// CreateDispute POST /disputes.
func (h *DisputesHandler) CreateDispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TransactionID == "" || req.Amount == "" || req.Category == "" {
		return apperrors.NewValidationError("transaction_id, category, amount required", nil)
	}
	if req.TransactionAt.IsZero() {
		return apperrors.NewValidationError("transaction_at required", nil)
	}

	input := service.DisputeCreateInput{
		TransactionID: req.TransactionID,
		Category:      req.Category,
		Amount:        req.Amount,
		Description:   req.Description,
		TransactionAt: req.TransactionAt,
	}
	dispute, err := h.disputes.CreateDispute(c.Context(), principal.User, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// ListDisputes GET /disputes.
func (h *DisputesHandler) ListDisputes(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	filter := parseUserDisputeQuery(c)
	disputes, err := h.disputes.ListUserDisputes(c.Context(), principal.User.ID, filter)
	if err != nil {
		return err
	}
	items := make([]dto.DisputeSummary, 0, len(disputes))
	for i := range disputes {
		items = append(items, disputeSummary(&disputes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetDispute GET /disputes/:id.
func (h *DisputesHandler) GetDispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	dispute, timeline, err := h.disputes.GetDisputeForUser(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeDetail(dispute, visibleTimeline(timeline))})
}

// AddComment POST /disputes/:id/comments.
func (h *DisputesHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.disputes.AddComment(c.Context(), domain.ActorUser, &principal.User.ID, c.Params("id"), req.Body, false)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": timelineEntryResponse(entry)})
}

// UploadEvidence POST /disputes/:id/evidence.
func (h *DisputesHandler) UploadEvidence(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file required", nil)
	}
	src, err := file.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}

	mimeType := file.Header.Get("Content-Type")
	ev, err := h.evidence.Upload(c.Context(), principal.User.ID, c.Params("id"), file.Filename, mimeType, data)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": evidenceResponse(ev)})
}

// ListEvidence GET /disputes/:id/evidence.
func (h *DisputesHandler) ListEvidence(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	items, err := h.evidence.ListForDispute(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.EvidenceResponse, 0, len(items))
	for i := range items {
		resp = append(resp, evidenceResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// CancelDispute POST /disputes/:id/cancel.
func (h *DisputesHandler) CancelDispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ReasonRequest
	_ = c.BodyParser(&req)
	dispute, err := h.disputes.Cancel(c.Context(), domain.ActorUser, &principal.User.ID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// CloseDispute POST /disputes/:id/close.
func (h *DisputesHandler) CloseDispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	dispute, err := h.disputes.Close(c.Context(), domain.ActorUser, &principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// ReopenDispute POST /disputes/:id/reopen.
func (h *DisputesHandler) ReopenDispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ReasonRequest
	_ = c.BodyParser(&req)
	dispute, err := h.disputes.Reopen(c.Context(), principal.User.ID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// AppealDispute POST /disputes/:id/appeal.
func (h *DisputesHandler) AppealDispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dispute, err := h.disputes.Appeal(c.Context(), principal.User.ID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disputeSummary(dispute)})
}

// visibleTimeline filters out internal comments for end users.
func visibleTimeline(entries []domain.TimelineEntry) []domain.TimelineEntry {
	filtered := make([]domain.TimelineEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == domain.TimelineComment {
			if internal, ok := entry.Payload["internal"].(bool); ok && internal {
				continue
			}
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func parseUserDisputeQuery(c *fiber.Ctx) service.DisputeUserFilter {
	filter := service.DisputeUserFilter{}
	if stateStr := c.Query("state"); stateStr != "" {
		for _, part := range strings.Split(stateStr, ",") {
			filter.States = append(filter.States, domain.DisputeState(strings.TrimSpace(part)))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.DisputeCategory(strings.TrimSpace(part)))
		}
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

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func disputeSummary(dispute *domain.Dispute) dto.DisputeSummary {
	return dto.DisputeSummary{
		ID:              dispute.ID,
		ReferenceKey:    dispute.ReferenceKey,
		TransactionID:   dispute.TransactionID,
		Category:        dispute.Category,
		Amount:          dispute.Amount,
		State:           dispute.State,
		Priority:        dispute.Priority,
		SLADeadline:     dispute.SLADeadline,
		EscalationLevel: dispute.EscalationLevel,
		CreatedAt:       dispute.CreatedAt,
		UpdatedAt:       dispute.UpdatedAt,
	}
}

func disputeDetail(dispute *domain.Dispute, timeline []domain.TimelineEntry) dto.DisputeDetailResponse {
	entries := make([]dto.TimelineEntryResponse, 0, len(timeline))
	for i := range timeline {
		entries = append(entries, timelineEntryResponse(&timeline[i]))
	}
	return dto.DisputeDetailResponse{
		ID:                  dispute.ID,
		ReferenceKey:        dispute.ReferenceKey,
		TransactionID:       dispute.TransactionID,
		Category:            dispute.Category,
		Amount:              dispute.Amount,
		Description:         dispute.Description,
		State:               dispute.State,
		Priority:            dispute.Priority,
		AssignedAgentID:     dispute.AssignedAgentID,
		SLADeadline:         dispute.SLADeadline,
		EscalationLevel:     dispute.EscalationLevel,
		EscalationReason:    dispute.EscalationReason,
		FraudScore:          dispute.FraudScore,
		Outcome:             dispute.Outcome,
		OutcomeDetails:      dispute.OutcomeDetails,
		RefundAmount:        dispute.RefundAmount,
		RefundTransactionID: dispute.RefundTransactionID,
		TransactionAt:       dispute.TransactionAt,
		CreatedAt:           dispute.CreatedAt,
		UpdatedAt:           dispute.UpdatedAt,
		ResolvedAt:          dispute.ResolvedAt,
		Timeline:            entries,
	}
}

func timelineEntryResponse(entry *domain.TimelineEntry) dto.TimelineEntryResponse {
	return dto.TimelineEntryResponse{
		ID:        entry.ID,
		Type:      entry.Type,
		ActorType: entry.ActorType,
		ActorID:   entry.ActorID,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt,
	}
}

func evidenceResponse(ev *domain.Evidence) dto.EvidenceResponse {
	return dto.EvidenceResponse{
		ID:           ev.ID,
		FileName:     ev.FileName,
		MimeType:     ev.MimeType,
		SizeBytes:    ev.SizeBytes,
		UploadStatus: ev.UploadStatus,
		Confidence:   ev.Confidence,
		CreatedAt:    ev.CreatedAt,
	}
}
