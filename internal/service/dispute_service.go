package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/lifecycle"
	"github.com/spec-kit/dispute-service/internal/money"
	"github.com/spec-kit/dispute-service/internal/queue"
	"github.com/spec-kit/dispute-service/internal/repository"
	"github.com/spec-kit/dispute-service/internal/scoring"
	"github.com/spec-kit/dispute-service/internal/sla"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// DisputeLocker serializes writes to a single dispute row. Every state
// transition runs inside it so an agent action and a monitor sweep touching
// the same dispute cannot overwrite each other. Satisfied by
// *repository.DisputeStore.
type DisputeLocker interface {
	WithDisputeLock(ctx context.Context, disputeID string, fn func(ctx context.Context, tx sla.DisputeTx) error) error
}

// DisputeService coordinates dispute workflows.
type DisputeService struct {
	disputes   repository.DisputeRepository
	timeline   repository.TimelineRepository
	audits     repository.AuditRepository
	evidence   repository.EvidenceRepository
	users      repository.UserRepository
	store      DisputeLocker
	pool       repository.DBTX
	dispatcher events.Dispatcher
	jobs       *queue.Queue
	cfg        *config.Config
	logger     *zap.Logger
}

// DisputeDependencies bundles collaborators for the dispute service.
type DisputeDependencies struct {
	DisputeRepo  repository.DisputeRepository
	TimelineRepo repository.TimelineRepository
	AuditRepo    repository.AuditRepository
	EvidenceRepo repository.EvidenceRepository
	UserRepo     repository.UserRepository
	Store        DisputeLocker
	Pool         repository.DBTX
	Dispatcher   events.Dispatcher
	Jobs         *queue.Queue
	Config       *config.Config
	Logger       *zap.Logger
}

// DisputeCreateInput describes dispute creation payload.
type DisputeCreateInput struct {
	TransactionID string
	Category      domain.DisputeCategory
	Amount        string
	Description   string
	TransactionAt time.Time
}

// DisputeUserFilter describes end-user listing filters.
type DisputeUserFilter struct {
	States      []domain.DisputeState
	Categories  []domain.DisputeCategory
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// DisputeAgentFilter describes agent listing filters.
type DisputeAgentFilter struct {
	UserID      *string
	AssigneeID  *string
	States      []domain.DisputeState
	Priorities  []domain.DisputePriority
	Categories  []domain.DisputeCategory
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// ResolveInput describes an agent resolution.
type ResolveInput struct {
	Outcome           domain.DisputeOutcome
	Details           string
	RefundAmountMinor *int64
}

// NewDisputeService constructs the service.
func NewDisputeService(deps DisputeDependencies) *DisputeService {
	return &DisputeService{
		disputes:   deps.DisputeRepo,
		timeline:   deps.TimelineRepo,
		audits:     deps.AuditRepo,
		evidence:   deps.EvidenceRepo,
		users:      deps.UserRepo,
		store:      deps.Store,
		pool:       deps.Pool,
		dispatcher: deps.Dispatcher,
		jobs:       deps.Jobs,
		cfg:        deps.Config,
		logger:     deps.Logger,
	}
}

// CreateDispute files a dispute for a user and submits it into the open
// state. The amount must parse as a positive decimal with at most two
// fraction digits; duplicate filings against the same transaction are
// rejected by a partial unique index, so concurrent submissions cannot both
// win.
func (s *DisputeService) CreateDispute(ctx context.Context, user *domain.User, input DisputeCreateInput) (*domain.Dispute, error) {
	if !validCategory(input.Category) {
		return nil, apperrors.NewValidationError("unknown dispute category", map[string]any{"category": input.Category})
	}
	if strings.TrimSpace(input.TransactionID) == "" {
		return nil, apperrors.NewValidationError("transaction id required", nil)
	}
	amountMinor, err := money.ParseMinorUnits(input.Amount)
	if err != nil {
		return nil, apperrors.NewValidationError("amount must be a positive decimal with at most two fraction digits", map[string]any{"amount": input.Amount})
	}

	now := time.Now()
	assessment := s.assessFraud(ctx, user.ID, input, now)

	dispute := &domain.Dispute{
		ReferenceKey:  generateReferenceKey(),
		TransactionID: strings.TrimSpace(input.TransactionID),
		UserID:        user.ID,
		Category:      input.Category,
		Amount:        strings.TrimSpace(input.Amount),
		Description:   strings.TrimSpace(input.Description),
		State:         domain.StateDraft,
		Priority:      scoring.TriagePriority(amountMinor, user.Tier, s.cfg.Scoring),
		FraudScore:    assessment.Score,
		IsFraudulent:  assessment.Score >= s.cfg.Scoring.FraudHighRisk,
		TransactionAt: input.TransactionAt,
	}

	newState, actions, err := lifecycle.Apply(dispute.State, lifecycle.EventSubmit, lifecycle.Context{})
	if err != nil {
		return nil, err
	}
	dispute.State = newState
	for _, action := range actions {
		switch action {
		case lifecycle.ActionComputePriority:
			dispute.Priority = s.weightedPriority(dispute, amountMinor, now)
		case lifecycle.ActionComputeSLADeadline:
			deadline := sla.Deadline(now, dispute.Priority, s.cfg.SLA)
			dispute.SLADeadline = &deadline
		}
	}

	if err := s.disputes.Create(ctx, s.pool, dispute); err != nil {
		if errors.Is(err, domain.ErrDuplicateDispute) {
			return nil, apperrors.NewConflict("a non-cancelled dispute already exists for this transaction", map[string]any{"transaction_id": dispute.TransactionID})
		}
		return nil, err
	}

	entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineCreated, domain.ActorUser, &user.ID, map[string]any{
		"category":       dispute.Category,
		"amount":         dispute.Amount,
		"transaction_id": dispute.TransactionID,
		"priority":       dispute.Priority,
		"fraud_score":    dispute.FraudScore,
	})
	if err := s.timeline.Append(ctx, s.pool, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
		return nil, err
	}
	s.appendAudit(ctx, dispute.ID, domain.AuditDisputeCreated, domain.ActorUser, &user.ID, map[string]any{
		"category": dispute.Category,
		"amount":   dispute.Amount,
	})

	s.publishEvent(ctx, events.Event{
		Type:      events.EventDisputeCreated,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     userActor(user.ID),
		Payload: events.DisputeCreatedPayload{
			Category:      dispute.Category,
			Amount:        dispute.Amount,
			Priority:      dispute.Priority,
			TransactionID: dispute.TransactionID,
		},
	})

	s.enqueue(ctx, queue.QueueAssignment, map[string]any{"dispute_id": dispute.ID})
	s.enqueue(ctx, queue.QueueAutoResolution, map[string]any{"dispute_id": dispute.ID})
	return dispute, nil
}

// ListUserDisputes returns paginated disputes for a filer.
func (s *DisputeService) ListUserDisputes(ctx context.Context, userID string, filter DisputeUserFilter) ([]domain.Dispute, error) {
	repoFilter := repository.DisputeFilter{
		UserID:      &userID,
		States:      filter.States,
		Categories:  filter.Categories,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	return s.disputes.ListWithFilter(ctx, repoFilter)
}

// GetDisputeForUser fetches a dispute ensuring ownership, with its timeline.
func (s *DisputeService) GetDisputeForUser(ctx context.Context, userID, disputeID string) (*domain.Dispute, []domain.TimelineEntry, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	if dispute.UserID != userID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	entries, err := s.timeline.ListByDispute(ctx, disputeID, 100, 0)
	if err != nil {
		return nil, nil, err
	}
	return dispute, entries, nil
}

// ListAgentDisputes returns disputes matching agent filters.
func (s *DisputeService) ListAgentDisputes(ctx context.Context, filter DisputeAgentFilter) ([]domain.Dispute, error) {
	repoFilter := repository.DisputeFilter{
		UserID:      filter.UserID,
		AssigneeID:  filter.AssigneeID,
		States:      filter.States,
		Priorities:  filter.Priorities,
		Categories:  filter.Categories,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	return s.disputes.ListWithFilter(ctx, repoFilter)
}

// GetDisputeForAgent fetches a dispute with timeline for an agent.
func (s *DisputeService) GetDisputeForAgent(ctx context.Context, disputeID string) (*domain.Dispute, []domain.TimelineEntry, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.timeline.ListByDispute(ctx, disputeID, 100, 0)
	if err != nil {
		return nil, nil, err
	}
	return dispute, entries, nil
}

// Resolve closes out an investigation with an outcome. The transition runs
// under the dispute row lock, so a monitor escalation committed moments
// earlier is resolved as-is rather than overwritten.
func (s *DisputeService) Resolve(ctx context.Context, agent *domain.Agent, disputeID string, input ResolveInput) (*domain.Dispute, error) {
	if input.RefundAmountMinor != nil && *input.RefundAmountMinor <= 0 {
		return nil, apperrors.NewValidationError("refund amount must be positive", nil)
	}

	var dispute *domain.Dispute
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		d := tx.Dispute()
		oldState := d.State
		newState, actions, err := lifecycle.Apply(d.State, lifecycle.EventResolve, lifecycle.Context{})
		if err != nil {
			return err
		}
		d.State = newState
		for _, action := range actions {
			if action == lifecycle.ActionRecordResolution {
				now := time.Now()
				outcome := input.Outcome
				details := strings.TrimSpace(input.Details)
				d.Outcome = &outcome
				d.OutcomeDetails = &details
				d.ResolvedAt = &now
				d.RefundAmount = input.RefundAmountMinor
			}
		}
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		if err := appendStateChange(ctx, tx, d, oldState, domain.ActorAgent, &agent.ID, "resolved"); err != nil {
			return err
		}
		entry := domain.NewTimelineEntry(d.ID, domain.TimelineResolution, domain.ActorAgent, &agent.ID, map[string]any{
			"outcome":       input.Outcome,
			"details":       strings.TrimSpace(input.Details),
			"refund_amount": input.RefundAmountMinor,
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
			return err
		}
		if err := tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &d.ID,
			Action:    domain.AuditDisputeResolved,
			ActorType: domain.ActorAgent,
			ActorID:   &agent.ID,
			Details:   map[string]any{"outcome": input.Outcome},
		}); err != nil {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, mapDisputeWriteErr(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventDisputeResolved,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     agentActor(agent.ID),
		Payload: events.ResolvedPayload{
			Outcome:      input.Outcome,
			RefundAmount: input.RefundAmountMinor,
			AutoResolved: false,
		},
	})

	if input.RefundAmountMinor != nil && input.Outcome != domain.OutcomeMerchantFavor {
		s.enqueue(ctx, queue.QueueRefund, map[string]any{"dispute_id": dispute.ID})
	}
	s.enqueue(ctx, queue.QueueNotification, map[string]any{
		"dispute_id": dispute.ID,
		"user_id":    dispute.UserID,
		"kind":       "resolved",
	})
	return dispute, nil
}

// Escalate raises a dispute manually.
func (s *DisputeService) Escalate(ctx context.Context, agent *domain.Agent, disputeID, reason string) (*domain.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("escalation reason required", nil)
	}

	var dispute *domain.Dispute
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		d := tx.Dispute()
		oldState := d.State
		tctx := lifecycle.Context{
			EscalationLevel: d.EscalationLevel,
			EscalationCap:   s.cfg.SLA.EscalationCap,
		}
		newState, actions, err := lifecycle.Apply(d.State, lifecycle.EventEscalate, tctx)
		if err != nil {
			if errors.Is(err, lifecycle.ErrEscalationCapReached) {
				return apperrors.NewConflict("escalation cap reached", map[string]any{"level": d.EscalationLevel})
			}
			return err
		}
		d.State = newState
		s.applyEscalationActions(d, actions, reason)
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		if err := appendStateChange(ctx, tx, d, oldState, domain.ActorAgent, &agent.ID, reason); err != nil {
			return err
		}
		entry := domain.NewTimelineEntry(d.ID, domain.TimelineEscalation, domain.ActorAgent, &agent.ID, map[string]any{
			"reason":           reason,
			"escalation_level": d.EscalationLevel,
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
			return err
		}
		if err := tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &d.ID,
			Action:    domain.AuditDisputeEscalated,
			ActorType: domain.ActorAgent,
			ActorID:   &agent.ID,
			Details:   map[string]any{"reason": reason, "level": d.EscalationLevel},
		}); err != nil {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, mapDisputeWriteErr(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventDisputeEscalated,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     agentActor(agent.ID),
		Payload: events.EscalatedPayload{
			Level:  dispute.EscalationLevel,
			Reason: reason,
		},
	})

	s.enqueue(ctx, queue.QueueAssignment, map[string]any{"dispute_id": dispute.ID})
	return dispute, nil
}

// RequestInfo returns a dispute to the open state pending more input from
// the filer.
func (s *DisputeService) RequestInfo(ctx context.Context, agent *domain.Agent, disputeID, note string) (*domain.Dispute, error) {
	return s.transition(ctx, disputeID, lifecycle.EventRequestInfo, domain.ActorAgent, &agent.ID, note, nil)
}

// Cancel withdraws a dispute.
func (s *DisputeService) Cancel(ctx context.Context, actorType domain.ActorType, actorID *string, disputeID, reason string) (*domain.Dispute, error) {
	var dispute *domain.Dispute
	var oldState domain.DisputeState
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		d := tx.Dispute()
		if actorType == domain.ActorUser && (actorID == nil || d.UserID != *actorID) {
			return apperrors.NewForbidden("access denied")
		}
		oldState = d.State
		newState, actions, err := lifecycle.Apply(d.State, lifecycle.EventCancel, lifecycle.Context{})
		if err != nil {
			return err
		}
		d.State = newState
		for _, action := range actions {
			if action == lifecycle.ActionRecordCancellation {
				details := strings.TrimSpace(reason)
				if details == "" {
					details = "cancelled"
				}
				d.OutcomeDetails = &details
			}
		}
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		if err := appendStateChange(ctx, tx, d, oldState, actorType, actorID, reason); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &d.ID,
			Action:    domain.AuditDisputeUpdated,
			ActorType: actorType,
			ActorID:   actorID,
			Details:   map[string]any{"action": "cancelled", "reason": reason},
		}); err != nil {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, mapDisputeWriteErr(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventDisputeStateChanged,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     events.Actor{Type: actorType, UserID: actorIDForType(actorType, domain.ActorUser, actorID), AgentID: actorIDForType(actorType, domain.ActorAgent, actorID)},
		Payload: events.StateChangedPayload{
			OldState: oldState,
			NewState: dispute.State,
			Comment:  reason,
		},
	})
	return dispute, nil
}

// Close finalizes a resolved dispute.
func (s *DisputeService) Close(ctx context.Context, actorType domain.ActorType, actorID *string, disputeID string) (*domain.Dispute, error) {
	return s.transition(ctx, disputeID, lifecycle.EventClose, actorType, actorID, "closed", func(d *domain.Dispute) error {
		if actorType == domain.ActorUser && (actorID == nil || d.UserID != *actorID) {
			return apperrors.NewForbidden("access denied")
		}
		return nil
	})
}

// Reopen returns a resolved dispute to open.
func (s *DisputeService) Reopen(ctx context.Context, userID, disputeID, reason string) (*domain.Dispute, error) {
	return s.transition(ctx, disputeID, lifecycle.EventReopen, domain.ActorUser, &userID, reason, func(d *domain.Dispute) error {
		if d.UserID != userID {
			return apperrors.NewForbidden("access denied")
		}
		return nil
	})
}

// Appeal escalates a resolved dispute the filer disagrees with.
func (s *DisputeService) Appeal(ctx context.Context, userID, disputeID, reason string) (*domain.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("appeal reason required", nil)
	}

	var dispute *domain.Dispute
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		d := tx.Dispute()
		if d.UserID != userID {
			return apperrors.NewForbidden("access denied")
		}
		oldState := d.State
		tctx := lifecycle.Context{
			EscalationLevel: d.EscalationLevel,
			EscalationCap:   s.cfg.SLA.EscalationCap,
		}
		newState, actions, err := lifecycle.Apply(d.State, lifecycle.EventAppeal, tctx)
		if err != nil {
			if errors.Is(err, lifecycle.ErrEscalationCapReached) {
				return apperrors.NewConflict("escalation cap reached", map[string]any{"level": d.EscalationLevel})
			}
			return err
		}
		d.State = newState
		s.applyEscalationActions(d, actions, "appeal: "+strings.TrimSpace(reason))
		d.Outcome = nil
		d.OutcomeDetails = nil
		d.ResolvedAt = nil
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		if err := appendStateChange(ctx, tx, d, oldState, domain.ActorUser, &userID, reason); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &d.ID,
			Action:    domain.AuditDisputeEscalated,
			ActorType: domain.ActorUser,
			ActorID:   &userID,
			Details:   map[string]any{"reason": "appeal", "level": d.EscalationLevel},
		}); err != nil {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, mapDisputeWriteErr(err)
	}

	s.enqueue(ctx, queue.QueueAssignment, map[string]any{"dispute_id": dispute.ID})
	return dispute, nil
}

// AddComment appends a comment to the dispute timeline. Identical repeated
// comments collapse into the already-recorded entry.
func (s *DisputeService) AddComment(ctx context.Context, actorType domain.ActorType, actorID *string, disputeID, body string, internal bool) (*domain.TimelineEntry, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body required", nil)
	}
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if actorType == domain.ActorUser {
		if actorID == nil || dispute.UserID != *actorID {
			return nil, apperrors.NewForbidden("access denied")
		}
		internal = false
	}
	if dispute.State.IsTerminal() {
		return nil, apperrors.NewConflict("dispute no longer accepts comments", map[string]any{"state": dispute.State})
	}

	entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineComment, actorType, actorID, map[string]any{
		"body":     body,
		"internal": internal,
	})
	if err := s.timeline.Append(ctx, s.pool, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateTimelineEntry) {
			return entry, nil
		}
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventCommentAdded,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     events.Actor{Type: actorType, UserID: actorIDForType(actorType, domain.ActorUser, actorID), AgentID: actorIDForType(actorType, domain.ActorAgent, actorID)},
		Payload: events.CommentAddedPayload{
			Internal:    internal,
			BodyPreview: stringPreview(body, 120),
		},
	})
	return entry, nil
}

// transition runs a guard-checked lifecycle event under the dispute row lock
// and records the state change. Events and follow-up jobs fire only after the
// transaction committed.
func (s *DisputeService) transition(ctx context.Context, disputeID string, event lifecycle.Event, actorType domain.ActorType, actorID *string, comment string, guard func(*domain.Dispute) error) (*domain.Dispute, error) {
	var dispute *domain.Dispute
	var oldState domain.DisputeState
	var actions []lifecycle.Action
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		d := tx.Dispute()
		if guard != nil {
			if err := guard(d); err != nil {
				return err
			}
		}
		oldState = d.State
		newState, acts, err := lifecycle.Apply(d.State, event, lifecycle.Context{})
		if err != nil {
			return err
		}
		d.State = newState
		actions = acts
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		if err := appendStateChange(ctx, tx, d, oldState, actorType, actorID, comment); err != nil {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, mapDisputeWriteErr(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventDisputeStateChanged,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     events.Actor{Type: actorType, UserID: actorIDForType(actorType, domain.ActorUser, actorID), AgentID: actorIDForType(actorType, domain.ActorAgent, actorID)},
		Payload: events.StateChangedPayload{
			OldState: oldState,
			NewState: dispute.State,
			Comment:  comment,
		},
	})
	for _, action := range actions {
		if action == lifecycle.ActionEnqueueAssignment {
			s.enqueue(ctx, queue.QueueAssignment, map[string]any{"dispute_id": dispute.ID})
		}
	}
	return dispute, nil
}

func (s *DisputeService) applyEscalationActions(dispute *domain.Dispute, actions []lifecycle.Action, reason string) {
	for _, action := range actions {
		switch action {
		case lifecycle.ActionIncrementEscalation:
			dispute.EscalationLevel++
			trimmed := strings.TrimSpace(reason)
			dispute.EscalationReason = &trimmed
		case lifecycle.ActionClearAssignee:
			dispute.AssignedAgentID = nil
		case lifecycle.ActionComputePriority:
			amountMinor, err := money.ParseMinorUnits(dispute.Amount)
			if err != nil {
				s.logger.Warn("stored amount unparseable, keeping priority",
					zap.String("dispute_id", dispute.ID))
				continue
			}
			dispute.Priority = s.weightedPriority(dispute, amountMinor, time.Now())
		}
	}
}

func (s *DisputeService) weightedPriority(dispute *domain.Dispute, amountMinor int64, now time.Time) domain.DisputePriority {
	age := 0.0
	if !dispute.CreatedAt.IsZero() {
		age = now.Sub(dispute.CreatedAt).Hours()
	}
	score := scoring.PriorityScore(scoring.PriorityInput{
		Category:        dispute.Category,
		FraudScore:      dispute.FraudScore,
		AmountMinor:     amountMinor,
		AgeHours:        age,
		EscalationLevel: dispute.EscalationLevel,
	})
	return scoring.ClassifyPriority(score, s.cfg.Scoring)
}

func (s *DisputeService) assessFraud(ctx context.Context, userID string, input DisputeCreateInput, now time.Time) domain.FraudAssessment {
	in := scoring.FraudInput{
		Category:      input.Category,
		Amount:        input.Amount,
		FiledAt:       now,
		TransactionAt: input.TransactionAt,
	}
	if stats, err := s.disputes.UserOutcomeStats(ctx, userID); err == nil {
		in.History = scoring.UserHistory{
			TotalDisputes:      stats.TotalDisputes,
			DisputesLast30Days: stats.DisputesLast30Days,
			ResolvedDisputes:   stats.ResolvedDisputes,
			FavorableOutcomes:  stats.FavorableOutcomes,
		}
	} else {
		s.logger.Warn("fraud scoring without user history", zap.Error(err))
	}
	if count, err := s.disputes.CountRecentByUser(ctx, userID, now.Add(-24*time.Hour)); err == nil {
		in.History.FiledLast24Hours = count
	}
	if count, err := s.disputes.CountRecentByUserCategory(ctx, userID, input.Category, now.AddDate(0, 0, -7)); err == nil {
		in.SameCategoryLast7Days = count
	}
	if !input.TransactionAt.IsZero() {
		times, err := s.disputes.ListTransactionTimes(ctx, userID,
			input.TransactionAt.Add(-scoring.BurstWindow), input.TransactionAt.Add(scoring.BurstWindow))
		if err == nil {
			in.NearbyTransactionTimes = times
		}
	}
	txID := strings.TrimSpace(input.TransactionID)
	existing, err := s.disputes.ListWithFilter(ctx, repository.DisputeFilter{TransactionID: &txID, Limit: 1})
	if err == nil && len(existing) > 0 {
		in.ExistingDisputeOnTransaction = true
	}
	return scoring.Assess(in, s.cfg.Scoring)
}

// appendStateChange writes the state-change timeline entry inside the
// transaction. An identical transition replayed collapses into the recorded
// entry.
func appendStateChange(ctx context.Context, tx sla.DisputeTx, dispute *domain.Dispute, oldState domain.DisputeState, actorType domain.ActorType, actorID *string, comment string) error {
	entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineStateChange, actorType, actorID, map[string]any{
		"old_state": oldState,
		"new_state": dispute.State,
		"comment":   comment,
	})
	if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
		return err
	}
	return nil
}

// mapDisputeWriteErr translates store sentinels surfacing from a locked write
// into the API error taxonomy.
func mapDisputeWriteErr(err error) error {
	if errors.Is(err, domain.ErrDuplicateDispute) {
		return apperrors.NewConflict("a non-cancelled dispute already exists for this transaction", nil)
	}
	return err
}

func (s *DisputeService) appendAudit(ctx context.Context, disputeID string, action domain.AuditAction, actorType domain.ActorType, actorID *string, details map[string]any) {
	log := &domain.AuditLog{
		DisputeID: &disputeID,
		Action:    action,
		ActorType: actorType,
		ActorID:   actorID,
		Details:   details,
	}
	if err := s.audits.Append(ctx, s.pool, log); err != nil {
		s.logger.Error("append audit", zap.String("dispute_id", disputeID), zap.Error(err))
	}
}

func (s *DisputeService) enqueue(ctx context.Context, queueName string, payload map[string]any) {
	if s.jobs == nil {
		return
	}
	if _, err := s.jobs.Enqueue(ctx, queueName, payload); err != nil {
		s.logger.Error("enqueue job", zap.String("queue", queueName), zap.Error(err))
	}
}

func (s *DisputeService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func validCategory(category domain.DisputeCategory) bool {
	for _, c := range domain.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func generateReferenceKey() string {
	return "DSP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func userActor(userID string) events.Actor {
	return events.Actor{Type: domain.ActorUser, UserID: &userID}
}

func agentActor(agentID string) events.Actor {
	return events.Actor{Type: domain.ActorAgent, AgentID: &agentID}
}

func systemActor() events.Actor {
	return events.Actor{Type: domain.ActorSystem}
}

func actorIDForType(actual, want domain.ActorType, id *string) *string {
	if actual == want {
		return id
	}
	return nil
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
