package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/lifecycle"
	"github.com/spec-kit/dispute-service/internal/repository"
	"github.com/spec-kit/dispute-service/internal/sla"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// AssignmentService handles dispute assignment operations.
type AssignmentService struct {
	disputes   repository.DisputeRepository
	agents     repository.AgentRepository
	store      DisputeLocker
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	DisputeRepo repository.DisputeRepository
	AgentRepo   repository.AgentRepository
	Store       DisputeLocker
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		disputes:   deps.DisputeRepo,
		agents:     deps.AgentRepo,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// SelfAssign lets an agent pick up an unassigned dispute.
func (s *AssignmentService) SelfAssign(ctx context.Context, agent *domain.Agent, disputeID string) (*domain.Dispute, error) {
	if agent == nil {
		return nil, apperrors.NewUnauthorized("agent required")
	}
	return s.assign(ctx, agent.ID, agent, disputeID)
}

// AssignToAgent assigns a dispute to a named agent (SENIOR_AGENT/ADMIN).
func (s *AssignmentService) AssignToAgent(ctx context.Context, actor *domain.Agent, disputeID, agentID string) (*domain.Dispute, error) {
	if err := requireAssignPriv(actor); err != nil {
		return nil, err
	}
	assignee, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"agent_id": agentID})
	}
	return s.assign(ctx, actor.ID, assignee, disputeID)
}

// AutoAssign picks the least-loaded active agent. Called by the assignment
// worker; a dispute that already moved on is skipped, not failed.
func (s *AssignmentService) AutoAssign(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("dispute", map[string]any{"dispute_id": disputeID})
		}
		return nil, apperrors.MapError(err)
	}
	if !lifecycle.CanApply(dispute.State, lifecycle.EventAssign) {
		s.logger.Debug("auto-assign skipped",
			zap.String("dispute_id", disputeID),
			zap.String("state", string(dispute.State)))
		return dispute, nil
	}

	candidates, err := s.agents.ListAssignable(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewConflict("no assignable agents", nil)
	}

	assignee := candidates[selectIndex(dispute.ID, len(candidates))]
	bestLoad := -1
	for i := range candidates {
		load, err := s.agents.OpenWorkload(ctx, candidates[i].ID)
		if err != nil {
			continue
		}
		if bestLoad < 0 || load < bestLoad {
			bestLoad = load
			assignee = candidates[i]
		}
	}
	return s.assign(ctx, assignee.ID, &assignee, disputeID)
}

// assign performs the transition under the dispute row lock; an escalation
// committed by the deadline monitor in the meantime is assigned at its
// current level instead of being clobbered by a stale read.
func (s *AssignmentService) assign(ctx context.Context, actorID string, assignee *domain.Agent, disputeID string) (*domain.Dispute, error) {
	var dispute *domain.Dispute
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		d := tx.Dispute()
		oldState := d.State
		oldAssignee := d.AssignedAgentID
		newState, actions, err := lifecycle.Apply(d.State, lifecycle.EventAssign, lifecycle.Context{AgentID: assignee.ID})
		if err != nil {
			return err
		}
		d.State = newState
		for _, action := range actions {
			if action == lifecycle.ActionAssignAgent {
				id := assignee.ID
				d.AssignedAgentID = &id
			}
		}
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		entry := domain.NewTimelineEntry(d.ID, domain.TimelineAssignment, domain.ActorAgent, &actorID, map[string]any{
			"old_agent_id": oldAssignee,
			"new_agent_id": d.AssignedAgentID,
			"old_state":    oldState,
			"new_state":    d.State,
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("dispute", map[string]any{"dispute_id": disputeID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishAssignmentEvent(ctx, actorID, dispute)
	return dispute, nil
}

// selectIndex gives a stable starting candidate when workloads tie.
func selectIndex(key string, length int) int {
	if length == 0 {
		return 0
	}
	sum := 0
	for _, ch := range key {
		sum += int(ch)
	}
	return sum % length
}

func requireAssignPriv(agent *domain.Agent) error {
	if agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	if agent.Role != domain.AgentRoleSenior && agent.Role != domain.AgentRoleAdmin {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	return nil
}

func (s *AssignmentService) publishAssignmentEvent(ctx context.Context, actorID string, dispute *domain.Dispute) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventDisputeAssigned,
		DisputeID: dispute.ID,
		UserID:    dispute.UserID,
		Actor:     events.Actor{Type: domain.ActorAgent, AgentID: &actorID},
		Timestamp: time.Now(),
		Payload: events.AssignedPayload{
			AgentID: dispute.AssignedAgentID,
		},
	}
	_ = s.dispatcher.Publish(ctx, event)
}
