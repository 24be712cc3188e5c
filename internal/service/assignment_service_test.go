package service

import (
	"context"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/repository"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

type fakeAgentRepo struct {
	agents    map[string]*domain.Agent
	workloads map[string]int
}

func newFakeAgentRepo(agents ...*domain.Agent) *fakeAgentRepo {
	r := &fakeAgentRepo{agents: map[string]*domain.Agent{}, workloads: map[string]int{}}
	for _, a := range agents {
		r.agents[a.ID] = a
	}
	return r
}

func (r *fakeAgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	copied := *agent
	r.agents[agent.ID] = &copied
	return nil
}

func (r *fakeAgentRepo) Update(ctx context.Context, agent *domain.Agent) error {
	if _, ok := r.agents[agent.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *agent
	r.agents[agent.ID] = &copied
	return nil
}

func (r *fakeAgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAgentRepo) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	for _, a := range r.agents {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeAgentRepo) List(ctx context.Context, filter repository.AgentFilter) ([]domain.Agent, error) {
	return nil, nil
}

func (r *fakeAgentRepo) ListAssignable(ctx context.Context) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, id := range sortedAgentIDs(r.agents) {
		if r.agents[id].Active {
			out = append(out, *r.agents[id])
		}
	}
	return out, nil
}

func (r *fakeAgentRepo) OpenWorkload(ctx context.Context, agentID string) (int, error) {
	return r.workloads[agentID], nil
}

func sortedAgentIDs(agents map[string]*domain.Agent) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type assignmentFixture struct {
	svc      *AssignmentService
	disputes *fakeDisputeRepo
	agents   *fakeAgentRepo
	timeline *fakeTimelineRepo
	locker   *fakeLocker
}

func newAssignmentFixture(t *testing.T, agents ...*domain.Agent) *assignmentFixture {
	t.Helper()
	disputes := newFakeDisputeRepo()
	agentRepo := newFakeAgentRepo(agents...)
	timeline := &fakeTimelineRepo{}
	locker := &fakeLocker{disputes: disputes, timeline: timeline, audits: &fakeAuditRepo{}}
	svc := NewAssignmentService(AssignmentDependencies{
		DisputeRepo: disputes,
		AgentRepo:   agentRepo,
		Store:       locker,
		Logger:      zap.NewNop(),
	})
	return &assignmentFixture{svc: svc, disputes: disputes, agents: agentRepo, timeline: timeline, locker: locker}
}

func (f *assignmentFixture) seedOpenDispute(t *testing.T) *domain.Dispute {
	t.Helper()
	d := &domain.Dispute{
		TransactionID: "txn-1",
		UserID:        "user-1",
		Category:      domain.CategoryOther,
		Amount:        "40.00",
		State:         domain.StateOpen,
		Priority:      domain.PriorityMedium,
	}
	require.NoError(t, f.disputes.Create(context.Background(), nil, d))
	return d
}

func activeAgent(id string) *domain.Agent {
	return &domain.Agent{ID: id, Role: domain.AgentRoleAgent, Active: true}
}

func TestSelfAssign(t *testing.T) {
	agent := activeAgent("agent-1")
	f := newAssignmentFixture(t, agent)
	d := f.seedOpenDispute(t)

	assigned, err := f.svc.SelfAssign(context.Background(), agent, d.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StateInvestigating, assigned.State)
	require.NotNil(t, assigned.AssignedAgentID)
	assert.Equal(t, "agent-1", *assigned.AssignedAgentID)
	assert.Len(t, f.timeline.ofType(d.ID, domain.TimelineAssignment), 1)
}

func TestAssignToAgent_RequiresSeniorRole(t *testing.T) {
	assignee := activeAgent("agent-2")
	f := newAssignmentFixture(t, assignee)
	d := f.seedOpenDispute(t)

	plain := activeAgent("agent-1")
	_, err := f.svc.AssignToAgent(context.Background(), plain, d.ID, "agent-2")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	senior := &domain.Agent{ID: "agent-3", Role: domain.AgentRoleSenior, Active: true}
	assigned, err := f.svc.AssignToAgent(context.Background(), senior, d.ID, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-2", *assigned.AssignedAgentID)
}

func TestAssignToAgent_InactiveAssignee(t *testing.T) {
	inactive := &domain.Agent{ID: "agent-2", Role: domain.AgentRoleAgent, Active: false}
	f := newAssignmentFixture(t, inactive)
	d := f.seedOpenDispute(t)

	senior := &domain.Agent{ID: "agent-3", Role: domain.AgentRoleSenior, Active: true}
	_, err := f.svc.AssignToAgent(context.Background(), senior, d.ID, "agent-2")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))

	_, err = f.svc.AssignToAgent(context.Background(), senior, d.ID, "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestAutoAssign_PicksLeastLoaded(t *testing.T) {
	busy := activeAgent("agent-1")
	idle := activeAgent("agent-2")
	f := newAssignmentFixture(t, busy, idle)
	f.agents.workloads["agent-1"] = 5
	f.agents.workloads["agent-2"] = 1
	d := f.seedOpenDispute(t)

	assigned, err := f.svc.AutoAssign(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedAgentID)
	assert.Equal(t, "agent-2", *assigned.AssignedAgentID)
}

func TestAutoAssign_SkipsDisputesThatMovedOn(t *testing.T) {
	f := newAssignmentFixture(t, activeAgent("agent-1"))
	d := f.seedOpenDispute(t)
	f.disputes.disputes[d.ID].State = domain.StateResolved

	got, err := f.svc.AutoAssign(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, got.State)
	assert.Nil(t, got.AssignedAgentID)
	assert.Empty(t, f.timeline.entries)
}

func TestAutoAssign_NoCandidates(t *testing.T) {
	f := newAssignmentFixture(t)
	d := f.seedOpenDispute(t)

	_, err := f.svc.AutoAssign(context.Background(), d.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestAutoAssign_MissingDispute(t *testing.T) {
	f := newAssignmentFixture(t, activeAgent("agent-1"))
	_, err := f.svc.AutoAssign(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestAssign_EscalatedDisputeReturnsToInvestigating(t *testing.T) {
	agent := activeAgent("agent-1")
	f := newAssignmentFixture(t, agent)
	d := f.seedOpenDispute(t)
	f.disputes.disputes[d.ID].State = domain.StateEscalated
	f.disputes.disputes[d.ID].EscalationLevel = 1

	assigned, err := f.svc.SelfAssign(context.Background(), agent, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvestigating, assigned.State)
	// Escalation level survives re-assignment.
	assert.Equal(t, 1, assigned.EscalationLevel)
}

func TestAssign_KeepsConcurrentEscalation(t *testing.T) {
	agent := activeAgent("agent-1")
	f := newAssignmentFixture(t, agent)
	d := f.seedOpenDispute(t)

	// The deadline monitor escalates just before the assignment acquires the
	// row lock; the assignment must pick up the escalated row.
	f.locker.beforeLock = func(d *domain.Dispute) {
		d.State = domain.StateEscalated
		d.EscalationLevel = 2
		d.AssignedAgentID = nil
	}

	assigned, err := f.svc.SelfAssign(context.Background(), agent, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvestigating, assigned.State)
	assert.Equal(t, 2, assigned.EscalationLevel)
	require.NotNil(t, assigned.AssignedAgentID)
	assert.Equal(t, "agent-1", *assigned.AssignedAgentID)

	stored := f.disputes.disputes[d.ID]
	assert.Equal(t, 2, stored.EscalationLevel)
}
