package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispute-service/internal/domain"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

func TestApply_SubmitMovesDraftToOpen(t *testing.T) {
	state, actions, err := Apply(domain.StateDraft, EventSubmit, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, state)
	assert.Equal(t, []Action{ActionComputePriority, ActionComputeSLADeadline, ActionEnqueueAssignment}, actions)
}

func TestApply_AssignRequiresAgent(t *testing.T) {
	_, _, err := Apply(domain.StateOpen, EventAssign, Context{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	state, actions, err := Apply(domain.StateOpen, EventAssign, Context{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvestigating, state)
	assert.Contains(t, actions, ActionAssignAgent)
}

func TestApply_EscalationChain(t *testing.T) {
	ctx := Context{EscalationLevel: 0, EscalationCap: 3}

	state, actions, err := Apply(domain.StateOpen, EventEscalate, ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalated, state)
	assert.Contains(t, actions, ActionIncrementEscalation)
	assert.Contains(t, actions, ActionClearAssignee)

	state, _, err = Apply(domain.StateEscalated, EventEscalate, Context{EscalationLevel: 1, EscalationCap: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCriticalEscalation, state)
}

func TestApply_EscalationCap(t *testing.T) {
	_, _, err := Apply(domain.StateOpen, EventEscalate, Context{EscalationLevel: 3, EscalationCap: 3})
	require.ErrorIs(t, err, ErrEscalationCapReached)

	// A failed guard leaves the returned state untouched.
	state, actions, err := Apply(domain.StateEscalated, EventEscalate, Context{EscalationLevel: 5, EscalationCap: 3})
	require.ErrorIs(t, err, ErrEscalationCapReached)
	assert.Equal(t, domain.StateEscalated, state)
	assert.Empty(t, actions)
}

func TestApply_AutoResolveRoundTrip(t *testing.T) {
	state, _, err := Apply(domain.StateOpen, EventBeginAutoResolve, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAutoResolving, state)

	state, actions, err := Apply(domain.StateAutoResolving, EventFinishAutoResolve, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, state)
	assert.Contains(t, actions, ActionRecordResolution)

	state, _, err = Apply(domain.StateAutoResolving, EventFailAutoResolve, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, state)
}

func TestApply_ResolvedOutcomes(t *testing.T) {
	state, _, err := Apply(domain.StateResolved, EventClose, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, state)

	state, actions, err := Apply(domain.StateResolved, EventReopen, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, state)
	assert.Contains(t, actions, ActionEnqueueAssignment)

	state, _, err = Apply(domain.StateResolved, EventAppeal, Context{EscalationLevel: 0, EscalationCap: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalated, state)
}

func TestApply_TerminalStatesRejectEverything(t *testing.T) {
	for _, state := range []domain.DisputeState{domain.StateClosed, domain.StateCancelled} {
		for _, event := range Events {
			got, actions, err := Apply(state, event, Context{AgentID: "agent-1", EscalationCap: 10})
			require.Error(t, err, "state %s event %s", state, event)
			assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"))
			assert.Equal(t, state, got)
			assert.Nil(t, actions)
		}
	}
}

func TestApply_UnknownPairsRejected(t *testing.T) {
	// Exhaustive sweep: anything not in the table is INVALID_TRANSITION and
	// must not change state.
	for _, state := range States {
		for _, event := range Events {
			got, _, err := Apply(state, event, Context{AgentID: "agent-1", EscalationCap: 10})
			if CanApply(state, event) {
				require.NoError(t, err, "state %s event %s", state, event)
				continue
			}
			require.Error(t, err, "state %s event %s", state, event)
			assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"))
			assert.Equal(t, state, got)
		}
	}
}

func TestCanApply(t *testing.T) {
	assert.True(t, CanApply(domain.StateOpen, EventAssign))
	assert.True(t, CanApply(domain.StateEscalated, EventAssign))
	assert.False(t, CanApply(domain.StateResolved, EventAssign))
	assert.False(t, CanApply(domain.StateDraft, EventResolve))
}
