// Package lifecycle holds the authoritative dispute state machine.
//
// Every transition is a pure evaluation of (state, event, context); callers
// receive the target state plus a list of side-effect descriptors to execute
// transactionally. Illegal moves return INVALID_TRANSITION and nothing else
// happens.
package lifecycle

import (
	"errors"
	"strings"

	"github.com/spec-kit/dispute-service/internal/domain"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// Event enumerates state-machine inputs.
type Event string

const (
	EventSubmit            Event = "SUBMIT"
	EventAssign            Event = "ASSIGN"
	EventRequestInfo       Event = "REQUEST_INFO"
	EventEscalate          Event = "ESCALATE"
	EventResolve           Event = "RESOLVE"
	EventCancel            Event = "CANCEL"
	EventClose             Event = "CLOSE"
	EventReopen            Event = "REOPEN"
	EventAppeal            Event = "APPEAL"
	EventBeginAutoResolve  Event = "BEGIN_AUTO_RESOLVE"
	EventFinishAutoResolve Event = "FINISH_AUTO_RESOLVE"
	EventFailAutoResolve   Event = "FAIL_AUTO_RESOLVE"
)

// Action describes a side effect the caller must apply alongside the state
// change. The machine itself never mutates anything.
type Action string

const (
	ActionComputePriority     Action = "compute_priority"
	ActionComputeSLADeadline  Action = "compute_sla_deadline"
	ActionAssignAgent         Action = "assign_agent"
	ActionClearAssignee       Action = "clear_assignee"
	ActionIncrementEscalation Action = "increment_escalation"
	ActionRecordResolution    Action = "record_resolution"
	ActionRecordCancellation  Action = "record_cancellation"
	ActionEnqueueAssignment   Action = "enqueue_assignment"
)

// ErrEscalationCapReached is returned when an escalation would push the
// dispute past the configured cap. The SLA monitor treats this as
// "log and hold" rather than a failure.
var ErrEscalationCapReached = errors.New("escalation cap reached")

// Context carries the data guards need.
type Context struct {
	AgentID         string
	EscalationLevel int
	EscalationCap   int
}

type guard struct {
	name  string
	check func(Context) error
}

var guardHasAgent = guard{
	name: "hasAgent",
	check: func(c Context) error {
		if strings.TrimSpace(c.AgentID) == "" {
			return apperrors.NewValidationError("agent id required for assignment", nil)
		}
		return nil
	},
}

var guardCanEscalateFurther = guard{
	name: "canEscalateFurther",
	check: func(c Context) error {
		if c.EscalationLevel >= c.EscalationCap {
			return ErrEscalationCapReached
		}
		return nil
	},
}

type transitionKey struct {
	state domain.DisputeState
	event Event
}

type transition struct {
	target  domain.DisputeState
	guards  []guard
	actions []Action
}

// The transition table is the single source of truth for legal moves.
// Escalation from open/investigating lands in "escalated"; SLA-driven
// escalation of an already-escalated dispute targets critical_escalation.
var transitions = map[transitionKey]transition{
	{domain.StateDraft, EventSubmit}: {
		target:  domain.StateOpen,
		actions: []Action{ActionComputePriority, ActionComputeSLADeadline, ActionEnqueueAssignment},
	},
	{domain.StateDraft, EventCancel}: {
		target:  domain.StateCancelled,
		actions: []Action{ActionRecordCancellation},
	},

	{domain.StateOpen, EventAssign}: {
		target:  domain.StateInvestigating,
		guards:  []guard{guardHasAgent},
		actions: []Action{ActionAssignAgent},
	},
	{domain.StateOpen, EventBeginAutoResolve}: {
		target: domain.StateAutoResolving,
	},
	{domain.StateOpen, EventEscalate}: {
		target:  domain.StateEscalated,
		guards:  []guard{guardCanEscalateFurther},
		actions: []Action{ActionIncrementEscalation, ActionClearAssignee, ActionComputePriority, ActionEnqueueAssignment},
	},
	{domain.StateOpen, EventCancel}: {
		target:  domain.StateCancelled,
		actions: []Action{ActionRecordCancellation},
	},

	{domain.StateInvestigating, EventResolve}: {
		target:  domain.StateResolved,
		actions: []Action{ActionRecordResolution},
	},
	{domain.StateInvestigating, EventEscalate}: {
		target:  domain.StateEscalated,
		guards:  []guard{guardCanEscalateFurther},
		actions: []Action{ActionIncrementEscalation, ActionClearAssignee, ActionComputePriority, ActionEnqueueAssignment},
	},
	{domain.StateInvestigating, EventRequestInfo}: {
		target: domain.StateOpen,
	},
	{domain.StateInvestigating, EventCancel}: {
		target:  domain.StateCancelled,
		actions: []Action{ActionRecordCancellation},
	},

	{domain.StateEscalated, EventAssign}: {
		target:  domain.StateInvestigating,
		guards:  []guard{guardHasAgent},
		actions: []Action{ActionAssignAgent},
	},
	{domain.StateEscalated, EventResolve}: {
		target:  domain.StateResolved,
		actions: []Action{ActionRecordResolution},
	},
	{domain.StateEscalated, EventEscalate}: {
		target:  domain.StateCriticalEscalation,
		guards:  []guard{guardCanEscalateFurther},
		actions: []Action{ActionIncrementEscalation, ActionClearAssignee, ActionComputePriority, ActionEnqueueAssignment},
	},
	{domain.StateEscalated, EventCancel}: {
		target:  domain.StateCancelled,
		actions: []Action{ActionRecordCancellation},
	},

	{domain.StateCriticalEscalation, EventAssign}: {
		target:  domain.StateInvestigating,
		guards:  []guard{guardHasAgent},
		actions: []Action{ActionAssignAgent},
	},
	{domain.StateCriticalEscalation, EventResolve}: {
		target:  domain.StateResolved,
		actions: []Action{ActionRecordResolution},
	},
	{domain.StateCriticalEscalation, EventCancel}: {
		target:  domain.StateCancelled,
		actions: []Action{ActionRecordCancellation},
	},

	{domain.StateAutoResolving, EventFinishAutoResolve}: {
		target:  domain.StateResolved,
		actions: []Action{ActionRecordResolution},
	},
	{domain.StateAutoResolving, EventFailAutoResolve}: {
		target: domain.StateOpen,
	},

	{domain.StateResolved, EventClose}: {
		target: domain.StateClosed,
	},
	{domain.StateResolved, EventReopen}: {
		target:  domain.StateOpen,
		actions: []Action{ActionEnqueueAssignment},
	},
	{domain.StateResolved, EventAppeal}: {
		target:  domain.StateEscalated,
		guards:  []guard{guardCanEscalateFurther},
		actions: []Action{ActionIncrementEscalation, ActionClearAssignee, ActionComputePriority, ActionEnqueueAssignment},
	},
}

// Apply evaluates the transition table. On success it returns the target
// state and the actions the caller must carry out; on an unknown (state,
// event) pair it returns INVALID_TRANSITION, and on a failed guard the
// guard's error. No mutation happens in either failure case.
func Apply(state domain.DisputeState, event Event, tctx Context) (domain.DisputeState, []Action, error) {
	t, ok := transitions[transitionKey{state: state, event: event}]
	if !ok {
		return state, nil, apperrors.NewInvalidTransition(string(state), string(event))
	}
	for _, g := range t.guards {
		if err := g.check(tctx); err != nil {
			return state, nil, err
		}
	}
	return t.target, t.actions, nil
}

// CanApply reports whether the event is legal in the given state, ignoring
// guards.
func CanApply(state domain.DisputeState, event Event) bool {
	_, ok := transitions[transitionKey{state: state, event: event}]
	return ok
}

// Events lists every event the machine understands; useful for exhaustive
// rejection tests.
var Events = []Event{
	EventSubmit, EventAssign, EventRequestInfo, EventEscalate, EventResolve,
	EventCancel, EventClose, EventReopen, EventAppeal,
	EventBeginAutoResolve, EventFinishAutoResolve, EventFailAutoResolve,
}

// States lists every dispute state.
var States = []domain.DisputeState{
	domain.StateDraft, domain.StateOpen, domain.StateInvestigating,
	domain.StateAutoResolving, domain.StateEscalated, domain.StateCriticalEscalation,
	domain.StateResolved, domain.StateClosed, domain.StateCancelled,
}
