package coding

import "fmt"

// TransitionRule is one allowed edge of the candidate lifecycle.
type TransitionRule struct {
	From   State
	To     State
	Action Action
}

// DefaultTransitions lists every legal edge. rejected and merged have no outgoing edges.
// hypothesis is a reviewer annotation; it never gates promotion.
var DefaultTransitions = []TransitionRule{
	{From: StatePending, To: StateValidated, Action: ActionValidate},
	{From: StatePending, To: StateRejected, Action: ActionReject},
	{From: StatePending, To: StateMerged, Action: ActionMerge},
	{From: StatePending, To: StateHypothesis, Action: ActionHypothesis},
	{From: StateHypothesis, To: StatePending, Action: ActionHypothesis},
	{From: StateHypothesis, To: StateValidated, Action: ActionValidate},
	{From: StateHypothesis, To: StateRejected, Action: ActionReject},
	{From: StateHypothesis, To: StateMerged, Action: ActionMerge},
	{From: StateValidated, To: StatePending, Action: ActionRevert},
	{From: StateValidated, To: StateMerged, Action: ActionMerge},
}

const (
	TransitionCodeInvalid  = "invalid_transition"
	TransitionCodeTerminal = "terminal_state"
	TransitionCodeUnknown  = "unknown_state"
	TransitionCodePromoted = "already_promoted"
)

// LifecycleMachine validates candidate state transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
}

func NewLifecycleMachine() *LifecycleMachine {
	return &LifecycleMachine{transitions: DefaultTransitions}
}

func (m *LifecycleMachine) Terminal(s State) bool {
	return len(m.AllowedTransitions(s)) == 0
}

// ValidateTransition returns nil when from->to is allowed. Same-state moves are no-ops and always allowed.
func (m *LifecycleMachine) ValidateTransition(from, to State) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{
			Code:    TransitionCodeUnknown,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("unknown lifecycle state in %s -> %s", from, to),
		}
	}
	if from == to {
		return nil
	}
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	if m.Terminal(from) {
		return &TransitionError{
			Code:    TransitionCodeTerminal,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("candidate in terminal state %s cannot move to %s", from, to),
		}
	}
	return &TransitionError{
		Code:    TransitionCodeInvalid,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// ValidateCandidateTransition adds the promotion gate: a promoted candidate stays validated forever.
func (m *LifecycleMachine) ValidateCandidateTransition(c *CandidateCode, to State) error {
	if c == nil {
		return &TransitionError{Code: TransitionCodeUnknown, To: to, Message: "candidate is nil"}
	}
	if c.State == to {
		return nil
	}
	if c.Promoted() {
		return &TransitionError{
			Code:    TransitionCodePromoted,
			From:    c.State,
			To:      to,
			Message: fmt.Sprintf("candidate %s was promoted and cannot move to %s", c.ID, to),
		}
	}
	return m.ValidateTransition(c.State, to)
}

// ActionFor returns the audit action recorded for from->to.
func (m *LifecycleMachine) ActionFor(from, to State) (Action, bool) {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return t.Action, true
		}
	}
	return "", false
}

func (m *LifecycleMachine) AllowedTransitions(from State) []State {
	var allowed []State
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// TransitionError is a structured error for refused transitions.
type TransitionError struct {
	Code    string `json:"code"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}
