package coding

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	m := NewLifecycleMachine()
	cases := []struct {
		from, to State
		code     string
	}{
		{StatePending, StateValidated, ""},
		{StatePending, StateRejected, ""},
		{StateValidated, StatePending, ""},
		{StateValidated, StateMerged, ""},
		{StateHypothesis, StateValidated, ""},
		{StatePending, StateHypothesis, ""},
		{StateValidated, StateValidated, ""},
		{StateRejected, StateRejected, ""},
		{StateValidated, StateRejected, TransitionCodeInvalid},
		{StateRejected, StatePending, TransitionCodeTerminal},
		{StateMerged, StateValidated, TransitionCodeTerminal},
		{State("archived"), StatePending, TransitionCodeUnknown},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			err := m.ValidateTransition(tc.from, tc.to)
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			var te *TransitionError
			require.True(t, errors.As(err, &te), "expected TransitionError, got %v", err)
			assert.Equal(t, tc.code, te.Code)
		})
	}
}

func TestValidateCandidateTransitionBlocksPromotedRows(t *testing.T) {
	m := NewLifecycleMachine()
	now := time.Now()
	c := &CandidateCode{State: StateValidated, PromotedAt: &now}

	require.NoError(t, m.ValidateCandidateTransition(c, StateValidated))

	err := m.ValidateCandidateTransition(c, StatePending)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, TransitionCodePromoted, te.Code)
}

func TestTerminalStates(t *testing.T) {
	m := NewLifecycleMachine()
	assert.True(t, m.Terminal(StateRejected))
	assert.True(t, m.Terminal(StateMerged))
	assert.False(t, m.Terminal(StatePending))
	assert.ElementsMatch(t, []State{StatePending, StateMerged}, m.AllowedTransitions(StateValidated))
}

func TestActionFor(t *testing.T) {
	m := NewLifecycleMachine()
	a, ok := m.ActionFor(StateValidated, StatePending)
	require.True(t, ok)
	assert.Equal(t, ActionRevert, a)
	_, ok = m.ActionFor(StateRejected, StatePending)
	assert.False(t, ok)
}

func TestValidFragmentID(t *testing.T) {
	short := "frag-1"
	exact := "frag-000001"
	empty := ""
	assert.False(t, ValidFragmentID(nil))
	assert.False(t, ValidFragmentID(&empty))
	assert.False(t, ValidFragmentID(&short))
	assert.True(t, ValidFragmentID(&exact))
}
