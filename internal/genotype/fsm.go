package genotype

import (
	"fmt"
	"math/rand"

	"commcoop/internal/model"
)

// FSM is a finite-state negotiation automaton. ActionMap is indexed by state
// and Transitions by [state][token]; token 0 is part of the transition domain.
type FSM struct {
	NumTokens   int            `json:"tokens"`
	ActionMap   []model.Action `json:"action_map"`
	Transitions [][]int        `json:"transitions"`
}

func (f *FSM) Kind() string { return KindFSM }

func (f *FSM) States() int { return len(f.ActionMap) }

func (f *FSM) Tokens() int { return f.NumTokens }

// Action returns the action for state.
func (f *FSM) Action(state int) model.Action {
	return f.ActionMap[state]
}

// Next returns the state reached from state after hearing token.
func (f *FSM) Next(state int, token model.Token) int {
	return f.Transitions[state][token]
}

func (f *FSM) Validate() error {
	if len(f.ActionMap) < 1 {
		return ErrInvalidStates
	}
	if f.NumTokens < 2 {
		return ErrInvalidAlphabet
	}
	if len(f.Transitions) != len(f.ActionMap) {
		return fmt.Errorf("%w: %d transition rows for %d states", ErrNotTotal, len(f.Transitions), len(f.ActionMap))
	}
	for state, action := range f.ActionMap {
		if !validAction(action, f.NumTokens) {
			return fmt.Errorf("%w: state %d has action %s", ErrNotTotal, state, action)
		}
	}
	for state, row := range f.Transitions {
		if len(row) != f.NumTokens {
			return fmt.Errorf("%w: state %d has %d transitions, want %d", ErrNotTotal, state, len(row), f.NumTokens)
		}
		for token, next := range row {
			if next < 0 || next >= len(f.ActionMap) {
				return fmt.Errorf("%w: transition (%d,%d) targets state %d", ErrNotTotal, state, token, next)
			}
		}
	}
	return nil
}

func (f *FSM) MutateAction(rng *rand.Rand, protectStart bool) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	states := len(f.ActionMap)
	if states == 0 {
		return ErrInvalidStates
	}
	var state int
	if protectStart && states > 1 {
		state = 1 + rng.Intn(states-1)
	} else {
		state = rng.Intn(states)
	}
	f.ActionMap[state] = RandomAction(rng, f.NumTokens)
	return nil
}

func (f *FSM) MutateTransition(rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	states := len(f.Transitions)
	if states == 0 || f.NumTokens == 0 {
		return ErrInvalidStates
	}
	state := rng.Intn(states)
	token := rng.Intn(f.NumTokens)
	f.Transitions[state][token] = rng.Intn(states)
	return nil
}

func (f *FSM) Clone() Strategy {
	return CloneFSM(f)
}

func (f *FSM) Fingerprint() string {
	return ComputeSignature(f).Fingerprint
}

func validAction(a model.Action, tokens int) bool {
	if a.IsTerminal() {
		return true
	}
	return int(a) >= 1 && int(a) < tokens
}
