package genotype

import (
	"errors"
	"fmt"
	"math/rand"
)

const (
	KindFSM  = "fsm"
	KindTape = "tape"
)

var (
	ErrInvalidStates   = errors.New("automaton needs at least one state")
	ErrInvalidAlphabet = errors.New("token alphabet needs at least two symbols")
	ErrNotTotal        = errors.New("automaton table is not total")
	ErrUnknownKind     = errors.New("unknown strategy kind")
	ErrInvalidRate     = errors.New("terminal rule rate must be in [0,1]")
)

// Strategy is the negotiation capability shared by every automaton
// representation. The generation loop and the evolution engine only talk to
// this interface; protocols type-assert the representation they execute.
type Strategy interface {
	Kind() string
	States() int
	Tokens() int
	Clone() Strategy
	Validate() error
	// MutateAction re-rolls one action map entry in place.
	MutateAction(rng *rand.Rand, protectStart bool) error
	// MutateTransition re-rolls one transition (or rule) entry in place.
	MutateTransition(rng *rand.Rand) error
	Fingerprint() string
}

// Params sizes a freshly generated automaton.
type Params struct {
	States int
	Tokens int
	// TerminalRuleRate is the chance that a generated tape rule decides
	// instead of moving to another state. Zero is honoured as given.
	TerminalRuleRate float64
}

func (p Params) Validate() error {
	if p.States < 1 {
		return ErrInvalidStates
	}
	if p.Tokens < 2 {
		return ErrInvalidAlphabet
	}
	if p.TerminalRuleRate < 0 || p.TerminalRuleRate > 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidRate, p.TerminalRuleRate)
	}
	return nil
}
