package genotype

import (
	"fmt"
	"math/rand"

	"commcoop/internal/model"
)

const DefaultTerminalRuleRate = 0.25

// RandomAction picks a communication token with probability 0.5, otherwise
// cooperate or defect with equal probability.
func RandomAction(rng *rand.Rand, tokens int) model.Action {
	if rng.Float64() < 0.5 {
		return model.TokenAction(randomToken(rng, tokens))
	}
	return model.DecisionAction(randomDecision(rng))
}

// RandomRule builds a tape rule with a uniform write value and move. With
// probability terminalRate the rule decides instead of changing state.
func RandomRule(rng *rand.Rand, states, tokens int, terminalRate float64) Rule {
	rule := Rule{
		Write: model.Token(rng.Intn(tokens)),
		Move:  rng.Intn(3) - 1,
	}
	if rng.Float64() < terminalRate {
		rule.Next = int(randomDecision(rng))
	} else {
		rule.Next = rng.Intn(states)
	}
	return rule
}

// NewRandomFSM generates a total finite-state automaton.
func NewRandomFSM(rng *rand.Rand, p Params) (*FSM, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	f := &FSM{
		NumTokens:   p.Tokens,
		ActionMap:   make([]model.Action, p.States),
		Transitions: make([][]int, p.States),
	}
	for state := range f.ActionMap {
		f.ActionMap[state] = RandomAction(rng, p.Tokens)
	}
	for state := range f.Transitions {
		row := make([]int, p.Tokens)
		for token := range row {
			row[token] = rng.Intn(p.States)
		}
		f.Transitions[state] = row
	}
	return f, nil
}

// NewRandomTapeMachine generates a total tape automaton.
func NewRandomTapeMachine(rng *rand.Rand, p Params) (*TapeMachine, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &TapeMachine{
		NumTokens:        p.Tokens,
		Emit:             make([]model.Token, p.Tokens),
		Rules:            make([][]Rule, p.States),
		TerminalRuleRate: p.TerminalRuleRate,
	}
	for value := range m.Emit {
		m.Emit[value] = randomToken(rng, p.Tokens)
	}
	for state := range m.Rules {
		row := make([]Rule, p.Tokens)
		for token := range row {
			row[token] = RandomRule(rng, p.States, p.Tokens, p.TerminalRuleRate)
		}
		m.Rules[state] = row
	}
	return m, nil
}

// NewRandom generates a strategy of the given kind.
func NewRandom(kind string, rng *rand.Rand, p Params) (Strategy, error) {
	switch kind {
	case KindFSM:
		f, err := NewRandomFSM(rng, p)
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindTape:
		m, err := NewRandomTapeMachine(rng, p)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

func randomToken(rng *rand.Rand, tokens int) model.Token {
	return model.Token(rng.Intn(tokens-1) + 1)
}

func randomDecision(rng *rand.Rand) model.Decision {
	if rng.Intn(2) == 0 {
		return model.Cooperate
	}
	return model.Defect
}
