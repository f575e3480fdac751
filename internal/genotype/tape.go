package genotype

import (
	"fmt"
	"math/rand"

	"commcoop/internal/model"
)

// Rule is one entry of a tape machine's rule table. Next is either a state
// index or, when negative, a terminal decision.
type Rule struct {
	Write model.Token `json:"write"`
	Move  int         `json:"move"`
	Next  int         `json:"next"`
}

// Decision reports the decision the rule locks, if any.
func (r Rule) Decision() (model.Decision, bool) {
	d := model.Decision(r.Next)
	return d, d.Terminal()
}

// TapeMachine reads and writes a tape shared with its opponent. Emit maps
// the tape value under the head to the outgoing token; Rules is indexed by
// [state][opponent token].
type TapeMachine struct {
	NumTokens        int           `json:"tokens"`
	Emit             []model.Token `json:"emit"`
	Rules            [][]Rule      `json:"rules"`
	TerminalRuleRate float64       `json:"terminal_rule_rate"`
}

func (m *TapeMachine) Kind() string { return KindTape }

func (m *TapeMachine) States() int { return len(m.Rules) }

func (m *TapeMachine) Tokens() int { return m.NumTokens }

// TokenFor returns the token emitted when the head reads value.
func (m *TapeMachine) TokenFor(value model.Token) model.Token {
	return m.Emit[value]
}

// Rule returns the rule applied in state after hearing token.
func (m *TapeMachine) Rule(state int, token model.Token) Rule {
	return m.Rules[state][token]
}

func (m *TapeMachine) Validate() error {
	if len(m.Rules) < 1 {
		return ErrInvalidStates
	}
	if m.NumTokens < 2 {
		return ErrInvalidAlphabet
	}
	if len(m.Emit) != m.NumTokens {
		return fmt.Errorf("%w: emit map has %d entries, want %d", ErrNotTotal, len(m.Emit), m.NumTokens)
	}
	for value, token := range m.Emit {
		if token < 1 || int(token) >= m.NumTokens {
			return fmt.Errorf("%w: tape value %d emits token %d", ErrNotTotal, value, token)
		}
	}
	states := len(m.Rules)
	for state, row := range m.Rules {
		if len(row) != m.NumTokens {
			return fmt.Errorf("%w: state %d has %d rules, want %d", ErrNotTotal, state, len(row), m.NumTokens)
		}
		for token, rule := range row {
			if rule.Write < 0 || int(rule.Write) >= m.NumTokens {
				return fmt.Errorf("%w: rule (%d,%d) writes %d", ErrNotTotal, state, token, rule.Write)
			}
			if rule.Move < -1 || rule.Move > 1 {
				return fmt.Errorf("%w: rule (%d,%d) moves %d", ErrNotTotal, state, token, rule.Move)
			}
			if _, terminal := rule.Decision(); !terminal && (rule.Next < 0 || rule.Next >= states) {
				return fmt.Errorf("%w: rule (%d,%d) targets state %d", ErrNotTotal, state, token, rule.Next)
			}
		}
	}
	return nil
}

// MutateAction re-rolls one emit entry. The start state has no action map
// entry of its own here, so protectStart has no effect.
func (m *TapeMachine) MutateAction(rng *rand.Rand, _ bool) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(m.Emit) == 0 {
		return ErrInvalidAlphabet
	}
	m.Emit[rng.Intn(len(m.Emit))] = randomToken(rng, m.NumTokens)
	return nil
}

func (m *TapeMachine) MutateTransition(rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	states := len(m.Rules)
	if states == 0 || m.NumTokens == 0 {
		return ErrInvalidStates
	}
	state := rng.Intn(states)
	token := rng.Intn(m.NumTokens)
	m.Rules[state][token] = RandomRule(rng, states, m.NumTokens, m.TerminalRuleRate)
	return nil
}

func (m *TapeMachine) Clone() Strategy {
	return CloneTapeMachine(m)
}

func (m *TapeMachine) Fingerprint() string {
	return ComputeSignature(m).Fingerprint
}
