package negotiation

import (
	"fmt"
	"math/rand"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

// TapeProtocol runs two tape machines over one circular tape. Within a
// round the first seat's rule is applied before the second seat's.
type TapeProtocol struct {
	MaxChatLength int
	TapeLength    int
	RandomTape    bool
}

func (TapeProtocol) Name() string { return "tape_chat" }

func (TapeProtocol) Kind() string { return genotype.KindTape }

func (p TapeProtocol) Negotiate(rng *rand.Rand, first, second Seat) (Outcome, error) {
	if rng == nil {
		return Outcome{}, fmt.Errorf("random source is required")
	}
	if p.TapeLength <= 0 {
		return Outcome{}, fmt.Errorf("tape length must be > 0")
	}
	m1, ok := first.Strategy.(*genotype.TapeMachine)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: first seat has %s", ErrStrategyMismatch, first.Strategy.Kind())
	}
	m2, ok := second.Strategy.(*genotype.TapeMachine)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: second seat has %s", ErrStrategyMismatch, second.Strategy.Kind())
	}
	if m1.Tokens() != m2.Tokens() {
		return Outcome{}, fmt.Errorf("%w: alphabets differ (%d vs %d)", ErrStrategyMismatch, m1.Tokens(), m2.Tokens())
	}

	tape := NewTape(p.TapeLength)
	if p.RandomTape {
		tape.Randomize(rng, m1.Tokens())
	}
	first.Round.SetHead(rng.Intn(p.TapeLength))
	second.Round.SetHead(rng.Intn(p.TapeLength))

	chat, err := exchange(p.MaxChatLength,
		func() (model.Token, model.Token, error) {
			return emit(m1, first.Round, tape), emit(m2, second.Round, tape), nil
		},
		func(t1, t2 model.Token) error {
			if err := applyRule(m1, first.Round, tape, t2); err != nil {
				return err
			}
			return applyRule(m2, second.Round, tape, t1)
		},
	)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		First:      first.Round.Decision(),
		Second:     second.Round.Decision(),
		ChatLength: chat,
	}, nil
}

func emit(m *genotype.TapeMachine, r *agent.Round, tape *Tape) model.Token {
	if r.Decided() {
		return model.Silence
	}
	return m.TokenFor(tape.Read(r.Head()))
}

// applyRule writes under the seat's head, moves it and adopts the next state
// or locks the decision.
func applyRule(m *genotype.TapeMachine, r *agent.Round, tape *Tape, heard model.Token) error {
	if r.Decided() {
		return nil
	}
	rule := m.Rule(r.State(), heard)
	tape.Write(r.Head(), rule.Write)
	r.SetHead(tape.Move(r.Head(), rule.Move))
	if d, terminal := rule.Decision(); terminal {
		return r.Decide(d)
	}
	return r.SetState(rule.Next)
}

// Tape is a fixed-length circular tape of token values.
type Tape struct {
	cells []model.Token
}

func NewTape(length int) *Tape {
	return &Tape{cells: make([]model.Token, length)}
}

func (t *Tape) Read(pos int) model.Token {
	return t.cells[pos]
}

func (t *Tape) Write(pos int, value model.Token) {
	t.cells[pos] = value
}

// Move shifts pos by delta with wraparound at both ends.
func (t *Tape) Move(pos, delta int) int {
	n := len(t.cells)
	return ((pos+delta)%n + n) % n
}

func (t *Tape) Randomize(rng *rand.Rand, tokens int) {
	for i := range t.cells {
		t.cells[i] = model.Token(rng.Intn(tokens))
	}
}
