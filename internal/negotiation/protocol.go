package negotiation

import (
	"errors"
	"fmt"
	"math/rand"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

var ErrStrategyMismatch = errors.New("strategy does not match protocol")

// Seat is one side of a negotiation: a read-only automaton and the round
// state it drives.
type Seat struct {
	Strategy genotype.Strategy
	Round    *agent.Round
}

// SeatFor gives a fresh round to a's automaton, so concurrent games never
// share round state.
func SeatFor(a *agent.Agent) Seat {
	return Seat{Strategy: a.Strategy(), Round: agent.NewRound(a.Strategy().States())}
}

// Outcome is the terminal result of one exchange.
type Outcome struct {
	First      model.Decision
	Second     model.Decision
	ChatLength int
}

func (o Outcome) MutualCooperation() bool {
	return o.First == model.Cooperate && o.Second == model.Cooperate
}

func (o Outcome) MutualDefection() bool {
	return o.First == model.Defect && o.Second == model.Defect
}

func (o Outcome) Undecided() bool {
	return o.First == model.NoAction || o.Second == model.NoAction
}

// Protocol runs one bounded token exchange between two seats.
type Protocol interface {
	Name() string
	// Kind is the strategy kind the protocol can execute.
	Kind() string
	Negotiate(rng *rand.Rand, first, second Seat) (Outcome, error)
}

// Options configures protocol construction.
type Options struct {
	MaxChatLength int
	TapeLength    int
	RandomTape    bool
}

// New selects the protocol for a strategy kind.
func New(kind string, opts Options) (Protocol, error) {
	if opts.MaxChatLength < 0 {
		return nil, fmt.Errorf("max chat length must be >= 0")
	}
	switch kind {
	case genotype.KindFSM:
		return FSMProtocol{MaxChatLength: opts.MaxChatLength}, nil
	case genotype.KindTape:
		if opts.TapeLength <= 0 {
			return nil, fmt.Errorf("tape length must be > 0")
		}
		return TapeProtocol{
			MaxChatLength: opts.MaxChatLength,
			TapeLength:    opts.TapeLength,
			RandomTape:    opts.RandomTape,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", genotype.ErrUnknownKind, kind)
	}
}

// exchange drives the shared loop: both seats act, silence from both ends
// the exchange, otherwise both hear and the chat grows. Actions are computed
// at most max(maxChat, 1) times, so a zero limit still lets state-0
// decisions lock.
func exchange(maxChat int, act func() (model.Token, model.Token, error), hear func(t1, t2 model.Token) error) (int, error) {
	chat := 0
	for {
		t1, t2, err := act()
		if err != nil {
			return chat, err
		}
		if t1 == model.Silence && t2 == model.Silence {
			return chat, nil
		}
		if chat >= maxChat {
			return chat, nil
		}
		if err := hear(t1, t2); err != nil {
			return chat, err
		}
		chat++
		if chat >= maxChat {
			return chat, nil
		}
	}
}
