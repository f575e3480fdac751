package negotiation

import (
	"fmt"
	"math/rand"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

// FSMProtocol is the pure finite-state exchange.
type FSMProtocol struct {
	MaxChatLength int
}

func (FSMProtocol) Name() string { return "fsm_chat" }

func (FSMProtocol) Kind() string { return genotype.KindFSM }

func (p FSMProtocol) Negotiate(_ *rand.Rand, first, second Seat) (Outcome, error) {
	f1, ok := first.Strategy.(*genotype.FSM)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: first seat has %s", ErrStrategyMismatch, first.Strategy.Kind())
	}
	f2, ok := second.Strategy.(*genotype.FSM)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: second seat has %s", ErrStrategyMismatch, second.Strategy.Kind())
	}

	chat, err := exchange(p.MaxChatLength,
		func() (model.Token, model.Token, error) {
			t1, err := chooseAction(f1, first.Round)
			if err != nil {
				return 0, 0, err
			}
			t2, err := chooseAction(f2, second.Round)
			return t1, t2, err
		},
		func(t1, t2 model.Token) error {
			if err := handleToken(f1, first.Round, t2); err != nil {
				return err
			}
			return handleToken(f2, second.Round, t1)
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

// chooseAction emits silence once decided; a terminal action decides and
// emits silence; otherwise the state's token is emitted.
func chooseAction(f *genotype.FSM, r *agent.Round) (model.Token, error) {
	if r.Decided() {
		return model.Silence, nil
	}
	action := f.Action(r.State())
	if action.IsTerminal() {
		if err := r.Decide(action.Decision()); err != nil {
			return 0, err
		}
		return model.Silence, nil
	}
	return action.Token(), nil
}

// handleToken transitions undecided seats only.
func handleToken(f *genotype.FSM, r *agent.Round, token model.Token) error {
	if r.Decided() {
		return nil
	}
	return r.SetState(f.Next(r.State(), token))
}
