package negotiation

import (
	"errors"
	"math/rand"
	"testing"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
	"commcoop/internal/payoff"
)

const (
	coop   = model.Action(model.Cooperate)
	defect = model.Action(model.Defect)
)

// uniformFSM builds an automaton whose transitions all lead to next.
func uniformFSM(tokens int, actions []model.Action, next int) *genotype.FSM {
	f := &genotype.FSM{NumTokens: tokens, ActionMap: actions}
	f.Transitions = make([][]int, len(actions))
	for s := range f.Transitions {
		row := make([]int, tokens)
		for k := range row {
			row[k] = next
		}
		f.Transitions[s] = row
	}
	return f
}

func seat(s genotype.Strategy) Seat {
	return Seat{Strategy: s, Round: agent.NewRound(s.States())}
}

func TestFSMBothCooperateImmediately(t *testing.T) {
	a := uniformFSM(3, []model.Action{coop, 1}, 1)
	b := uniformFSM(3, []model.Action{coop}, 0)

	out, err := FSMProtocol{MaxChatLength: 10}.Negotiate(nil, seat(a), seat(b))
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if out.First != model.Cooperate || out.Second != model.Cooperate || out.ChatLength != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	scores, err := payoff.Canonical().Lookup(out.First, out.Second)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if scores != (payoff.Scores{First: 3, Second: 3}) {
		t.Fatalf("unexpected payoff: %+v", scores)
	}
}

func TestSeatForStartsEveryGameUndecided(t *testing.T) {
	a, err := agent.New("a", "", uniformFSM(3, []model.Action{coop}, 0))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	b, err := agent.New("b", "", uniformFSM(3, []model.Action{coop}, 0))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	p := FSMProtocol{MaxChatLength: 5}
	for game := 0; game < 2; game++ {
		first, second := SeatFor(a), SeatFor(b)
		if first.Round.Decided() || second.Round.Decided() {
			t.Fatalf("game %d: expected fresh undecided rounds", game)
		}
		out, err := p.Negotiate(nil, first, second)
		if err != nil {
			t.Fatalf("game %d: negotiate: %v", game, err)
		}
		if out.First != model.Cooperate || out.Second != model.Cooperate || out.ChatLength != 0 {
			t.Fatalf("game %d: unexpected outcome: %+v", game, out)
		}
		if first.Round.Decision() != out.First || second.Round.Decision() != out.Second {
			t.Fatalf("game %d: seats disagree with outcome: %s/%s", game, first.Round.Decision(), second.Round.Decision())
		}
	}
}

func TestFSMDecidedSeatDoesNotTransition(t *testing.T) {
	// Seat one talks once and then defects; seat two defects at once and
	// would move to state 1 if it kept transitioning.
	a := uniformFSM(2, []model.Action{1, defect}, 1)
	a.Transitions[0][0] = 1
	b := uniformFSM(2, []model.Action{defect, coop}, 1)

	s1, s2 := seat(a), seat(b)
	out, err := FSMProtocol{MaxChatLength: 10}.Negotiate(nil, s1, s2)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if out.First != model.Defect || out.Second != model.Defect {
		t.Fatalf("expected mutual defection, got %+v", out)
	}
	if out.ChatLength != 1 {
		t.Fatalf("expected chat length 1, got %d", out.ChatLength)
	}
	if s1.Round.State() != 1 {
		t.Fatalf("expected first seat in state 1, got %d", s1.Round.State())
	}
	if s2.Round.State() != 0 {
		t.Fatalf("decided seat transitioned to state %d", s2.Round.State())
	}
	scores, _ := payoff.Canonical().Lookup(out.First, out.Second)
	if scores != (payoff.Scores{First: 1, Second: 1}) {
		t.Fatalf("unexpected payoff: %+v", scores)
	}
}

func TestFSMMaxChatLengthYieldsNoAction(t *testing.T) {
	// Both seats loop on a token forever.
	a := uniformFSM(2, []model.Action{1}, 0)
	b := uniformFSM(2, []model.Action{1}, 0)

	out, err := FSMProtocol{MaxChatLength: 7}.Negotiate(nil, seat(a), seat(b))
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if out.First != model.NoAction || out.Second != model.NoAction || out.ChatLength != 7 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	scores, _ := payoff.Canonical().Lookup(out.First, out.Second)
	if scores != (payoff.Scores{First: -5, Second: -5}) {
		t.Fatalf("unexpected payoff: %+v", scores)
	}
}

func TestFSMOneSidedTimeout(t *testing.T) {
	a := uniformFSM(2, []model.Action{coop}, 0)
	b := uniformFSM(2, []model.Action{1}, 0)

	out, err := FSMProtocol{MaxChatLength: 4}.Negotiate(nil, seat(a), seat(b))
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if out.First != model.Cooperate || out.Second != model.NoAction || out.ChatLength != 4 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	scores, _ := payoff.Canonical().Lookup(out.First, out.Second)
	if scores != (payoff.Scores{First: 2, Second: -5}) {
		t.Fatalf("unexpected payoff: %+v", scores)
	}
}

func TestFSMZeroChatLength(t *testing.T) {
	talker := uniformFSM(3, []model.Action{2, coop}, 1)
	decider := uniformFSM(3, []model.Action{defect, coop}, 1)

	cases := []struct {
		name          string
		first, second *genotype.FSM
		want          Outcome
	}{
		{name: "neither terminal", first: talker, second: talker, want: Outcome{First: model.NoAction, Second: model.NoAction}},
		{name: "state zero terminal", first: decider, second: talker, want: Outcome{First: model.Defect, Second: model.NoAction}},
		{name: "both terminal", first: decider, second: decider, want: Outcome{First: model.Defect, Second: model.Defect}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s1, s2 := seat(tc.first), seat(tc.second)
			out, err := FSMProtocol{MaxChatLength: 0}.Negotiate(nil, s1, s2)
			if err != nil {
				t.Fatalf("negotiate: %v", err)
			}
			if out != tc.want {
				t.Fatalf("want %+v got %+v", tc.want, out)
			}
			if s1.Round.State() != 0 || s2.Round.State() != 0 {
				t.Fatal("expected no transitions with a zero chat limit")
			}
		})
	}
}

func TestFSMRandomAutomataAlwaysTerminate(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p := FSMProtocol{MaxChatLength: 10}
	for i := 0; i < 300; i++ {
		a, err := genotype.NewRandomFSM(rng, genotype.Params{States: 4, Tokens: 4})
		if err != nil {
			t.Fatalf("new fsm: %v", err)
		}
		b, err := genotype.NewRandomFSM(rng, genotype.Params{States: 4, Tokens: 4})
		if err != nil {
			t.Fatalf("new fsm: %v", err)
		}
		out, err := p.Negotiate(nil, seat(a), seat(b))
		if err != nil {
			t.Fatalf("negotiate: %v", err)
		}
		if out.ChatLength < 0 || out.ChatLength > p.MaxChatLength {
			t.Fatalf("chat length out of range: %d", out.ChatLength)
		}
		if _, err := payoff.Canonical().Lookup(out.First, out.Second); err != nil {
			t.Fatalf("outcome outside payoff domain: %v", err)
		}
	}
}

func TestFSMRejectsTapeStrategy(t *testing.T) {
	fsm := uniformFSM(2, []model.Action{coop}, 0)
	tape := uniformTape(2, 1, genotype.Rule{Write: 1, Next: 0})

	_, err := FSMProtocol{MaxChatLength: 3}.Negotiate(nil, seat(fsm), seat(tape))
	if !errors.Is(err, ErrStrategyMismatch) {
		t.Fatalf("expected strategy mismatch, got %v", err)
	}
}

func TestNewSelectsProtocolByKind(t *testing.T) {
	p, err := New(genotype.KindFSM, Options{MaxChatLength: 5})
	if err != nil || p.Kind() != genotype.KindFSM {
		t.Fatalf("unexpected fsm protocol: %v %v", p, err)
	}
	p, err = New(genotype.KindTape, Options{MaxChatLength: 5, TapeLength: 8})
	if err != nil || p.Kind() != genotype.KindTape {
		t.Fatalf("unexpected tape protocol: %v %v", p, err)
	}
	if _, err := New(genotype.KindTape, Options{MaxChatLength: 5}); err == nil {
		t.Fatal("expected tape length error")
	}
	if _, err := New("grid", Options{}); !errors.Is(err, genotype.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	if _, err := New(genotype.KindFSM, Options{MaxChatLength: -1}); err == nil {
		t.Fatal("expected negative chat length error")
	}
}
