package agent

import (
	"errors"
	"math/rand"
	"testing"

	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

func newTestAgent(t *testing.T, id string) *Agent {
	t.Helper()
	f, err := genotype.NewRandomFSM(rand.New(rand.NewSource(1)), genotype.Params{States: 3, Tokens: 3})
	if err != nil {
		t.Fatalf("new fsm: %v", err)
	}
	a, err := New(id, "", f)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a
}

func TestNewRequiresValidStrategy(t *testing.T) {
	if _, err := New("", "", &genotype.FSM{}); err == nil {
		t.Fatal("expected missing id error")
	}
	if _, err := New("a", "", nil); err == nil {
		t.Fatal("expected missing strategy error")
	}
	broken := &genotype.FSM{NumTokens: 2, ActionMap: []model.Action{1}}
	if _, err := New("a", "", broken); !errors.Is(err, genotype.ErrNotTotal) {
		t.Fatalf("expected totality error, got %v", err)
	}
}

func TestRoundDecisionLocksTransitions(t *testing.T) {
	r := NewRound(3)
	if err := r.SetState(2); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := r.Decide(model.Defect); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if err := r.SetState(1); !errors.Is(err, ErrDecisionLocked) {
		t.Fatalf("expected locked transition, got %v", err)
	}
	if err := r.Decide(model.Cooperate); !errors.Is(err, ErrDecisionLocked) {
		t.Fatalf("expected locked decision, got %v", err)
	}
	if r.State() != 2 || r.Decision() != model.Defect {
		t.Fatalf("round changed after lock: state=%d decision=%s", r.State(), r.Decision())
	}
	if err := r.Decide(model.NoAction); err == nil {
		t.Fatal("expected non-terminal decision to be rejected")
	}
}

func TestRoundRejectsOutOfRangeState(t *testing.T) {
	r := NewRound(2)
	if err := r.SetState(2); err == nil {
		t.Fatal("expected out of range state error")
	}
}

func TestRoundResetReopensDecision(t *testing.T) {
	r := NewRound(3)
	if err := r.SetState(1); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := r.Decide(model.Cooperate); err != nil {
		t.Fatalf("decide: %v", err)
	}
	r.SetHead(4)

	r.Reset()
	if r.State() != 0 || r.Head() != 0 || r.Decision() != model.NoAction || r.Decided() {
		t.Fatalf("expected round reset, got state=%d head=%d decision=%s", r.State(), r.Head(), r.Decision())
	}
	if err := r.SetState(2); err != nil {
		t.Fatalf("expected transitions after reset, got %v", err)
	}
}

func TestRoundsAreIndependent(t *testing.T) {
	a, b := NewRound(2), NewRound(2)
	if err := a.Decide(model.Defect); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if b.Decided() {
		t.Fatal("expected second round to stay undecided")
	}
	if err := b.SetState(1); err != nil {
		t.Fatalf("set state: %v", err)
	}
}

func TestResetClearsScores(t *testing.T) {
	a := newTestAgent(t, "a1")
	a.RecordScore(3)
	a.RecordScore(0)

	mean, ok := a.MeanScore()
	if !ok || mean != 1.5 {
		t.Fatalf("unexpected mean: %f ok=%t", mean, ok)
	}

	a.Reset()
	if a.Games() != 0 {
		t.Fatalf("expected cleared scores, got %d", a.Games())
	}
	if _, ok := a.MeanScore(); ok {
		t.Fatal("expected no mean score after reset")
	}
}

func TestScoresReturnsCopy(t *testing.T) {
	a := newTestAgent(t, "a1")
	a.RecordScore(5)
	scores := a.Scores()
	scores[0] = -5
	if got := a.Scores()[0]; got != 5 {
		t.Fatalf("expected internal scores untouched, got %f", got)
	}
}

func TestNewIDIsDeterministicForSeed(t *testing.T) {
	a, err := NewID(rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	b, err := NewID(rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal ids for equal seeds: %s vs %s", a, b)
	}
}
