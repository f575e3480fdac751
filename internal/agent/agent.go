package agent

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

var ErrDecisionLocked = errors.New("decision already locked")

// Round is the execution state of one negotiation: current automaton state,
// tape head and decision. Every game creates its own rounds. Once the
// decision is terminal the round refuses further transitions.
type Round struct {
	states   int
	state    int
	head     int
	decision model.Decision
}

func NewRound(states int) *Round {
	return &Round{states: states, decision: model.NoAction}
}

func (r *Round) Reset() {
	r.state = 0
	r.head = 0
	r.decision = model.NoAction
}

func (r *Round) State() int {
	return r.state
}

// SetState moves the automaton. Decided rounds never transition.
func (r *Round) SetState(state int) error {
	if r.Decided() {
		return fmt.Errorf("transition to %d: %w", state, ErrDecisionLocked)
	}
	if state < 0 || state >= r.states {
		return fmt.Errorf("state %d out of range [0,%d)", state, r.states)
	}
	r.state = state
	return nil
}

func (r *Round) Head() int {
	return r.head
}

func (r *Round) SetHead(head int) {
	r.head = head
}

func (r *Round) Decision() model.Decision {
	return r.decision
}

func (r *Round) Decided() bool {
	return r.decision.Terminal()
}

// Decide locks d for the rest of the round.
func (r *Round) Decide(d model.Decision) error {
	if !d.Terminal() {
		return fmt.Errorf("%s is not a terminal decision", d)
	}
	if r.Decided() {
		return fmt.Errorf("decide %s over %s: %w", d, r.decision, ErrDecisionLocked)
	}
	r.decision = d
	return nil
}

// Agent owns one automaton and the scores it earned this generation. The
// automaton is never shared with another agent. Round state lives in the
// game that drives it, see NewRound.
type Agent struct {
	id       string
	parentID string
	strategy genotype.Strategy
	scores   []float64
}

func New(id, parentID string, strategy genotype.Strategy) (*Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if strategy == nil {
		return nil, fmt.Errorf("agent strategy is required")
	}
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	return &Agent{
		id:       id,
		parentID: parentID,
		strategy: strategy,
	}, nil
}

// NewID draws an agent identity from r so seeded runs replay identically.
func NewID(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) ParentID() string {
	return a.parentID
}

func (a *Agent) Strategy() genotype.Strategy {
	return a.strategy
}

// Reset clears the score history at a generation boundary.
func (a *Agent) Reset() {
	a.scores = a.scores[:0]
}

func (a *Agent) RecordScore(score float64) {
	a.scores = append(a.scores, score)
}

func (a *Agent) Scores() []float64 {
	return append([]float64(nil), a.scores...)
}

func (a *Agent) Games() int {
	return len(a.scores)
}

// MeanScore reports the mean payoff this generation. ok is false when the
// agent has not played.
func (a *Agent) MeanScore() (mean float64, ok bool) {
	if len(a.scores) == 0 {
		return 0, false
	}
	total := 0.0
	for _, s := range a.scores {
		total += s
	}
	return total / float64(len(a.scores)), true
}
