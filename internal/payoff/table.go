package payoff

import (
	"errors"
	"fmt"
	"strings"

	"commcoop/internal/model"
)

var ErrMissingOutcome = errors.New("payoff table missing outcome")

// Outcome is an ordered pair of terminal decisions.
type Outcome struct {
	First  model.Decision
	Second model.Decision
}

// Scores is the payoff pair for an outcome, in seat order.
type Scores struct {
	First  float64
	Second float64
}

// Table maps every ordered pair over {cooperate, defect, no_action} to a
// payoff pair.
type Table map[Outcome]Scores

var decisions = []model.Decision{model.Cooperate, model.Defect, model.NoAction}

// Canonical returns the prisoner's dilemma table with no-decision penalties.
func Canonical() Table {
	c, d, n := model.Cooperate, model.Defect, model.NoAction
	return Table{
		{c, c}: {3, 3},
		{c, d}: {0, 5},
		{d, c}: {5, 0},
		{d, d}: {1, 1},
		{c, n}: {2, -5},
		{n, c}: {-5, 2},
		{d, n}: {2, -5},
		{n, d}: {-5, 2},
		{n, n}: {-5, -5},
	}
}

// Validate requires an entry for all nine outcomes.
func (t Table) Validate() error {
	for _, first := range decisions {
		for _, second := range decisions {
			if _, ok := t[Outcome{first, second}]; !ok {
				return fmt.Errorf("%w: (%s,%s)", ErrMissingOutcome, first, second)
			}
		}
	}
	return nil
}

// Lookup resolves the payoff for (first, second). A missing entry is a
// configuration error and is never defaulted.
func (t Table) Lookup(first, second model.Decision) (Scores, error) {
	s, ok := t[Outcome{first, second}]
	if !ok {
		return Scores{}, fmt.Errorf("%w: (%s,%s)", ErrMissingOutcome, first, second)
	}
	return s, nil
}

// Clone copies t so callers can override entries without touching the
// source.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ParseDecision accepts the short and long names used in configuration.
func ParseDecision(s string) (model.Decision, error) {
	switch s {
	case "c", "C", "cooperate":
		return model.Cooperate, nil
	case "d", "D", "defect":
		return model.Defect, nil
	case "n", "N", "no_action", "none":
		return model.NoAction, nil
	default:
		return 0, fmt.Errorf("unknown decision %q", s)
	}
}

// Key renders an outcome as "C,D" style text.
func Key(o Outcome) string {
	return shortName(o.First) + "," + shortName(o.Second)
}

// ParseKey reverses Key. Long decision names are accepted too.
func ParseKey(key string) (Outcome, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return Outcome{}, fmt.Errorf("payoff key %q must be first,second", key)
	}
	first, err := ParseDecision(strings.TrimSpace(parts[0]))
	if err != nil {
		return Outcome{}, err
	}
	second, err := ParseDecision(strings.TrimSpace(parts[1]))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{First: first, Second: second}, nil
}

// Map flattens the table for configuration files.
func (t Table) Map() map[string][2]float64 {
	out := make(map[string][2]float64, len(t))
	for o, s := range t {
		out[Key(o)] = [2]float64{s.First, s.Second}
	}
	return out
}

// WithOverrides returns a copy of t with entries replaced from overrides.
func (t Table) WithOverrides(overrides map[string][2]float64) (Table, error) {
	out := t.Clone()
	for key, pair := range overrides {
		o, err := ParseKey(key)
		if err != nil {
			return nil, err
		}
		out[o] = Scores{First: pair[0], Second: pair[1]}
	}
	return out, nil
}

func shortName(d model.Decision) string {
	switch d {
	case model.Cooperate:
		return "C"
	case model.Defect:
		return "D"
	case model.NoAction:
		return "N"
	default:
		return d.String()
	}
}
