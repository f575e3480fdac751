package evo

import (
	"fmt"
	"math/rand"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

const DefaultMutationRate = 0.5

// Engine builds the next population from a scored one by tournament
// selection, copy and mutation.
type Engine struct {
	Selector       Selector
	MutationPolicy []WeightedMutation
	MutationRate   float64
}

func (e *Engine) Validate(populationSize int) error {
	if e.Selector == nil {
		return fmt.Errorf("selector is required")
	}
	if v, ok := e.Selector.(interface{ Validate(int) error }); ok {
		if err := v.Validate(populationSize); err != nil {
			return err
		}
	}
	if e.MutationRate < 0 || e.MutationRate > 1 {
		return fmt.Errorf("mutation rate must be in [0,1], got %f", e.MutationRate)
	}
	return validatePolicy(e.MutationPolicy)
}

// NextGeneration draws exactly len(pop.Agents) children. Each child gets a
// deep copy of its parent's automaton, so nothing aliases the old
// generation.
func (e *Engine) NextGeneration(rng *rand.Rand, pop *Population) (*Population, []model.LineageRecord, error) {
	if rng == nil {
		return nil, nil, fmt.Errorf("random source is required")
	}
	if pop == nil || len(pop.Agents) == 0 {
		return nil, nil, fmt.Errorf("population is empty")
	}

	n := len(pop.Agents)
	next := &Population{Generation: pop.Generation + 1, Agents: make([]*agent.Agent, 0, n)}
	lineage := make([]model.LineageRecord, 0, n)
	for i := 0; i < n; i++ {
		parent, err := e.Selector.PickParent(rng, pop.Agents)
		if err != nil {
			return nil, nil, fmt.Errorf("select parent %d: %w", i, err)
		}
		strategy := parent.Strategy().Clone()
		operation := OpClone
		if rng.Float64() < e.MutationRate {
			op := chooseOperator(rng, e.MutationPolicy)
			if err := op.Apply(rng, strategy); err != nil {
				return nil, nil, fmt.Errorf("apply %s: %w", op.Name(), err)
			}
			operation = op.Name()
		}
		id, err := agent.NewID(rng)
		if err != nil {
			return nil, nil, err
		}
		child, err := agent.New(id, parent.ID(), strategy)
		if err != nil {
			return nil, nil, err
		}
		next.Agents = append(next.Agents, child)
		sig := genotype.ComputeSignature(strategy)
		lineage = append(lineage, model.LineageRecord{
			AgentID:     id,
			ParentID:    parent.ID(),
			Generation:  next.Generation,
			Operation:   operation,
			Fingerprint: sig.Fingerprint,
			Cooperate:   sig.Summary.Cooperate,
			Defect:      sig.Summary.Defect,
		})
	}
	return next, lineage, nil
}
