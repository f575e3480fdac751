package evo

import (
	"fmt"
	"math/rand"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

// Population is one generation's ordered set of agents. It is replaced
// wholesale every generation, never edited in place.
type Population struct {
	Generation int
	Agents     []*agent.Agent
}

// NewRandomPopulation seeds size agents with freshly generated automata of
// the given kind.
func NewRandomPopulation(rng *rand.Rand, kind string, params genotype.Params, size int) (*Population, []model.LineageRecord, error) {
	if rng == nil {
		return nil, nil, fmt.Errorf("random source is required")
	}
	if size < 2 {
		return nil, nil, fmt.Errorf("population size must be >= 2")
	}
	pop := &Population{Agents: make([]*agent.Agent, 0, size)}
	lineage := make([]model.LineageRecord, 0, size)
	for i := 0; i < size; i++ {
		strategy, err := genotype.NewRandom(kind, rng, params)
		if err != nil {
			return nil, nil, err
		}
		id, err := agent.NewID(rng)
		if err != nil {
			return nil, nil, err
		}
		a, err := agent.New(id, "", strategy)
		if err != nil {
			return nil, nil, err
		}
		pop.Agents = append(pop.Agents, a)
		sig := genotype.ComputeSignature(strategy)
		lineage = append(lineage, model.LineageRecord{
			AgentID:     id,
			Generation:  0,
			Operation:   OpSeed,
			Fingerprint: sig.Fingerprint,
			Cooperate:   sig.Summary.Cooperate,
			Defect:      sig.Summary.Defect,
		})
	}
	return pop, lineage, nil
}

func (p *Population) Len() int {
	return len(p.Agents)
}

// Reset clears every agent's round state and score history.
func (p *Population) Reset() {
	for _, a := range p.Agents {
		a.Reset()
	}
}

// Kind returns the shared strategy kind, or an error when agents disagree.
func (p *Population) Kind() (string, error) {
	if len(p.Agents) == 0 {
		return "", fmt.Errorf("population is empty")
	}
	kind := p.Agents[0].Strategy().Kind()
	for _, a := range p.Agents[1:] {
		if a.Strategy().Kind() != kind {
			return "", fmt.Errorf("mixed strategy kinds: %s and %s", kind, a.Strategy().Kind())
		}
	}
	return kind, nil
}

// Diversity counts distinct automaton fingerprints.
func (p *Population) Diversity() int {
	seen := make(map[string]struct{}, len(p.Agents))
	for _, a := range p.Agents {
		seen[a.Strategy().Fingerprint()] = struct{}{}
	}
	return len(seen)
}
