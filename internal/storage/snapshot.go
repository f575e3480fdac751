package storage

import (
	"fmt"

	"commcoop/internal/agent"
	"commcoop/internal/evo"
	"commcoop/internal/model"
)

// SnapshotPopulation captures every agent's automaton so a run can resume
// from pop later.
func SnapshotPopulation(id, runID string, pop *evo.Population) (model.PopulationSnapshot, error) {
	if id == "" {
		return model.PopulationSnapshot{}, fmt.Errorf("population id is required")
	}
	snap := model.PopulationSnapshot{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		RunID:           runID,
		Generation:      pop.Generation,
		Agents:          make([]model.AgentSnapshot, 0, pop.Len()),
	}
	for _, a := range pop.Agents {
		payload, err := EncodeStrategy(a.Strategy())
		if err != nil {
			return model.PopulationSnapshot{}, fmt.Errorf("encode agent %s: %w", a.ID(), err)
		}
		snap.Agents = append(snap.Agents, model.AgentSnapshot{
			ID:       a.ID(),
			ParentID: a.ParentID(),
			Kind:     a.Strategy().Kind(),
			Strategy: payload,
		})
	}
	return snap, nil
}

// RestorePopulation rebuilds agents with fresh round state from a snapshot.
func RestorePopulation(snap model.PopulationSnapshot) (*evo.Population, error) {
	pop := &evo.Population{Generation: snap.Generation, Agents: make([]*agent.Agent, 0, len(snap.Agents))}
	for _, item := range snap.Agents {
		strategy, err := DecodeStrategy(item.Kind, item.Strategy)
		if err != nil {
			return nil, fmt.Errorf("decode agent %s: %w", item.ID, err)
		}
		a, err := agent.New(item.ID, item.ParentID, strategy)
		if err != nil {
			return nil, err
		}
		pop.Agents = append(pop.Agents, a)
	}
	return pop, nil
}
