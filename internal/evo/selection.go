package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"commcoop/internal/agent"
)

var ErrTournamentTooSmall = errors.New("tournament needs at least two distinct members")

const (
	// PolicyFirstFallback keeps the first sampled agent unless a later one
	// has a strictly higher mean score.
	PolicyFirstFallback = "first_fallback"
	// PolicyLegacyPair compares two samples and hands ties to the second.
	PolicyLegacyPair = "legacy_pair"
)

// Selector chooses the parent that the next agent is copied from.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, agents []*agent.Agent) (*agent.Agent, error)
}

// TournamentSelector samples Size distinct agents and keeps the one with the
// best mean score this generation.
type TournamentSelector struct {
	Size   int
	Policy string
}

func (s TournamentSelector) Name() string {
	if s.Policy == "" {
		return "tournament"
	}
	return "tournament_" + s.Policy
}

func (s TournamentSelector) Validate(populationSize int) error {
	if s.Size < 2 {
		return fmt.Errorf("%w: size %d", ErrTournamentTooSmall, s.Size)
	}
	if populationSize < s.Size {
		return fmt.Errorf("%w: population %d smaller than tournament %d", ErrTournamentTooSmall, populationSize, s.Size)
	}
	switch s.Policy {
	case "", PolicyFirstFallback:
	case PolicyLegacyPair:
		if s.Size != 2 {
			return fmt.Errorf("%s policy requires tournament size 2, got %d", PolicyLegacyPair, s.Size)
		}
	default:
		return fmt.Errorf("unknown tournament policy: %s", s.Policy)
	}
	return nil
}

func (s TournamentSelector) PickParent(rng *rand.Rand, agents []*agent.Agent) (*agent.Agent, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if err := s.Validate(len(agents)); err != nil {
		return nil, err
	}

	sample := sampleDistinct(rng, len(agents), s.Size)
	best := agents[sample[0]]
	bestMean, err := meanScore(best)
	if err != nil {
		return nil, err
	}
	for _, idx := range sample[1:] {
		candidate := agents[idx]
		mean, err := meanScore(candidate)
		if err != nil {
			return nil, err
		}
		if s.Policy == PolicyLegacyPair {
			if !(bestMean > mean) {
				best, bestMean = candidate, mean
			}
			continue
		}
		if mean > bestMean {
			best, bestMean = candidate, mean
		}
	}
	return best, nil
}

// sampleDistinct draws k indices from [0,n) without replacement by a
// partial Fisher-Yates shuffle.
func sampleDistinct(rng *rand.Rand, n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func meanScore(a *agent.Agent) (float64, error) {
	mean, ok := a.MeanScore()
	if !ok {
		return 0, fmt.Errorf("agent %s has not played this generation", a.ID())
	}
	return mean, nil
}
