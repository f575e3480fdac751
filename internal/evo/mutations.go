package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"commcoop/internal/genotype"
)

var ErrOperatorNotFound = errors.New("mutation operator not found")

const (
	OpClone            = "clone"
	OpSeed             = "seed"
	OpMutateAction     = "mutate_action"
	OpMutateTransition = "mutate_transition"
)

// MutateAction re-rolls one action map entry with the same token-vs-terminal
// rule used at generation time.
type MutateAction struct {
	// ProtectStartState keeps state 0 out of reach when there is another
	// state to pick.
	ProtectStartState bool
}

func (MutateAction) Name() string { return OpMutateAction }

func (m MutateAction) Apply(rng *rand.Rand, s genotype.Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy is required")
	}
	return s.MutateAction(rng, m.ProtectStartState)
}

// MutateTransition re-rolls the target of one transition key.
type MutateTransition struct{}

func (MutateTransition) Name() string { return OpMutateTransition }

func (MutateTransition) Apply(rng *rand.Rand, s genotype.Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy is required")
	}
	return s.MutateTransition(rng)
}

// WeightedMutation is one entry of a mutation policy.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}

// DefaultMutationPolicy splits mutations evenly between the action map and
// the transition table.
func DefaultMutationPolicy(protectStart bool) []WeightedMutation {
	return []WeightedMutation{
		{Operator: MutateAction{ProtectStartState: protectStart}, Weight: 1},
		{Operator: MutateTransition{}, Weight: 1},
	}
}

// MutationPolicyFromWeights builds a policy from operator names. Names are
// applied in sorted order so the same weights always yield the same draws.
func MutationPolicyFromWeights(weights map[string]float64, protectStart bool) ([]WeightedMutation, error) {
	if len(weights) == 0 {
		return DefaultMutationPolicy(protectStart), nil
	}
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	policy := make([]WeightedMutation, 0, len(names))
	for _, name := range names {
		op, err := operatorByName(name, protectStart)
		if err != nil {
			return nil, err
		}
		policy = append(policy, WeightedMutation{Operator: op, Weight: weights[name]})
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func operatorByName(name string, protectStart bool) (Operator, error) {
	switch name {
	case OpMutateAction:
		return MutateAction{ProtectStartState: protectStart}, nil
	case OpMutateTransition:
		return MutateTransition{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
}

func validatePolicy(policy []WeightedMutation) error {
	if len(policy) == 0 {
		return fmt.Errorf("mutation policy is required")
	}
	positive := false
	for i, item := range policy {
		if item.Operator == nil {
			return fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("mutation policy requires at least one positive weight")
	}
	return nil
}

func chooseOperator(rng *rand.Rand, policy []WeightedMutation) Operator {
	total := 0.0
	for _, item := range policy {
		total += item.Weight
	}
	pick := rng.Float64() * total
	acc := 0.0
	var last Operator
	for _, item := range policy {
		if item.Weight <= 0 {
			continue
		}
		acc += item.Weight
		last = item.Operator
		if pick < acc {
			return item.Operator
		}
	}
	return last
}
