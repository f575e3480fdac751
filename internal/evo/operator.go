package evo

import (
	"math/rand"

	"commcoop/internal/genotype"
)

// Operator mutates a copied strategy in place.
type Operator interface {
	Name() string
	Apply(rng *rand.Rand, s genotype.Strategy) error
}
