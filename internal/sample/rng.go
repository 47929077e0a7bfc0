package sample

import (
	"math/rand/v2"
)

// RNG is the randomness collaborator injected into sample evaluation.
// Production code uses NewDefaultRNG (an unseeded, non-reproducible
// source); tests use NewSeededRNG for determinism and reproducible
// sample sequences.
type RNG interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
}

type mathRandRNG struct {
	r *rand.Rand
}

func (m *mathRandRNG) Float64() float64 { return m.r.Float64() }

// NewDefaultRNG returns a non-deterministic RNG suitable for
// production runs.
func NewDefaultRNG() RNG {
	return &mathRandRNG{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRNG returns a deterministic RNG: identical seeds yield
// identical draw sequences, which is what makes whole runs
// reproducible.
func NewSeededRNG(seed uint64) RNG {
	return &mathRandRNG{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}
