package provider

import "math/rand"

// RNG wraps math/rand.Rand with position tracking so a scripted run can
// report how far its random stream has advanced.
type RNG struct {
	seed int64
	src  *rand.Rand
	pos  int64
}

// NewRNG creates a new deterministic RNG from a seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		seed: seed,
		src:  rand.New(rand.NewSource(seed)),
	}
}

// Chance reports true with probability p.
func (r *RNG) Chance(p float64) bool {
	r.pos++
	return r.src.Float64() < p
}

// Pick returns an index in [0, n). n must be positive.
func (r *RNG) Pick(n int) int {
	r.pos++
	return r.src.Intn(n)
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 { return r.seed }

// Position returns the number of RNG calls made since creation.
func (r *RNG) Position() int64 { return r.pos }
