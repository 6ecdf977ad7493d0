package utils

import (
	"math/rand/v2"
	"time"
)

// RandSource is a seeded random number generator. It is not safe for
// concurrent use; give each goroutine its own source via Derive.
type RandSource struct {
	seed uint64
	src  *rand.PCG
	rng  *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A zero seed picks one from the wall clock.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return newRandSource(uint64(seed))
}

func newRandSource(seed uint64) *RandSource {
	src := rand.NewPCG(seed, mix(seed^0x9e3779b97f4a7c15))
	return &RandSource{
		seed: seed,
		src:  src,
		rng:  rand.New(src),
	}
}

// Seed returns the seed the source was created with
func (r *RandSource) Seed() uint64 {
	return r.seed
}

// Source exposes the underlying generator for gonum distributions
func (r *RandSource) Source() rand.Source {
	return r.src
}

// Derive returns an independent child source keyed by the given values.
// The same parent seed and keys always produce the same child stream,
// regardless of how many values the parent has already produced.
func (r *RandSource) Derive(keys ...uint64) *RandSource {
	s := r.seed
	for _, k := range keys {
		s = mix(s ^ mix(k+0x632be59bd9b4e019))
	}
	return newRandSource(s)
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.IntN(n)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

// mix is the splitmix64 finaliser.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
