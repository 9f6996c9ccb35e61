// Package entropy provides the single seeded random source shared by every agent.
// All stochastic draws in a run go through one Source so a seed reproduces the run exactly.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Seeded is a deterministic Source backed by math/rand.
type Seeded struct {
	seed  int64
	rng   *mrand.Rand
	draws uint64
}

// NewSeeded creates a deterministic source from seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Float64 returns the next draw.
func (s *Seeded) Float64() float64 {
	s.draws++
	return s.rng.Float64()
}

// Seed returns the seed the source was created with.
func (s *Seeded) Seed() int64 {
	return s.seed
}

// Draws returns how many values have been drawn so far.
func (s *Seeded) Draws() uint64 {
	return s.draws
}

// Fixed always returns the same value. Useful for pinning draws in tests.
type Fixed float64

// Float64 implements Source.
func (f Fixed) Float64() float64 { return float64(f) }

// Uniform draws from U[lo, hi) using src.
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// CryptoSeed picks a fresh positive seed from crypto/rand, for runs configured with seed 0.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to a fixed seed rather than fail the run.
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}
