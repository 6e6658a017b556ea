// Package entropy provides randomness for stochastic choices in the tick
// protocol. Per-tick draws are pure functions of (seed, key, tick) so a Run
// phase can be repeated without advancing hidden state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	mrand "math/rand/v2"
)

// Source derives reproducible per-tick random streams from a fixed seed.
type Source struct {
	seed uint64
}

// NewSource returns a source for seed. A zero seed is replaced with a
// crypto-random one, so unseeded runs still vary.
func NewSource(seed uint64) *Source {
	if seed == 0 {
		seed = RandomSeed()
	}
	return &Source{seed: seed}
}

// Seed returns the effective seed.
func (s *Source) Seed() uint64 { return s.seed }

// Rand returns a generator for key at tick. Two calls with the same inputs
// yield identical sequences.
func (s *Source) Rand(key string, tick int) *mrand.Rand {
	h := fnv.New64a()
	h.Write([]byte(key))
	return mrand.New(mrand.NewPCG(s.seed^uint64(tick), h.Sum64()))
}

// Float returns a float64 in [0, 1) for key at tick.
func (s *Source) Float(key string, tick int) float64 {
	return s.Rand(key, tick).Float64()
}

// IntN returns an int in [0, n) for key at tick. n must be positive.
func (s *Source) IntN(key string, tick int, n int) int {
	return s.Rand(key, tick).IntN(n)
}

// TickFloat is Float on a throwaway source.
func TickFloat(seed uint64, key string, tick int) float64 {
	return (&Source{seed: seed}).Float(key, tick)
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// CryptoFloat returns a random float using crypto/rand.
func CryptoFloat() float64 {
	return cryptoRandFloat()
}

// RandomSeed returns a non-zero seed from crypto/rand.
func RandomSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0x9e3779b97f4a7c15
	}
	if s := binary.LittleEndian.Uint64(buf[:]); s != 0 {
		return s
	}
	return 1
}
