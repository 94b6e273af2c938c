package choke

import (
	"errors"
	"math/rand/v2"

	"github.com/iti/rngstream"
)

// ErrSharedRandSource is returned when a ChokeQueue is given the same
// RandSource for its drop and position draws.
var ErrSharedRandSource = errors.New("choke: drop and position draws need separate rand sources")

// RandSource is a stream of uniform random numbers.
type RandSource interface {
	// Float64 returns a number in [0, 1).
	Float64() float64
	// IntRange returns an integer in [lo, hi].
	IntRange(lo, hi int) int
}

// NewRngStream returns a RandSource backed by an MRG32k3a stream. Streams are
// carved out of the package seed in creation order, so a program that
// creates its streams in a fixed order sees the same numbers on every run.
func NewRngStream(name string) RandSource {
	return &rngStream{rngstream.New(name)}
}

type rngStream struct {
	s *rngstream.RngStream
}

func (r *rngStream) Float64() float64 {
	return r.s.RandU01()
}

func (r *rngStream) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return min(lo+int(r.s.RandU01()*float64(hi-lo+1)), hi)
}

// NewSeededSource returns a RandSource seeded with seed.
func NewSeededSource(seed uint64) RandSource {
	return &pcgSource{rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type pcgSource struct {
	r *rand.Rand
}

func (p *pcgSource) Float64() float64 {
	return p.r.Float64()
}

func (p *pcgSource) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + p.r.IntN(hi-lo+1)
}
