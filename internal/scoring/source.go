package scoring

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Random is a source of uniform draws in [0,1).
// Every synthetic signal an evaluator uses is drawn from one.
type Random interface {
	Float64() float64
}

// NewRandom returns the process-wide random source. Safe for concurrent use.
func NewRandom() Random {
	return globalRandom{}
}

type globalRandom struct{}

func (globalRandom) Float64() float64 {
	return rand.Float64()
}

// Sequence replays a fixed list of draws, wrapping around at the end.
// It is safe for concurrent use.
type Sequence struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

// NewSequence returns a Random that yields draws in order.
// With no draws it always returns 0.
func NewSequence(draws ...float64) *Sequence {
	return &Sequence{draws: draws}
}

// Float64 returns the next draw.
func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0
	}
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

// Drawn returns how many draws have been taken.
func (s *Sequence) Drawn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Clock supplies evaluation time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in the local zone.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }
