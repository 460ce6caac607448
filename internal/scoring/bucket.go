// Package scoring provides the primitives shared by the risk evaluators:
// bucketed range lookups, weighted accumulation and the injectable sources
// of randomness and time.
package scoring

import (
	"encoding/json"
	"fmt"
)

// Direction selects how a Table matches a value against its buckets.
type Direction int

const (
	// AtMost matches the first bucket whose Upper bound is >= value.
	// Buckets are listed by ascending upper bound.
	AtMost Direction = iota

	// AtLeast matches the first bucket whose Lower bound is <= value.
	// Buckets are listed by descending lower bound.
	AtLeast

	// Within matches the first bucket with Lower <= value <= Upper.
	Within
)

func (d Direction) String() string {
	switch d {
	case AtMost:
		return "atMost"
	case AtLeast:
		return "atLeast"
	case Within:
		return "within"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Bucket maps a sub-range of an input to a fixed sub-score.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Score float64 `json:"score"`
}

// UpTo is a bucket for AtMost tables.
func UpTo(upper, score float64) Bucket {
	return Bucket{Upper: upper, Score: score}
}

// From is a bucket for AtLeast tables.
func From(lower, score float64) Bucket {
	return Bucket{Lower: lower, Score: score}
}

// Between is a bucket for Within tables. Both bounds are inclusive.
func Between(lower, upper, score float64) Bucket {
	return Bucket{Lower: lower, Upper: upper, Score: score}
}

// Table is an ordered, immutable list of buckets.
type Table struct {
	direction Direction
	buckets   []Bucket
}

// NewTable copies buckets into a table scanned in the given order.
func NewTable(direction Direction, buckets ...Bucket) Table {
	b := make([]Bucket, len(buckets))
	copy(b, buckets)
	return Table{direction: direction, buckets: b}
}

// Lookup returns the score of the first matching bucket, or 0 if none match.
func (t Table) Lookup(value float64) float64 {
	for _, b := range t.buckets {
		if t.matches(b, value) {
			return b.Score
		}
	}
	return 0
}

func (t Table) matches(b Bucket, value float64) bool {
	switch t.direction {
	case AtMost:
		return value <= b.Upper
	case AtLeast:
		return value >= b.Lower
	case Within:
		return value >= b.Lower && value <= b.Upper
	}
	return false
}

// Direction returns the table's matching direction.
func (t Table) Direction() Direction {
	return t.direction
}

// Buckets returns a copy of the table's buckets in scan order.
func (t Table) Buckets() []Bucket {
	b := make([]Bucket, len(t.buckets))
	copy(b, t.buckets)
	return b
}

// MarshalJSON exposes the table for diagnostics endpoints.
func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Direction Direction `json:"direction"`
		Buckets   []Bucket  `json:"buckets"`
	}{t.direction, t.buckets})
}
