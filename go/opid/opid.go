// Package opid defines the operation identifier assigned by consensus to
// every replicated tablet operation.
package opid

import "fmt"

// OpID identifies one replicated operation as a (term, index) pair.
// Terms are monotonically non-decreasing across leadership changes, and
// within a term the index increases by one per replicated entry.
// OpIDs are totally ordered, comparing first by term and then by index.
type OpID struct {
	Term  int64
	Index int64
}

// Minimum is the distinguished smallest OpID, used as a sentinel when no
// operation is known. It orders below every assigned OpID.
var Minimum = OpID{Term: 0, Index: 0}

// IsMin returns whether this OpID is the Minimum sentinel.
func (o OpID) IsMin() bool { return o == Minimum }

// Less returns whether |o| orders strictly before |other|.
func (o OpID) Less(other OpID) bool {
	if o.Term != other.Term {
		return o.Term < other.Term
	}
	return o.Index < other.Index
}

// Compare returns -1, 0, or 1 as |o| orders before, equal to, or after |other|.
func (o OpID) Compare(other OpID) int {
	if o.Less(other) {
		return -1
	} else if o == other {
		return 0
	}
	return 1
}

// MinOf returns the smaller of |a| and |b|.
func MinOf(a, b OpID) OpID {
	if b.Less(a) {
		return b
	}
	return a
}

// String returns the "term.index" rendering of the OpID.
func (o OpID) String() string { return fmt.Sprintf("%d.%d", o.Term, o.Index) }
