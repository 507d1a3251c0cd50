package wal

import (
	"sync"

	"github.com/stratumdb/stratum/go/opid"
)

// AnchorRegistry is the set of OpIDs pinned by long-running readers, such
// as snapshot scanners. The log-GC worker consults its earliest anchor and
// never reclaims past it; anchor lifecycles are owned by their registrants.
type AnchorRegistry interface {
	// Register pins |op| on behalf of |owner| and returns its handle.
	Register(op opid.OpID, owner string) *Anchor
	// Unregister releases |a|. Releasing twice is a no-op.
	Unregister(a *Anchor)
	// EarliestAnchor returns the smallest registered OpID,
	// or false if no anchors are registered.
	EarliestAnchor() (opid.OpID, bool)
}

// Anchor is the handle of one registered OpID pin.
type Anchor struct {
	OpID  opid.OpID
	Owner string
}

// Anchors is the standard AnchorRegistry.
type Anchors struct {
	mu  sync.Mutex
	set map[*Anchor]struct{}
}

// NewAnchors returns an empty Anchors registry.
func NewAnchors() *Anchors {
	return &Anchors{set: make(map[*Anchor]struct{})}
}

func (r *Anchors) Register(op opid.OpID, owner string) *Anchor {
	var a = &Anchor{OpID: op, Owner: owner}
	r.mu.Lock()
	r.set[a] = struct{}{}
	r.mu.Unlock()
	return a
}

func (r *Anchors) Unregister(a *Anchor) {
	r.mu.Lock()
	delete(r.set, a)
	r.mu.Unlock()
}

func (r *Anchors) EarliestAnchor() (opid.OpID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var min opid.OpID
	var found bool
	for a := range r.set {
		if !found || a.OpID.Less(min) {
			min, found = a.OpID, true
		}
	}
	return min, found
}
