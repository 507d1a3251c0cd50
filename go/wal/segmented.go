package wal

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/opid"
)

// DefaultSegmentSize is the number of records after which the active
// segment of a SegmentedLog rolls.
const DefaultSegmentSize = 64

// SegmentedLog is an in-memory Log which mirrors the GC granularity of an
// on-disk segmented log: records accumulate into an active segment which
// rolls once it reaches the configured size, and GC reclaims only closed
// segments which fall entirely below the requested boundary.
type SegmentedLog struct {
	mu          sync.Mutex
	segmentSize int
	segments    []*segment // Closed segments, oldest first.
	active      *segment
	lastEntry   opid.OpID
	hasEntries  bool
	closed      bool
}

type segment struct {
	records []Record
	maxOpID opid.OpID
}

// NewSegmentedLog returns a SegmentedLog rolling segments every
// |segmentSize| records (DefaultSegmentSize if zero or negative).
func NewSegmentedLog(segmentSize int) *SegmentedLog {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &SegmentedLog{
		segmentSize: segmentSize,
		active:      &segment{},
	}
}

// Append adds |rec| to the active segment, rolling it if full.
func (l *SegmentedLog) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	l.active.records = append(l.active.records, rec)
	if l.active.maxOpID.Less(rec.OpID) {
		l.active.maxOpID = rec.OpID
	}
	if l.lastEntry.Less(rec.OpID) {
		l.lastEntry = rec.OpID
	}
	l.hasEntries = true

	if len(l.active.records) >= l.segmentSize {
		l.segments = append(l.segments, l.active)
		l.active = &segment{}
	}
	return nil
}

// LastEntryOpID returns the largest OpID ever appended, or false if none.
func (l *SegmentedLog) LastEntryOpID() (opid.OpID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastEntry, l.hasEntries
}

// GC drops closed segments whose records all order strictly below |min|.
func (l *SegmentedLog) GC(min opid.OpID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}
	var kept = make([]*segment, 0, len(l.segments))
	for _, s := range l.segments {
		if !s.maxOpID.Less(min) {
			kept = append(kept, s)
		}
	}
	var reclaimed = len(l.segments) - len(kept)
	if reclaimed == 0 {
		return 0, nil
	}
	l.segments = kept

	log.WithFields(log.Fields{"minOpID": min, "segments": reclaimed}).
		Debug("reclaimed log segments")
	return reclaimed, nil
}

// SegmentCount returns the number of segments, including the active one
// if it holds any records.
func (l *SegmentedLog) SegmentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n = len(l.segments)
	if len(l.active.records) != 0 {
		n++
	}
	return n
}

// Records returns a copy of all retained records, oldest first.
func (l *SegmentedLog) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for _, s := range l.segments {
		out = append(out, s.records...)
	}
	return append(out, l.active.records...)
}

// Close marks the log closed. Idempotent.
func (l *SegmentedLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
