// Package wal defines the write-ahead log contract of a tablet peer, a
// segmented in-memory Log implementation, and the registry of OpID anchors
// which pin log positions against garbage collection.
package wal

import (
	"errors"

	"github.com/stratumdb/stratum/go/opid"
)

// ErrLogClosed is returned by operations against a closed Log.
var ErrLogClosed = errors.New("log is closed")

// RecordType discriminates the records a Log carries.
type RecordType int

const (
	// RecordReplicate is an operation payload ordered by consensus.
	RecordReplicate RecordType = iota + 1
	// RecordCommit marks a replicated operation as applied.
	RecordCommit
)

func (t RecordType) String() string {
	switch t {
	case RecordReplicate:
		return "REPLICATE"
	case RecordCommit:
		return "COMMIT"
	}
	return "UNKNOWN"
}

// Record is one durable log entry.
type Record struct {
	Type    RecordType
	OpID    opid.OpID
	Payload []byte
}

// Log is the append-only write-ahead log of a tablet peer.
//
// Log is the boundary of this package: the on-disk segment format is the
// concern of the implementation, and callers rely only on the GC contract —
// GC deletes whole segments strictly below the supplied OpID, and never
// deletes the segment still accepting appends.
type Log interface {
	// Append durably adds |rec| to the log.
	Append(rec Record) error
	// LastEntryOpID returns the largest OpID appended so far,
	// or false if nothing has been appended.
	LastEntryOpID() (opid.OpID, bool)
	// GC deletes closed segments whose every record is strictly below
	// |min|, returning the number of segments reclaimed.
	GC(min opid.OpID) (int, error)
	// Close the log. Appends after Close fail with ErrLogClosed.
	Close() error
}
