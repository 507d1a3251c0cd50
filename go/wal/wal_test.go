package wal

import (
	"testing"

	"github.com/stratumdb/stratum/go/opid"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, l *SegmentedLog, term int64, from, to int64) {
	t.Helper()
	for i := from; i <= to; i++ {
		require.NoError(t, l.Append(Record{
			Type:    RecordReplicate,
			OpID:    opid.OpID{Term: term, Index: i},
			Payload: []byte("row"),
		}))
	}
}

func TestLastEntryTracksAppends(t *testing.T) {
	var l = NewSegmentedLog(4)

	var _, ok = l.LastEntryOpID()
	require.False(t, ok)

	appendN(t, l, 1, 1, 3)
	last, ok := l.LastEntryOpID()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 1, Index: 3}, last)

	// Commit records don't regress the last entry.
	require.NoError(t, l.Append(Record{Type: RecordCommit, OpID: opid.OpID{Term: 1, Index: 2}}))
	last, ok = l.LastEntryOpID()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 1, Index: 3}, last)
}

func TestSegmentRollAndGC(t *testing.T) {
	var l = NewSegmentedLog(2)
	appendN(t, l, 1, 1, 7) // Segments: [1,2] [3,4] [5,6], active [7].
	require.Equal(t, 4, l.SegmentCount())

	// A boundary inside the second segment reclaims only the first.
	n, err := l.GC(opid.OpID{Term: 1, Index: 4})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 3, l.SegmentCount())

	// A boundary above everything reclaims all closed segments, and
	// leaves the active segment alone.
	n, err = l.GC(opid.OpID{Term: 1, Index: 100})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, l.SegmentCount())
	require.Len(t, l.Records(), 1)
}

func TestGCBelowEverythingIsANoOp(t *testing.T) {
	var l = NewSegmentedLog(2)
	appendN(t, l, 1, 1, 4)

	var n, err = l.GC(opid.Minimum)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, l.Records(), 4)
}

func TestClosedLogRejectsOperations(t *testing.T) {
	var l = NewSegmentedLog(0)
	appendN(t, l, 1, 1, 1)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close()) // Idempotent.

	require.ErrorIs(t, l.Append(Record{}), ErrLogClosed)
	var _, err = l.GC(opid.OpID{Term: 9, Index: 9})
	require.ErrorIs(t, err, ErrLogClosed)

	// Reads still serve after close.
	last, ok := l.LastEntryOpID()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 1, Index: 1}, last)
}

func TestAnchorRegistry(t *testing.T) {
	var r = NewAnchors()

	var _, ok = r.EarliestAnchor()
	require.False(t, ok)

	var a = r.Register(opid.OpID{Term: 1, Index: 5}, "scanner-1")
	var b = r.Register(opid.OpID{Term: 1, Index: 2}, "scanner-2")

	earliest, ok := r.EarliestAnchor()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 1, Index: 2}, earliest)

	r.Unregister(b)
	r.Unregister(b) // No-op.

	earliest, ok = r.EarliestAnchor()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 1, Index: 5}, earliest)

	r.Unregister(a)
	_, ok = r.EarliestAnchor()
	require.False(t, ok)
}
