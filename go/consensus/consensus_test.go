package consensus

import (
	"errors"
	"testing"

	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stratumdb/stratum/go/wal"
	"github.com/stretchr/testify/require"
)

func localQuorum(uuid string) metadata.Quorum {
	return metadata.Quorum{Peers: []metadata.Peer{
		{UUID: uuid, Address: "localhost:0", Role: metadata.RoleFollower},
	}}
}

func TestLocalStartFinalizesLeaderQuorum(t *testing.T) {
	var c = NewLocal("peer-1", wal.NewSegmentedLog(0))

	var q, err = c.Start(localQuorum("peer-1"), BootstrapInfo{})
	require.NoError(t, err)
	require.Len(t, q.Peers, 1)
	require.Equal(t, metadata.RoleLeader, q.RoleOf("peer-1"))
}

func TestLocalStartRejectsForeignQuorum(t *testing.T) {
	var c = NewLocal("peer-1", wal.NewSegmentedLog(0))

	var _, err = c.Start(localQuorum("peer-2"), BootstrapInfo{})
	require.EqualError(t, err, `local consensus requires a single-peer quorum of "peer-1"`)
}

func TestLocalReplicateAssignsSequentialOpIDs(t *testing.T) {
	var walLog = wal.NewSegmentedLog(0)
	var c = NewLocal("peer-1", walLog)
	var _, err = c.Start(localQuorum("peer-1"), BootstrapInfo{})
	require.NoError(t, err)

	for want := int64(1); want != 4; want++ {
		var notified error = errNotNotified
		var round = c.NewRound(
			ReplicateMsg{Type: OpWrite, Payload: []byte("row")},
			func(err error) { notified = err },
		)
		require.NoError(t, c.Replicate(round))
		require.NoError(t, notified)

		var op, ok = round.OpID()
		require.True(t, ok)
		require.Equal(t, opid.OpID{Term: 1, Index: want}, op)
	}

	var last, ok = walLog.LastEntryOpID()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 1, Index: 3}, last)
	require.Len(t, walLog.Records(), 3)
}

func TestLocalResumesFromBootstrapInfo(t *testing.T) {
	var c = NewLocal("peer-1", wal.NewSegmentedLog(0))
	var _, err = c.Start(localQuorum("peer-1"), BootstrapInfo{
		LastID:          opid.OpID{Term: 3, Index: 17},
		LastCommittedID: opid.OpID{Term: 3, Index: 17},
	})
	require.NoError(t, err)

	var round = c.NewRound(ReplicateMsg{Type: OpWrite}, func(error) {})
	require.NoError(t, c.Replicate(round))

	var op, ok = round.OpID()
	require.True(t, ok)
	require.Equal(t, opid.OpID{Term: 3, Index: 18}, op)
}

func TestLocalReplicateAfterShutdown(t *testing.T) {
	var c = NewLocal("peer-1", wal.NewSegmentedLog(0))
	var _, err = c.Start(localQuorum("peer-1"), BootstrapInfo{})
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Shutdown()) // Idempotent.

	var round = c.NewRound(ReplicateMsg{Type: OpWrite}, func(error) {})
	require.ErrorIs(t, c.Replicate(round), ErrShutdown)
}

func TestNewSelectsLocalConsensus(t *testing.T) {
	var c, err = New(Config{
		LocalUUID: "peer-1",
		Log:       wal.NewSegmentedLog(0),
		Quorum:    localQuorum("peer-1"),
	})
	require.NoError(t, err)
	require.IsType(t, &LocalConsensus{}, c)
}

func TestNewRequiresFactoryForDistributedQuorum(t *testing.T) {
	var quorum = metadata.Quorum{Peers: []metadata.Peer{
		{UUID: "peer-1", Role: metadata.RoleLeader},
		{UUID: "peer-2", Role: metadata.RoleFollower},
	}}

	var _, err = New(Config{LocalUUID: "peer-1", Quorum: quorum})
	require.EqualError(t, err, "quorum of 2 peers requires a distributed consensus factory")

	var sentinel = &LocalConsensus{}
	c, err := New(Config{
		LocalUUID:          "peer-1",
		Quorum:             quorum,
		DistributedFactory: func(Config) (Consensus, error) { return sentinel, nil },
	})
	require.NoError(t, err)
	require.Same(t, sentinel, c)
}

func TestRoundCommitContinuationIsWeak(t *testing.T) {
	var round = NewInboundRound(ReplicateMsg{Type: OpWrite}, opid.OpID{Term: 1, Index: 1}, nil)

	var delivered int
	round.BindCommitContinuation(func(error) { delivered++ })
	round.NotifyCommit(nil)
	require.Equal(t, 1, delivered)

	// After the driver clears its continuation, delivery is a no-op.
	round.ClearCommitContinuation()
	round.NotifyCommit(nil)
	require.Equal(t, 1, delivered)
}

func TestRoundAcknowledgeForwardsOnce(t *testing.T) {
	var acks []error
	var round = NewInboundRound(ReplicateMsg{}, opid.OpID{Term: 1, Index: 1},
		func(err error) { acks = append(acks, err) })

	round.Acknowledge(nil)
	round.Acknowledge(nil) // Dropped.
	require.Len(t, acks, 1)
}

var errNotNotified = errors.New("replication was not notified")
