package consensus

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stratumdb/stratum/go/wal"
)

// LocalConsensus orders operations for a tablet replicated to exactly one
// peer: assignment of the OpID and the local log append together constitute
// a quorum. It exists for single-node deployments and tests; quorums of
// more than one peer require a distributed implementation.
type LocalConsensus struct {
	localUUID string
	log       wal.Log

	mu       sync.Mutex
	running  bool
	shutdown bool
	term     int64
	next     int64 // Index assigned to the next replicated entry.
}

// NewLocal returns a LocalConsensus appending through |walLog|.
func NewLocal(localUUID string, walLog wal.Log) *LocalConsensus {
	return &LocalConsensus{localUUID: localUUID, log: walLog}
}

// Start resumes the term/index sequence from |info| and returns the
// finalized quorum: the local peer, as leader.
func (c *LocalConsensus) Start(initial metadata.Quorum, info BootstrapInfo) (metadata.Quorum, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return metadata.Quorum{}, ErrShutdown
	}
	if !initial.IsLocal(c.localUUID) {
		return metadata.Quorum{}, fmt.Errorf(
			"local consensus requires a single-peer quorum of %q", c.localUUID)
	}

	c.term = info.LastID.Term
	if c.term == 0 {
		c.term = 1
	}
	c.next = info.LastID.Index + 1
	c.running = true

	log.WithFields(log.Fields{
		"uuid": c.localUUID,
		"term": c.term,
		"next": c.next,
	}).Info("local consensus started")

	var peer = initial.Peers[0]
	peer.Role = metadata.RoleLeader
	return metadata.Quorum{Peers: []metadata.Peer{peer}}, nil
}

func (c *LocalConsensus) NewRound(msg ReplicateMsg, onReplicated func(error)) *Round {
	return newRound(msg, onReplicated)
}

// Replicate assigns the round's OpID, appends its replicate record, and —
// the local peer being the entire quorum — immediately reports replication
// finished.
func (c *LocalConsensus) Replicate(round *Round) error {
	c.mu.Lock()
	if !c.running || c.shutdown {
		c.mu.Unlock()
		return ErrShutdown
	}
	var op = opid.OpID{Term: c.term, Index: c.next}
	c.next++

	round.Bind(op)
	var err = c.log.Append(wal.Record{
		Type:    wal.RecordReplicate,
		OpID:    op,
		Payload: round.Msg().Payload,
	})
	c.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("appending replicate record %s: %w", op, err)
	}
	round.NotifyReplicationFinished(err)
	return nil
}

// Shutdown stops accepting rounds. Idempotent.
func (c *LocalConsensus) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.shutdown {
		c.shutdown = true
		c.running = false
		log.WithField("uuid", c.localUUID).Debug("local consensus shut down")
	}
	return nil
}
