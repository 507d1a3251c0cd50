// Package consensus defines the contract between a tablet peer and the
// module which orders its operations across replicas, and provides the
// single-replica LocalConsensus implementation. Distributed (multi-peer)
// consensus implementations plug in through Config.DistributedFactory.
package consensus

import (
	"errors"
	"fmt"

	"github.com/stratumdb/stratum/go/clock"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stratumdb/stratum/go/wal"
)

// OpType is the consensus-visible type of a replicated operation.
type OpType int

const (
	OpWrite OpType = iota + 1
	OpAlterSchema
	OpChangeConfig
)

func (t OpType) String() string {
	switch t {
	case OpWrite:
		return "WRITE"
	case OpAlterSchema:
		return "ALTER_SCHEMA"
	case OpChangeConfig:
		return "CHANGE_CONFIG"
	}
	return "UNKNOWN"
}

// ReplicateMsg is the payload of one consensus round. The payload bytes
// are opaque to consensus.
type ReplicateMsg struct {
	Type    OpType
	Payload []byte
}

// BootstrapInfo carries the OpIDs recovered by log replay, with which
// consensus resumes its term and index sequence.
type BootstrapInfo struct {
	LastID          opid.OpID
	LastCommittedID opid.OpID
}

// ReplicaTxnFactory is the peer-side hook through which consensus starts
// replica transactions for inbound rounds.
type ReplicaTxnFactory interface {
	StartReplicaTransaction(round *Round) error
}

// StateChangeListener is notified when consensus changes the quorum or
// this peer's role within it.
type StateChangeListener interface {
	ConsensusStateChanged()
}

// Consensus orders operations across the replicas of one tablet.
type Consensus interface {
	// Start brings consensus online with the persisted |initial| quorum and
	// the bootstrap OpIDs, and returns the quorum it finalized. The caller
	// persists the returned quorum.
	Start(initial metadata.Quorum, info BootstrapInfo) (metadata.Quorum, error)
	// NewRound builds a Round carrying |msg|. |onReplicated| is invoked
	// exactly once after Replicate accepts the round, with the outcome of
	// replication; a round which Replicate rejects is never notified.
	NewRound(msg ReplicateMsg, onReplicated func(error)) *Round
	// Replicate submits the round: consensus assigns its OpID under
	// term/index serialization, appends the replicate record to the local
	// log, and awaits a quorum of acknowledgements.
	Replicate(round *Round) error
	// Shutdown drains inbound rounds and stops leadership activity.
	// Idempotent.
	Shutdown() error
}

// ErrShutdown is returned by operations against consensus after Shutdown.
var ErrShutdown = errors.New("consensus is shut down")

// Config assembles the collaborators of a Consensus instance.
type Config struct {
	// LocalUUID is this peer's UUID within the quorum.
	LocalUUID string
	// Clock of the hosting tablet server.
	Clock clock.Clock
	// Factory starts replica transactions for inbound rounds.
	Factory ReplicaTxnFactory
	// Listener is told of quorum changes. May be nil.
	Listener StateChangeListener
	// Log is the tablet's write-ahead log.
	Log wal.Log
	// Messenger dials quorum peers. Unused by LocalConsensus.
	Messenger Messenger
	// Quorum configured for the tablet at startup.
	Quorum metadata.Quorum
	// DistributedFactory builds a multi-peer Consensus from this Config.
	// Required when Quorum names more than the local peer.
	DistributedFactory func(Config) (Consensus, error)
}

// New selects a Consensus for |cfg|: LocalConsensus when the quorum is
// exactly the local peer, and otherwise the configured distributed factory.
func New(cfg Config) (Consensus, error) {
	if cfg.Quorum.IsLocal(cfg.LocalUUID) {
		return NewLocal(cfg.LocalUUID, cfg.Log), nil
	}
	if cfg.DistributedFactory == nil {
		return nil, fmt.Errorf(
			"quorum of %d peers requires a distributed consensus factory", len(cfg.Quorum.Peers))
	}
	return cfg.DistributedFactory(cfg)
}
