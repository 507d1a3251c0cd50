package consensus

import (
	"sync"

	"github.com/stratumdb/stratum/go/opid"
)

// Round is one consensus round: a single operation moving through
// replication. A Round is created by consensus and co-owned with the
// transaction driver shepherding the operation; the round outlives the
// driver, so driver callbacks are held as clearable slots and invoking a
// cleared slot is a no-op.
type Round struct {
	msg ReplicateMsg

	mu           sync.Mutex
	opID         opid.OpID
	bound        bool
	onReplicated func(error)
	onCommit     func(error)
	onAck        func(error)
}

func newRound(msg ReplicateMsg, onReplicated func(error)) *Round {
	return &Round{msg: msg, onReplicated: onReplicated}
}

// NewInboundRound builds a round for an operation already ordered by the
// quorum leader: its OpID is known, and |ack| (which may be nil) receives
// the replica's apply outcome. Consensus implementations hand inbound
// rounds to the peer's ReplicaTxnFactory.
func NewInboundRound(msg ReplicateMsg, op opid.OpID, ack func(error)) *Round {
	var r = &Round{msg: msg, opID: op, bound: true}
	r.onAck = ack
	return r
}

// Msg returns the replicate message the round carries.
func (r *Round) Msg() ReplicateMsg { return r.msg }

// OpID returns the round's assigned OpID, or false if consensus hasn't
// assigned one yet.
func (r *Round) OpID() (opid.OpID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opID, r.bound
}

// Bind assigns the round's OpID. Exactly one assignment is permitted;
// consensus implementations call this under their term/index serialization.
func (r *Round) Bind(op opid.OpID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound {
		panic("consensus: round OpID is already bound")
	}
	r.opID, r.bound = op, true
}

// NotifyReplicationFinished reports the outcome of replication to the
// driver. Consensus implementations invoke it exactly once per Replicate
// which accepts the round.
func (r *Round) NotifyReplicationFinished(err error) {
	r.mu.Lock()
	var fn = r.onReplicated
	r.onReplicated = nil
	r.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

// BindCommitContinuation installs |fn| to be invoked when the round's
// commit message arrives. The continuation is a weak slot: it may be
// cleared by ClearCommitContinuation, after which delivery is a no-op.
func (r *Round) BindCommitContinuation(fn func(error)) {
	r.mu.Lock()
	r.onCommit = fn
	r.mu.Unlock()
}

// ClearCommitContinuation drops any installed commit continuation.
// Called as the driver reaches a terminal phase.
func (r *Round) ClearCommitContinuation() {
	r.mu.Lock()
	r.onCommit = nil
	r.mu.Unlock()
}

// NotifyCommit delivers the round's commit message. A no-op if no
// continuation is currently installed.
func (r *Round) NotifyCommit(err error) {
	r.mu.Lock()
	var fn = r.onCommit
	r.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

// bindAck installs the consensus-side acknowledgement hook of an
// inbound (replica) round.
func (r *Round) bindAck(fn func(error)) {
	r.mu.Lock()
	r.onAck = fn
	r.mu.Unlock()
}

// Acknowledge reports the replica's apply outcome back to consensus.
// A no-op for rounds which consensus isn't awaiting.
func (r *Round) Acknowledge(err error) {
	r.mu.Lock()
	var fn = r.onAck
	r.onAck = nil
	r.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
