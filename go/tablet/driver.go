package tablet

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stratumdb/stratum/go/storage"
	"github.com/stratumdb/stratum/go/wal"
	"go.gazette.dev/core/broker/client"
)

// DriverRole distinguishes drivers executing on the quorum leader from
// drivers executing an inbound round on a replica.
type DriverRole int

const (
	LeaderDriver DriverRole = iota + 1
	ReplicaDriver
)

func (r DriverRole) String() string {
	if r == LeaderDriver {
		return "LEADER"
	}
	return "REPLICA"
}

// Phase is the progress of a driver through its operation. Phases advance
// monotonically; Committed and Aborted are terminal.
type Phase int

const (
	PhasePending Phase = iota
	PhasePrepared
	PhaseReplicating
	PhaseApplied
	PhaseCommitted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "PENDING"
	case PhasePrepared:
		return "PREPARED"
	case PhaseReplicating:
		return "REPLICATING"
	case PhaseApplied:
		return "APPLIED"
	case PhaseCommitted:
		return "COMMITTED"
	case PhaseAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Terminal returns whether the phase is Committed or Aborted.
func (p Phase) Terminal() bool { return p == PhaseCommitted || p == PhaseAborted }

// OperationState is a prepared operation submitted to the peer. The
// payload's encoding is opaque to the core; row locks acquired on the
// state's behalf are released through ReleaseLocks at terminal phase.
type OperationState struct {
	Type    consensus.OpType
	Payload []byte
	// ReleaseLocks releases row locks held by the operation. May be nil.
	ReleaseLocks func()
}

// Driver shepherds one operation through its phases: on a leader,
// Prepare, Replicate, Apply, Commit; on a replica, Prepare, await the
// commit message, Apply, Acknowledge.
type Driver struct {
	peer    *Peer
	id      int64
	role    DriverRole
	state   *OperationState
	trace   *Trace
	started time.Time

	finished   *client.AsyncOperation
	finishOnce sync.Once
	// releaseConfig releases the peer's config semaphore. Set only on
	// leader ChangeConfig drivers, which hold it for their lifetime.
	releaseConfig func()

	mu      sync.Mutex
	phase   Phase
	opID    opid.OpID
	opIDSet bool
	round   *consensus.Round
	// Replica commit gating: the commit message may arrive while Prepare
	// is still queued, in which case it's stashed until Prepare completes.
	prepared   bool
	commitSeen bool
	commitErr  error
}

func newDriver(peer *Peer, role DriverRole, state *OperationState) *Driver {
	var d = &Driver{
		peer:     peer,
		id:       peer.nextDriverID(),
		role:     role,
		state:    state,
		trace:    newTrace(),
		started:  time.Now(),
		finished: client.NewAsyncOperation(),
	}
	d.trace.Printf("driver created: %s %s", role, state.Type)
	driversStartedCounter.WithLabelValues(state.Type.String(), role.String()).Inc()
	return d
}

// Name identifies the driver in diagnostics, e.g. "write/12".
func (d *Driver) Name() string {
	return fmt.Sprintf("%s/%d", strings.ToLower(d.state.Type.String()), d.id)
}

// Completion resolves when the driver reaches a terminal phase.
func (d *Driver) Completion() client.OpFuture { return d.finished }

// OpID returns the driver's assigned OpID. It remains unset until
// consensus has assigned one.
func (d *Driver) OpID() (opid.OpID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opID, d.opIDSet
}

// Phase returns the driver's current phase.
func (d *Driver) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// advance moves the phase forward; phases never regress.
func (d *Driver) advance(p Phase) {
	d.mu.Lock()
	if d.phase < p {
		d.phase = p
	}
	d.mu.Unlock()
	d.trace.Printf("phase %s", p)
}

// DriverStatus is a diagnostic snapshot of one in-flight driver.
type DriverStatus struct {
	Name      string    `yaml:"name"`
	Kind      string    `yaml:"kind"`
	Role      string    `yaml:"role"`
	Phase     string    `yaml:"phase"`
	OpID      string    `yaml:"op_id,omitempty"`
	StartedAt time.Time `yaml:"started_at"`
	Trace     string    `yaml:"trace,omitempty"`
}

// Status snapshots the driver, including its trace buffer if asked.
func (d *Driver) Status(includeTrace bool) DriverStatus {
	d.mu.Lock()
	var out = DriverStatus{
		Name:      d.Name(),
		Kind:      d.state.Type.String(),
		Role:      d.role.String(),
		Phase:     d.phase.String(),
		StartedAt: d.started,
	}
	if d.opIDSet {
		out.OpID = d.opID.String()
	}
	d.mu.Unlock()

	if includeTrace {
		out.Trace = d.trace.Dump()
	}
	return out
}

// prepare validates the operation and marks it Prepared. It runs on the
// single-thread prepare executor, so operations are prepared in the order
// they were queued. It acquires no row locks; locks held on the state's
// behalf are released through OperationState.ReleaseLocks at terminal phase.
func (d *Driver) prepare() error {
	if len(d.state.Payload) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrInvalidArgument, d.state.Type)
	}
	d.advance(PhasePrepared)
	return nil
}

// executeLeader starts the driver's leader path.
func (d *Driver) executeLeader() {
	if err := d.peer.prepareExec.Submit(d.leaderPrepareTask); err != nil {
		d.abort(fmt.Errorf("submitting to prepare executor: %w", err))
	}
}

// leaderPrepareTask runs on the single-thread prepare executor. The
// prepare/replicate latch is held from Prepare through submission to
// consensus, so OpID order equals prepare order at the leader.
func (d *Driver) leaderPrepareTask() {
	d.peer.prepareReplicateLatch.Lock()

	if err := d.prepare(); err != nil {
		d.peer.prepareReplicateLatch.Unlock()
		d.abort(err)
		return
	}

	var round = d.peer.consensus.NewRound(consensus.ReplicateMsg{
		Type:    d.state.Type,
		Payload: d.state.Payload,
	}, d.replicationFinished)

	d.mu.Lock()
	d.round = round
	d.mu.Unlock()
	d.advance(PhaseReplicating)
	d.trace.Printf("submitting round to consensus")

	var err = d.peer.consensus.Replicate(round)
	d.peer.prepareReplicateLatch.Unlock()

	if err != nil {
		d.abort(fmt.Errorf("%w: consensus rejected round: %v", ErrAborted, err))
	}
}

// replicationFinished is invoked by consensus with the outcome of
// replication. On success the OpID is now assigned and Apply may begin.
func (d *Driver) replicationFinished(err error) {
	if err != nil {
		d.abort(fmt.Errorf("%w: replication failed: %v", ErrAborted, err))
		return
	}

	var op, ok = d.round.OpID()
	if !ok {
		d.abort(fmt.Errorf("%w: replication finished without an assigned OpID", ErrIllegalState))
		return
	}
	d.mu.Lock()
	d.opID, d.opIDSet = op, true
	d.mu.Unlock()
	d.trace.Printf("replicated as %s", op)

	if err = d.peer.leaderApplyExec.Submit(d.leaderApplyTask); err != nil {
		d.abort(fmt.Errorf("submitting to apply executor: %w", err))
	}
}

// leaderApplyTask applies the operation and writes its commit record.
// Failure here is fatal to the tablet: the log already carries the
// replicated record, and diverging from it would break replica
// consistency.
func (d *Driver) leaderApplyTask() {
	var op, _ = d.OpID()

	if err := d.peer.storage.Apply(storage.Operation{
		Type:    d.state.Type,
		OpID:    op,
		Payload: d.state.Payload,
	}); err != nil {
		d.fatal(fmt.Errorf("%w: applying %s: %v", ErrIO, op, err))
		return
	}
	d.advance(PhaseApplied)

	if err := d.peer.wal.Append(wal.Record{
		Type: wal.RecordCommit,
		OpID: op,
	}); err != nil {
		d.fatal(fmt.Errorf("%w: appending commit record %s: %v", ErrIO, op, err))
		return
	}
	d.advance(PhaseCommitted)
	d.finish(nil)
}

// executeReplica starts the driver over an inbound consensus round whose
// OpID the leader already assigned.
func (d *Driver) executeReplica(round *consensus.Round) error {
	var op, ok = round.OpID()
	if !ok {
		return fmt.Errorf("%w: inbound round carries no OpID", ErrIllegalState)
	}
	d.mu.Lock()
	d.round = round
	d.opID, d.opIDSet = op, true
	d.mu.Unlock()

	round.BindCommitContinuation(d.commitMessageReceived)

	if err := d.peer.prepareExec.Submit(d.replicaPrepareTask); err != nil {
		d.abort(fmt.Errorf("submitting to prepare executor: %w", err))
		return err
	}
	return nil
}

// replicaPrepareTask runs on the prepare executor, in inbound round order.
func (d *Driver) replicaPrepareTask() {
	if err := d.prepare(); err != nil {
		d.abort(err)
		return
	}
	d.mu.Lock()
	d.prepared = true
	var seen, err = d.commitSeen, d.commitErr
	d.mu.Unlock()

	if seen {
		d.replicaCommit(err)
	}
}

// commitMessageReceived is the commit continuation installed on the round.
func (d *Driver) commitMessageReceived(err error) {
	d.mu.Lock()
	if !d.prepared {
		d.commitSeen, d.commitErr = true, err
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.replicaCommit(err)
}

func (d *Driver) replicaCommit(err error) {
	if err != nil {
		d.abort(fmt.Errorf("%w: consensus aborted round: %v", ErrAborted, err))
		return
	}
	d.trace.Printf("commit message received")

	if err = d.peer.replicaApplyExec.Submit(d.replicaApplyTask); err != nil {
		d.abort(fmt.Errorf("submitting to apply executor: %w", err))
	}
}

func (d *Driver) replicaApplyTask() {
	var op, _ = d.OpID()

	if err := d.peer.storage.Apply(storage.Operation{
		Type:    d.state.Type,
		OpID:    op,
		Payload: d.state.Payload,
	}); err != nil {
		d.fatal(fmt.Errorf("%w: applying %s: %v", ErrIO, op, err))
		return
	}
	d.advance(PhaseApplied)
	d.advance(PhaseCommitted)

	d.mu.Lock()
	var round = d.round
	d.mu.Unlock()
	round.Acknowledge(nil)

	d.finish(nil)
}

// abort terminates the driver with |err|, releasing its locks and
// reporting the error upstream and, for replicas, back to consensus.
func (d *Driver) abort(err error) {
	d.trace.Printf("aborted: %v", err)
	d.mu.Lock()
	d.phase = PhaseAborted
	d.mu.Unlock()
	d.finish(err)
}

// fatal terminates the driver on an apply-path failure. The replicated
// record is already durable, so the tablet can't continue serving without
// diverging; the peer is moved toward Quiescing.
func (d *Driver) fatal(err error) {
	log.WithFields(log.Fields{
		"tablet": d.peer.meta.OID(),
		"driver": d.Name(),
		"err":    err,
	}).Error("fatal apply failure; quiescing tablet peer")

	d.mu.Lock()
	d.phase = PhaseAborted
	d.mu.Unlock()
	d.finish(err)

	// Shutdown drains the tracker, so it must run after this driver has
	// deregistered, and off the executor thread it would need to join.
	go d.peer.Shutdown()
}

// finish runs exactly once as the driver reaches its terminal phase.
func (d *Driver) finish(err error) {
	d.finishOnce.Do(func() {
		if d.state.ReleaseLocks != nil {
			d.state.ReleaseLocks()
		}

		d.mu.Lock()
		var round = d.round
		d.mu.Unlock()
		if round != nil {
			round.ClearCommitContinuation()
			if err != nil && d.role == ReplicaDriver {
				round.Acknowledge(err)
			}
		}

		if d.releaseConfig != nil {
			d.releaseConfig()
		}

		var result = "committed"
		if err != nil {
			result = "aborted"
		}
		driversCompletedCounter.WithLabelValues(d.state.Type.String(), result).Inc()

		d.peer.tracker.Remove(d)
		d.finished.Resolve(err)
	})
}
