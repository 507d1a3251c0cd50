// Package tablet implements the per-shard coordination core of a Stratum
// tablet server: the peer which ties together consensus, the write-ahead
// log, the storage engine, and the transaction drivers which move each
// operation through its prepare, replicate, apply, and commit phases.
package tablet

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/clock"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/storage"
	"github.com/stratumdb/stratum/go/wal"
	"go.gazette.dev/core/broker/client"
	"gopkg.in/yaml.v2"
)

// Options configure a tablet Peer. They're explicit, per-peer
// configuration; DefaultOptions provides the process-level defaults.
type Options struct {
	// EnableLogGC enables garbage collection of old write-ahead log
	// segments. When false the GC worker logs once and exits.
	EnableLogGC bool `yaml:"enable_log_gc"`
	// LogGCSleepDelay is the delay between GC passes.
	LogGCSleepDelay time.Duration `yaml:"log_gc_sleep_delay"`
	// PrepareQueueDepth bounds the prepare executor's queue.
	PrepareQueueDepth int `yaml:"prepare_queue_depth"`
	// ApplyWorkers is the worker count of each owned apply executor.
	ApplyWorkers int `yaml:"apply_workers"`
	// ApplyQueueDepth bounds each owned apply executor's queue.
	ApplyQueueDepth int `yaml:"apply_queue_depth"`

	// LeaderApplyExec optionally shares a leader-apply pool across peers.
	// The peer doesn't shut down a shared pool.
	LeaderApplyExec *Executor `yaml:"-"`
	// ReplicaApplyExec optionally shares a replica-apply pool across peers.
	ReplicaApplyExec *Executor `yaml:"-"`

	// DistributedConsensus builds consensus for multi-peer quorums.
	DistributedConsensus func(consensus.Config) (consensus.Consensus, error) `yaml:"-"`
}

// DefaultOptions returns the standard peer configuration.
func DefaultOptions() Options {
	return Options{
		EnableLogGC:       true,
		LogGCSleepDelay:   10 * time.Second,
		PrepareQueueDepth: 128,
		ApplyWorkers:      4,
		ApplyQueueDepth:   128,
	}
}

// Peer is one replica of a tablet: the externally visible object which
// admits operations, owns the lifecycle, tracker, drivers, and log-GC
// worker, and quiesces them on shutdown.
type Peer struct {
	opts      Options
	meta      *metadata.TabletMetadata
	localUUID string

	lifecycle lifecycle
	tracker   *Tracker

	prepareExec      *Executor
	leaderApplyExec  *Executor
	replicaApplyExec *Executor
	ownLeaderApply   bool
	ownReplicaApply  bool

	// prepareReplicateLatch serializes leader Prepare with submission to
	// consensus, so OpID order equals prepare order.
	prepareReplicateLatch sync.Mutex
	// configSem serializes configuration changes and the initial Start.
	configSem chan struct{}

	consensus consensus.Consensus
	storage   storage.Tablet
	wal       wal.Log
	clk       clock.Clock
	messenger consensus.Messenger

	gcStop chan struct{}
	gcDone chan struct{}

	statusMu   sync.Mutex
	lastStatus string

	driverSeq atomic.Int64
}

// NewPeer returns a Peer for |meta| in the Bootstrapping state. |localUUID|
// is this replica's UUID within the tablet's quorum.
func NewPeer(meta *metadata.TabletMetadata, localUUID string, opts Options) *Peer {
	var p = &Peer{
		opts:       opts,
		meta:       meta,
		localUUID:  localUUID,
		tracker:    NewTracker(),
		configSem:  make(chan struct{}, 1),
		lastStatus: "bootstrapping",
	}
	p.prepareExec = NewExecutor("prepare", 1, opts.PrepareQueueDepth)

	if p.leaderApplyExec = opts.LeaderApplyExec; p.leaderApplyExec == nil {
		p.leaderApplyExec = NewExecutor("leader-apply", opts.ApplyWorkers, opts.ApplyQueueDepth)
		p.ownLeaderApply = true
	}
	if p.replicaApplyExec = opts.ReplicaApplyExec; p.replicaApplyExec == nil {
		p.replicaApplyExec = NewExecutor("replica-apply", opts.ApplyWorkers, opts.ApplyQueueDepth)
		p.ownReplicaApply = true
	}
	return p
}

func (p *Peer) nextDriverID() int64 { return p.driverSeq.Add(1) }

// State returns the peer's lifecycle state.
func (p *Peer) State() State { return p.lifecycle.Current() }

// CheckRunning fails with ErrServiceUnavailable unless the peer is Running.
func (p *Peer) CheckRunning() error { return p.lifecycle.CheckRunning() }

func (p *Peer) setLastStatus(s string) {
	p.statusMu.Lock()
	p.lastStatus = s
	p.statusMu.Unlock()
}

// Init wires the peer's collaborators and creates its consensus module,
// transitioning Bootstrapping -> Configuring.
func (p *Peer) Init(
	tab storage.Tablet,
	clk clock.Clock,
	messenger consensus.Messenger,
	walLog wal.Log,
	metrics prometheus.Registerer,
) error {
	if err := p.lifecycle.Init(); err != nil {
		return err
	}
	p.storage, p.clk, p.messenger, p.wal = tab, clk, messenger, walLog

	var cns, err = consensus.New(consensus.Config{
		LocalUUID:          p.localUUID,
		Clock:              clk,
		Factory:            p,
		Listener:           p,
		Log:                walLog,
		Messenger:          messenger,
		Quorum:             p.meta.Quorum(),
		DistributedFactory: p.opts.DistributedConsensus,
	})
	if err != nil {
		return fmt.Errorf("creating consensus: %w", err)
	}
	p.consensus = cns

	if metrics != nil {
		if err = metrics.Register(tab.Metrics()); err != nil {
			log.WithError(err).Warn("failed to register storage metrics")
		}
		if err = p.tracker.StartInstrumentation(metrics, p.meta.OID()); err != nil {
			log.WithError(err).Warn("failed to register tracker metrics")
		}
	}

	p.setLastStatus("initialized")
	return nil
}

// Start brings consensus online with |info|, persists the quorum it
// finalizes, transitions to Running, and launches the log-GC worker. The
// config semaphore is held throughout, blocking concurrent configuration
// changes.
func (p *Peer) Start(info consensus.BootstrapInfo) error {
	p.configSem <- struct{}{}
	defer func() { <-p.configSem }()

	var quorum, err = p.consensus.Start(p.meta.Quorum(), info)
	if err != nil {
		return fmt.Errorf("starting consensus: %w", err)
	}
	p.meta.SetQuorum(quorum)
	if err = p.meta.Flush(); err != nil {
		return fmt.Errorf("%w: persisting quorum: %v", ErrIO, err)
	}

	if err = p.lifecycle.Start(); err != nil {
		return err
	}

	p.gcStop, p.gcDone = make(chan struct{}), make(chan struct{})
	go p.runLogGC()

	p.setLastStatus("running")
	log.WithFields(log.Fields{
		"tablet": p.meta.OID(),
		"table":  p.meta.TableName(),
		"role":   p.Role(),
	}).Info("tablet peer started")
	return nil
}

// SubmitWrite admits a client write, returning a future which resolves
// when the operation reaches a terminal phase.
func (p *Peer) SubmitWrite(state *OperationState) client.OpFuture {
	state.Type = consensus.OpWrite
	return p.submitLeader(state, nil)
}

// SubmitAlterSchema admits a schema-change operation.
func (p *Peer) SubmitAlterSchema(state *OperationState) client.OpFuture {
	state.Type = consensus.OpAlterSchema
	return p.submitLeader(state, nil)
}

// SubmitChangeConfig admits a configuration change. The call blocks until
// the config semaphore is acquired; the driver holds it until it reaches a
// terminal phase, serializing configuration changes against each other.
func (p *Peer) SubmitChangeConfig(state *OperationState) client.OpFuture {
	if err := p.lifecycle.CheckRunning(); err != nil {
		return client.FinishedOperation(err)
	}
	state.Type = consensus.OpChangeConfig

	p.configSem <- struct{}{}
	var release = func() { <-p.configSem }
	return p.submitLeader(state, release)
}

func (p *Peer) submitLeader(state *OperationState, releaseConfig func()) client.OpFuture {
	if err := p.lifecycle.CheckRunning(); err != nil {
		if releaseConfig != nil {
			releaseConfig()
		}
		return client.FinishedOperation(err)
	}
	var d = newDriver(p, LeaderDriver, state)
	d.releaseConfig = releaseConfig
	p.tracker.Add(d)
	d.executeLeader()
	return d.Completion()
}

// StartReplicaTransaction is invoked by consensus with an inbound round:
// it constructs a replica driver of the matching kind and installs the
// round's commit continuation.
func (p *Peer) StartReplicaTransaction(round *consensus.Round) error {
	if err := p.lifecycle.CheckRunning(); err != nil {
		return err
	}
	var msg = round.Msg()
	switch msg.Type {
	case consensus.OpWrite, consensus.OpChangeConfig:
	default:
		return fmt.Errorf("%w: no replica transaction for operation type %s",
			ErrInvalidArgument, msg.Type)
	}

	var d = newDriver(p, ReplicaDriver, &OperationState{
		Type:    msg.Type,
		Payload: msg.Payload,
	})
	p.tracker.Add(d)
	return d.executeReplica(round)
}

// ConsensusStateChanged is invoked by consensus when the quorum or this
// peer's role within it changes; the peer re-persists its metadata.
func (p *Peer) ConsensusStateChanged() {
	p.setLastStatus("consensus configuration changed")
	if err := p.meta.Flush(); err != nil {
		log.WithError(err).WithField("tablet", p.meta.OID()).
			Warn("failed to flush metadata after consensus change")
	}
}

// Shutdown quiesces the peer and returns the state which preceded the
// first shutdown. Idempotent: repeated calls perform no further teardown
// and return the same prior state.
func (p *Peer) Shutdown() State {
	var prev, first = p.lifecycle.BeginShutdown()
	if !first {
		return prev
	}
	p.setLastStatus("quiescing")
	log.WithField("tablet", p.meta.OID()).Info("tablet peer shutting down")

	if p.storage != nil {
		p.storage.UnregisterMaintenanceOps()
	}
	if p.gcStop != nil {
		close(p.gcStop)
		<-p.gcDone
	}
	if p.consensus != nil {
		if err := p.consensus.Shutdown(); err != nil {
			log.WithError(err).Warn("consensus shutdown failed")
		}
	}
	p.tracker.WaitForDrain()
	p.prepareExec.Shutdown()
	if p.ownLeaderApply {
		p.leaderApplyExec.Shutdown()
	}
	if p.ownReplicaApply {
		p.replicaApplyExec.Shutdown()
	}
	if p.wal != nil {
		if err := p.wal.Close(); err != nil {
			log.WithError(err).Warn("failed to close write-ahead log")
		}
	}

	p.lifecycle.FinishShutdown()
	p.setLastStatus("shut down")
	return prev
}

// Status is a human-facing snapshot of the peer. It never fails.
type Status struct {
	TabletID            string `yaml:"tablet_id"`
	TableName           string `yaml:"table_name"`
	LastStatus          string `yaml:"last_status"`
	StartKey            string `yaml:"start_key"`
	EndKey              string `yaml:"end_key"`
	State               string `yaml:"state"`
	EstimatedOnDiskSize int64  `yaml:"estimated_on_disk_size"`
}

// MarshalString renders the Status as YAML.
func (s Status) MarshalString() string {
	var b, _ = yaml.Marshal(s)
	return string(b)
}

// Status snapshots the peer for diagnostics.
func (p *Peer) Status() Status {
	p.statusMu.Lock()
	var last = p.lastStatus
	p.statusMu.Unlock()

	var size int64
	if p.storage != nil {
		size = p.storage.EstimateOnDiskSize()
	}
	return Status{
		TabletID:            p.meta.OID(),
		TableName:           p.meta.TableName(),
		LastStatus:          last,
		StartKey:            fmt.Sprintf("%x", p.meta.StartKey()),
		EndKey:              fmt.Sprintf("%x", p.meta.EndKey()),
		State:               p.lifecycle.Current().String(),
		EstimatedOnDiskSize: size,
	}
}

// InFlight snapshots the in-flight drivers, including their trace buffers
// if |trace| is set. It never fails.
func (p *Peer) InFlight(trace bool) []DriverStatus {
	var pending = p.tracker.Pending()
	var out = make([]DriverStatus, 0, len(pending))
	for _, d := range pending {
		out = append(out, d.Status(trace))
	}
	return out
}

// Role returns this peer's role within the last persisted quorum, or
// NonParticipant when absent. It reads a metadata snapshot rather than
// holding the state latch across the scan.
func (p *Peer) Role() metadata.Role {
	return p.meta.Quorum().RoleOf(p.localUUID)
}

// SafeTimestamp reads the storage engine's MVCC safe timestamp.
func (p *Peer) SafeTimestamp() (clock.Timestamp, error) {
	if err := p.lifecycle.CheckRunning(); err != nil {
		return 0, err
	}
	return p.storage.MVCC().SafeTimestamp(), nil
}

// AdjustSafeTimestamp raises the storage engine's MVCC safe timestamp.
func (p *Peer) AdjustSafeTimestamp(t clock.Timestamp) error {
	if err := p.lifecycle.CheckRunning(); err != nil {
		return err
	}
	p.storage.MVCC().AdjustSafeTimestamp(t)
	return nil
}
