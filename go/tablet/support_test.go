package tablet

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/clock"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stratumdb/stratum/go/storage"
	"github.com/stratumdb/stratum/go/wal"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/core/broker/client"
)

const testUUID = "peer-1"

// countingLog wraps a SegmentedLog and counts GC invocations.
type countingLog struct {
	*wal.SegmentedLog
	gcCalls atomic.Int64
}

func (l *countingLog) GC(min opid.OpID) (int, error) {
	l.gcCalls.Add(1)
	return l.SegmentedLog.GC(min)
}

// testStore wraps a MemTablet with fault and latency injection.
type testStore struct {
	*storage.MemTablet
	applyDelay time.Duration
	applyErr   error
}

func (s *testStore) Apply(op storage.Operation) error {
	if s.applyDelay != 0 {
		time.Sleep(s.applyDelay)
	}
	if s.applyErr != nil {
		return s.applyErr
	}
	return s.MemTablet.Apply(op)
}

type testEnv struct {
	peer  *Peer
	meta  *metadata.TabletMetadata
	store *testStore
	wlog  *countingLog
}

// newTestEnv builds an initialized peer over a single-replica quorum.
// The peer is started unless |start| is false.
func newTestEnv(t *testing.T, opts Options, start bool, tweak func(*testEnv)) *testEnv {
	t.Helper()

	var meta, err = metadata.Create(
		filepath.Join(t.TempDir(), "superblock.db"),
		"tablet-test", "accounts", []byte("acct-a"), []byte("acct-m"),
		metadata.Quorum{Peers: []metadata.Peer{
			{UUID: testUUID, Address: "localhost:0", Role: metadata.RoleFollower},
		}})
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	var clk = clock.NewSystem()
	var env = &testEnv{
		meta:  meta,
		store: &testStore{MemTablet: storage.NewMemTablet(meta, clk)},
		wlog:  &countingLog{SegmentedLog: wal.NewSegmentedLog(1)},
	}
	if tweak != nil {
		tweak(env)
	}

	env.peer = NewPeer(meta, testUUID, opts)
	require.NoError(t, env.peer.Init(
		env.store, clk, nil, env.wlog, prometheus.NewRegistry()))

	if start {
		require.NoError(t, env.peer.Start(consensus.BootstrapInfo{}))
	}
	t.Cleanup(func() { env.peer.Shutdown() })

	return env
}

// quietGCOptions keeps the background GC worker from interfering with
// tests which drive GC passes explicitly.
func quietGCOptions() Options {
	var opts = DefaultOptions()
	opts.LogGCSleepDelay = time.Hour
	return opts
}

func testLogger() *log.Entry { return log.WithField("test", true) }

func writeState(cell string) *OperationState {
	return &OperationState{Payload: []byte(cell)}
}

func waitFor(t *testing.T, futures ...client.OpFuture) {
	t.Helper()
	for _, f := range futures {
		<-f.Done()
		require.NoError(t, f.Err())
	}
}
