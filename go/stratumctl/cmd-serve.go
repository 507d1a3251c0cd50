package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/clock"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/storage"
	"github.com/stratumdb/stratum/go/tablet"
	"github.com/stratumdb/stratum/go/wal"
	mbp "go.gazette.dev/core/mainboilerplate"
	"go.gazette.dev/core/task"
	"gopkg.in/yaml.v2"
)

type cmdServe struct {
	Manifest          string                `long:"manifest" required:"true" description:"Path of the tablet manifest YAML"`
	DemoWriteInterval time.Duration         `long:"demo-write-interval" default:"0s" description:"If non-zero, apply a demonstration write on this interval"`
	Log               mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics       mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

// manifest is the YAML description of a tablet peer to serve.
type manifest struct {
	Superblock string `yaml:"superblock"`
	PeerUUID   string `yaml:"peer_uuid"`
	Tablet     struct {
		OID      string `yaml:"oid"`
		Table    string `yaml:"table"`
		StartKey string `yaml:"start_key"`
		EndKey   string `yaml:"end_key"`
	} `yaml:"tablet"`
	EnableLogGC       *bool `yaml:"enable_log_gc"`
	LogGCSleepDelayMS int   `yaml:"log_gc_sleep_delay_ms"`
}

func (cmd cmdServe) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var raw, err = os.ReadFile(cmd.Manifest)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	var m manifest
	if err = yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parsing manifest %s: %w", cmd.Manifest, err)
	}

	var meta *metadata.TabletMetadata
	if _, statErr := os.Stat(m.Superblock); statErr == nil {
		meta, err = metadata.Load(m.Superblock)
	} else {
		meta, err = metadata.Create(
			m.Superblock, m.Tablet.OID, m.Tablet.Table,
			[]byte(m.Tablet.StartKey), []byte(m.Tablet.EndKey),
			metadata.Quorum{Peers: []metadata.Peer{
				{UUID: m.PeerUUID, Address: "localhost", Role: metadata.RoleFollower},
			}})
	}
	if err != nil {
		return fmt.Errorf("opening tablet superblock: %w", err)
	}
	defer meta.Close()

	var opts = tablet.DefaultOptions()
	if m.EnableLogGC != nil {
		opts.EnableLogGC = *m.EnableLogGC
	}
	if m.LogGCSleepDelayMS != 0 {
		opts.LogGCSleepDelay = time.Duration(m.LogGCSleepDelayMS) * time.Millisecond
	}

	var clk = clock.NewSystem()
	var peer = tablet.NewPeer(meta, m.PeerUUID, opts)

	if err = peer.Init(
		storage.NewMemTablet(meta, clk),
		clk,
		&consensus.GRPCMessenger{},
		wal.NewSegmentedLog(0),
		prometheus.DefaultRegisterer,
	); err != nil {
		return fmt.Errorf("initializing tablet peer: %w", err)
	}
	if err = peer.Start(consensus.BootstrapInfo{}); err != nil {
		return fmt.Errorf("starting tablet peer: %w", err)
	}
	fmt.Print(renderPeerStatus(peer.Status()))

	var tasks = task.NewGroup(context.Background())
	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	tasks.Queue("watch signalCh", func() error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
			return nil
		case <-tasks.Context().Done():
			return nil
		}
	})
	if cmd.DemoWriteInterval > 0 {
		tasks.Queue("demo-writer", func() error {
			return runDemoWriter(tasks.Context(), peer, cmd.DemoWriteInterval)
		})
	}
	tasks.GoRun()

	if err = tasks.Wait(); err != nil {
		return fmt.Errorf("serve task failed: %w", err)
	}

	var prev = peer.Shutdown()
	log.WithField("prevState", prev).Info("tablet peer shut down")
	fmt.Print(renderPeerStatus(peer.Status()))
	return nil
}

// runDemoWriter applies a demonstration write each interval, until |ctx|
// is cancelled. Used to exercise a freshly deployed peer.
func runDemoWriter(ctx context.Context, peer *tablet.Peer, interval time.Duration) error {
	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			var cell = fmt.Sprintf("demo/%06d=%d", seq, now.UnixMicro())
			var op = peer.SubmitWrite(&tablet.OperationState{Payload: []byte(cell)})
			<-op.Done()
			if err := op.Err(); err != nil {
				return fmt.Errorf("demo write %d: %w", seq, err)
			}
		}
	}
}
