package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratumdb/stratum/go/clock"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/wal"
)

// MemTablet is an in-memory Tablet used by single-node deployments and
// tests. Write payloads are "key=value" cells; alter-schema payloads
// replace the schema descriptor; change-config payloads aren't interpreted,
// and the engine records them only for accounting.
type MemTablet struct {
	meta    *metadata.TabletMetadata
	mvcc    *MVCCManager
	anchors *wal.Anchors
	clk     clock.Clock

	mu      sync.Mutex
	rows    map[string]string
	schema  string
	applied int64
}

// NewMemTablet returns an empty MemTablet over |meta|.
func NewMemTablet(meta *metadata.TabletMetadata, clk clock.Clock) *MemTablet {
	return &MemTablet{
		meta:    meta,
		mvcc:    NewMVCCManager(clk.Now()),
		anchors: wal.NewAnchors(),
		clk:     clk,
		rows:    make(map[string]string),
	}
}

func (m *MemTablet) Apply(op Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op.Type {
	case consensus.OpWrite:
		var key, value, ok = bytes.Cut(op.Payload, []byte("="))
		if !ok {
			return fmt.Errorf("malformed write cell %q", op.Payload)
		}
		m.rows[string(key)] = string(value)
	case consensus.OpAlterSchema:
		m.schema = string(op.Payload)
	case consensus.OpChangeConfig:
		// The payload isn't interpreted; the quorum is left unchanged.
	default:
		return fmt.Errorf("unknown operation type %v", op.Type)
	}
	m.applied++
	m.mvcc.AdjustSafeTimestamp(m.clk.Now())
	return nil
}

// Get returns the value of |key|, if present.
func (m *MemTablet) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v, ok = m.rows[key]
	return v, ok
}

// Schema returns the current schema descriptor.
func (m *MemTablet) Schema() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema
}

func (m *MemTablet) Metrics() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "stratum_tablet_rows",
		Help: "Number of live rows held by the in-memory tablet engine.",
	}, func() float64 {
		m.mu.Lock()
		defer m.mu.Unlock()
		return float64(len(m.rows))
	})
}

func (m *MemTablet) MVCC() *MVCCManager { return m.mvcc }

func (m *MemTablet) AnchorRegistry() wal.AnchorRegistry { return m.anchors }

func (m *MemTablet) Metadata() *metadata.TabletMetadata { return m.meta }

func (m *MemTablet) EstimateOnDiskSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var size int64
	for k, v := range m.rows {
		size += int64(len(k) + len(v))
	}
	return size
}

func (m *MemTablet) UnregisterMaintenanceOps() {}
