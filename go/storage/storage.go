// Package storage defines the contract between the tablet peer and the
// storage engine which applies its operations, along with the MVCC
// safe-timestamp manager and an in-memory reference Tablet.
package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stratumdb/stratum/go/wal"
)

// Operation is one replicated operation handed to the engine for apply.
// The payload's encoding is the engine's concern.
type Operation struct {
	Type    consensus.OpType
	OpID    opid.OpID
	Payload []byte
}

// Tablet is the storage engine of one tablet replica. Row layout, MVCC
// internals, and compaction are entirely behind this interface.
type Tablet interface {
	// Apply the replicated operation to the engine.
	Apply(op Operation) error
	// Metrics returns the engine's collector, for registration by the host.
	Metrics() prometheus.Collector
	// MVCC returns the engine's MVCC safe-timestamp manager.
	MVCC() *MVCCManager
	// AnchorRegistry returns the registry of OpIDs pinned by readers.
	AnchorRegistry() wal.AnchorRegistry
	// Metadata returns the tablet's persistent superblock.
	Metadata() *metadata.TabletMetadata
	// EstimateOnDiskSize reports the engine's approximate footprint.
	EstimateOnDiskSize() int64
	// UnregisterMaintenanceOps detaches the engine's background
	// maintenance from the host's maintenance manager.
	UnregisterMaintenanceOps()
}
