package storage

import (
	"path/filepath"
	"testing"

	"github.com/stratumdb/stratum/go/clock"
	"github.com/stratumdb/stratum/go/consensus"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/opid"
	"github.com/stretchr/testify/require"
)

func memTabletFixture(t *testing.T) *MemTablet {
	t.Helper()
	var meta, err = metadata.Create(
		filepath.Join(t.TempDir(), "sb.db"), "tablet-1", "widgets", nil, nil,
		metadata.Quorum{Peers: []metadata.Peer{{UUID: "p", Role: metadata.RoleLeader}}})
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	return NewMemTablet(meta, clock.NewSystem())
}

func TestMemTabletApplyWrite(t *testing.T) {
	var m = memTabletFixture(t)

	var before = m.MVCC().SafeTimestamp()
	require.NoError(t, m.Apply(Operation{
		Type:    consensus.OpWrite,
		OpID:    opid.OpID{Term: 1, Index: 1},
		Payload: []byte("widget/7=blue"),
	}))

	var v, ok = m.Get("widget/7")
	require.True(t, ok)
	require.Equal(t, "blue", v)
	require.Greater(t, m.MVCC().SafeTimestamp(), before)
	require.Equal(t, int64(len("widget/7")+len("blue")), m.EstimateOnDiskSize())
}

func TestMemTabletRejectsMalformedWrite(t *testing.T) {
	var m = memTabletFixture(t)
	require.EqualError(t,
		m.Apply(Operation{Type: consensus.OpWrite, Payload: []byte("no-separator")}),
		`malformed write cell "no-separator"`)
}

func TestMemTabletAlterSchema(t *testing.T) {
	var m = memTabletFixture(t)
	require.NoError(t, m.Apply(Operation{
		Type:    consensus.OpAlterSchema,
		Payload: []byte("widgets/v2"),
	}))
	require.Equal(t, "widgets/v2", m.Schema())
}

func TestMVCCSafeTimestampIsMonotone(t *testing.T) {
	var m = NewMVCCManager(100)
	require.Equal(t, clock.Timestamp(100), m.SafeTimestamp())

	m.AdjustSafeTimestamp(250)
	require.Equal(t, clock.Timestamp(250), m.SafeTimestamp())

	m.AdjustSafeTimestamp(10) // Regression is ignored.
	require.Equal(t, clock.Timestamp(250), m.SafeTimestamp())
}
