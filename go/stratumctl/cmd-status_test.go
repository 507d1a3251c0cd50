package main

import (
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/tablet"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestRenderSuperblock(t *testing.T) {
	color.NoColor = true

	var meta, err = metadata.Create(
		filepath.Join(t.TempDir(), "sb.db"), "tablet-0001", "accounts",
		[]byte("acct-a"), []byte("acct-m"),
		metadata.Quorum{Peers: []metadata.Peer{
			{UUID: "peer-1", Address: "10.0.0.1:7050", Role: metadata.RoleLeader},
			{UUID: "peer-2", Address: "10.0.0.2:7050", Role: metadata.RoleFollower},
		}})
	require.NoError(t, err)
	defer meta.Close()

	require.Equal(t, `tablet-0001 accounts
  range:  [616363742d61, 616363742d6d)
  quorum:
    peer-1 10.0.0.1:7050 LEADER
    peer-2 10.0.0.2:7050 FOLLOWER
`, renderSuperblock(meta))
}

func TestRenderPeerStatus(t *testing.T) {
	color.NoColor = true

	var out = renderPeerStatus(tablet.Status{
		TabletID:            "tablet-0001",
		TableName:           "accounts",
		LastStatus:          "running",
		StartKey:            "616363742d61",
		EndKey:              "616363742d6d",
		State:               "RUNNING",
		EstimatedOnDiskSize: 42,
	})
	require.Equal(t, `tablet-0001 accounts (RUNNING)
  range:  [616363742d61, 616363742d6d)
  status: running
  size:   42 bytes
`, out)
}

func TestManifestParsing(t *testing.T) {
	var raw = `
superblock: /var/lib/stratum/tablet-0001.db
peer_uuid: 5bd9b347-6f8c-4f26-9a2a-c2c543f9f2a8
tablet:
  oid: tablet-0001
  table: accounts
  start_key: acct-a
  end_key: acct-m
enable_log_gc: false
log_gc_sleep_delay_ms: 2500
`
	var m manifest
	require.NoError(t, yaml.Unmarshal([]byte(raw), &m))

	require.Equal(t, "/var/lib/stratum/tablet-0001.db", m.Superblock)
	require.Equal(t, "5bd9b347-6f8c-4f26-9a2a-c2c543f9f2a8", m.PeerUUID)
	require.Equal(t, "tablet-0001", m.Tablet.OID)
	require.Equal(t, "accounts", m.Tablet.Table)
	require.Equal(t, "acct-a", m.Tablet.StartKey)
	require.Equal(t, "acct-m", m.Tablet.EndKey)
	require.NotNil(t, m.EnableLogGC)
	require.False(t, *m.EnableLogGC)
	require.Equal(t, 2500, m.LogGCSleepDelayMS)
}
