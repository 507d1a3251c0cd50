package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/stratumdb/stratum/go/metadata"
	"github.com/stratumdb/stratum/go/tablet"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdStatus struct {
	Superblock string        `long:"superblock" required:"true" description:"Path of the tablet superblock database"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdStatus) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var meta, err = metadata.Load(cmd.Superblock)
	if err != nil {
		return fmt.Errorf("opening tablet superblock: %w", err)
	}
	defer meta.Close()

	fmt.Print(renderSuperblock(meta))
	return nil
}

// renderSuperblock renders the persisted identity and quorum of a tablet
// for a human operator.
func renderSuperblock(meta *metadata.TabletMetadata) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n",
		color.New(color.Bold).Sprint(meta.OID()),
		meta.TableName())
	fmt.Fprintf(&b, "  range:  [%x, %x)\n", meta.StartKey(), meta.EndKey())

	fmt.Fprintf(&b, "  quorum:\n")
	for _, p := range meta.Quorum().Peers {
		var role = color.New(color.FgYellow).Sprint(p.Role)
		if p.Role == metadata.RoleLeader {
			role = color.New(color.FgGreen).Sprint(p.Role)
		}
		fmt.Fprintf(&b, "    %s %s %s\n", p.UUID, p.Address, role)
	}
	return b.String()
}

// renderPeerStatus renders a live peer status snapshot.
func renderPeerStatus(s tablet.Status) string {
	var stateColor = color.New(color.FgYellow)
	switch s.State {
	case "RUNNING":
		stateColor = color.New(color.FgGreen)
	case "SHUTDOWN":
		stateColor = color.New(color.FgRed)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n",
		color.New(color.Bold).Sprint(s.TabletID),
		s.TableName,
		stateColor.Sprint(s.State))
	fmt.Fprintf(&b, "  range:  [%s, %s)\n", s.StartKey, s.EndKey)
	fmt.Fprintf(&b, "  status: %s\n", s.LastStatus)
	fmt.Fprintf(&b, "  size:   %d bytes\n", s.EstimatedOnDiskSize)
	return b.String()
}
