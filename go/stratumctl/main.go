package main

import (
	"github.com/jessevdk/go-flags"
	mbp "go.gazette.dev/core/mainboilerplate"
)

const iniFilename = "stratum.ini"

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "serve", "Serve a tablet peer", `
Serve a single tablet peer from a manifest, until signaled to exit
(via SIGTERM or SIGINT). Upon receiving a signal the peer quiesces:
it stops admitting operations, drains in-flight transactions, and
closes its write-ahead log before exiting.
`, &cmdServe{})

	addCmd(parser, "status", "Print a tablet's persisted status", `
Print the persisted identity, key range, and quorum of a tablet from
its superblock database. The serve command prints a live peer
snapshot instead: identity, key range, state, last status, and size.
`, &cmdStatus{})

	mbp.MustParseConfig(parser, iniFilename)
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	mbp.Must(err, "failed to add flags parser command")
	return cmd
}
