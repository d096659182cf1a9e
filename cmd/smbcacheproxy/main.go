// Command smbcacheproxy is the transparent SMB2 interception/caching proxy
// described by this repository's specification: it wires the wire-protocol
// state machine, the filesystem cache client, the metadata cache, the HTTP
// connector and the content-addressed transfer path into one long-running
// daemon, plus `init`/`version` helper subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/seekscale/smbcacheproxy/cmd/smbcacheproxy/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
