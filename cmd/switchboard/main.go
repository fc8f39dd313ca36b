// switchboard - multi-protocol server
package main

import (
	"context"

	"github.com/getmockd/switchboard/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.Commit = Commit
	cli.BuildDate = BuildDate
	cli.Execute(context.Background())
}
