package main

import (
	"os"

	"github.com/sdb-debugger/sdb/cmd/sdb/cmds"
	"github.com/sdb-debugger/sdb/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.SdbVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
