//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package main

import (
	"context"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/mymmsc/reactor/internal/cli"
)

// Version is dynamically set by the toolchain or overridden by the Makefile.
var Version = "DEV"

func main() {
	if Version == "DEV" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}

	cobra.CheckErr(cli.NewCLI(Version).ExecuteContext(context.Background()))
}
