// Package main provides the slotwatch command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/slotwatch/slotwatch/internal/cli"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.BuildInfo{Version: Version, BuildTime: BuildTime})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
