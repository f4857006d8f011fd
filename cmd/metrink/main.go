package main

import (
	"fmt"
	"os"

	"github.com/metrink/metrink-go/internal/cmd"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	root := cmd.RootCommand(cmd.BuildInfo{Version: version, BuildDate: buildDate})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
