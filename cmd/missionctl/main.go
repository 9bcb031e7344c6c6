// Command missionctl is the CLI entry point for Mission Control.
package main

import (
	"fmt"
	"os"

	"github.com/missioncontrol/missionctl/internal/cmd"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	rootCmd := cmd.NewRootCommand(Version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
