// Package main is the entry point for the miclink CLI.
//
// miclink can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	miclink serve -c config.yaml    # Start the monitor
//	miclink validate -c config.yaml # Validate configuration
//	miclink version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "miclink",
	Short: "Connection monitor for wireless microphone receivers",
	Long: `miclink keeps persistent telemetry connections to wireless microphone
receivers and tracks the health of every link.

It dials each receiver's SSE or WebSocket stream, reconnects with
exponential backoff when a link drops, and serves live connection state
over a REST and WebSocket API.

Quick start:
  1. Create a config file (miclink.yaml)
  2. Run: miclink serve -c miclink.yaml
  3. Query http://localhost:8080/api/devices

Example config:
  listen: ":8080"
  stale_after: 60s
  devices:
    - id: rx-vocal
      address: http://10.0.7.21/stream`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this miclink binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("miclink %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
