package main

import (
	"fmt"

	"github.com/justprosound/miclink/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the monitor.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a miclink configuration file without starting the monitor.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  miclink validate -c config.yaml
  miclink validate --config /etc/miclink/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Count total devices (direct + from grids)
	directDevices := len(cfg.Devices)
	gridDevices := 0
	for _, g := range cfg.Grids {
		// Calculate cartesian product size
		size := 1
		for _, vals := range g.Dimensions {
			size *= len(vals)
		}
		gridDevices += size
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Listen:      %s\n", cfg.Listen)
	fmt.Printf("  Stale after: %s\n", cfg.StaleAfter.Duration())
	fmt.Printf("  Devices:     %d direct + %d from grids = %d total\n",
		directDevices, gridDevices, directDevices+gridDevices)

	return nil
}
