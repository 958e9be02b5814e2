package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "forcelink",
	Short: "Wireless force-sensing rig node",
	Long: `Runs one node of a wireless force-sensing rig over BLE:

- sensor: sample a load cell, condition the signal, and publish force
  reports to whichever central subscribes
- bridge: hunt for an upstream sensor, subscribe to it, and republish
  its reports downstream (verbatim or re-encoded as BASE reports)
- monitor: subscribe to an upstream node and stream rows to a local
  pseudo-terminal for serial tools on the PC
- simulate: run a sensor, bridge and monitor in-process over a
  simulated medium, with optional fault injection
- scan: list advertising rig nodes in range

Nodes hunt for their peers indefinitely: disconnects re-enter discovery
and the chain re-forms on its own.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(sensorCmd)
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(simulateCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
