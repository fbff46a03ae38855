// Iroh Core turns a rotary-era telephone into a home automation remote.
//
// The process listens to the phone service's event stream, feeds dialled
// digits through a state machine loaded from a YAML command table and
// dispatches the matched commands: countdown timers, Home Assistant
// services and spoken feedback on the handset.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the binary without a
// subcommand is the same as "iroh run".
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "iroh",
		Short:         "Iroh Core - dial-pad home automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", getConfigPath(), "path to the configuration file")

	runCmd := newRunCmd()
	root.RunE = runCmd.RunE
	root.AddCommand(runCmd, newValidateCmd(), newVersionCmd())
	return root
}

// getConfigPath returns the configuration file path.
// Uses IROH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IROH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "iroh %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
