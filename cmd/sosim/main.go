// Command sosim runs, serves and inspects a Systems-of-Systems simulation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sosim",
		Short: "Discrete-tick Systems-of-Systems simulation",
		Long: `sosim drives a System of Systems one tick at a time.

Every tick runs in two phases: all agents read the world and choose their
actions, then the chosen actions are committed in traversal order and
logged. Results go to SQLite, compressed JSONL exports and the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newInspectCmd(),
		newEventsCmd(),
	)
	return rootCmd
}
