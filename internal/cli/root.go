// Package cli wires the engine to the command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/logging"
)

var (
	rootBackend       string
	rootBackendConfig map[string]string
	rootLogLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "cairn",
	Short: "Declarative infrastructure reconciliation",
	Long: `Cairn reconciles declared infrastructure with reality.

Declarations describe the resources you want; cairn builds the dependency
graph, diffs against recorded state, and executes only the changes needed:
  • Plans you can read before anything happens
  • Parallel execution that honors dependencies
  • Durable state with local and S3 backends`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if rootLogLevel != "" {
			logging.Init(rootLogLevel)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootBackend, "backend", "local", "State backend (local or s3)")
	rootCmd.PersistentFlags().StringToStringVar(&rootBackendConfig, "backend-config", nil, "Backend settings (format: key=value)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(versionCmd)
}
