package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramtinhoss/vibekit/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:   "vibekit",
	Short: "Run coding agents in a sandbox and sync their changes back",
	Long: `vibekit runs an AI coding agent against a copy of your project and applies
the agent's file changes back to the project when it finishes.

Sandbox backends:
  none    the agent works directly in the project (no isolation)
  local   the agent works in a shadow copy under .vibekit/
  docker  the agent works in a container with the shadow copy mounted

Host files edited while the agent ran are never overwritten without --force,
and are never deleted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, cmd.ErrOrStderr())
		logging.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs, changes and events as JSON")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "Project directory (default: current directory)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// projectDir returns the directory commands operate on.
func projectDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}
