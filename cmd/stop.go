package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ramtinhoss/vibekit/internal/backend"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the project's persistent container",
	Long: `Stop stops the project's persistent container without removing it. The next
session resumes it. Use 'vibekit clean' to remove it.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	_, pc, cfg, err := inspectProject("")
	if err != nil {
		return err
	}
	defer cfg.Secrets.Destroy()

	if cfg.Backend != backend.KindDocker {
		logInfo("Nothing to stop: the %s backend keeps nothing running between sessions", cfg.Backend)
		return nil
	}

	st, err := orchestrator(pc).Status(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if !st.Running() {
		logInfo("Container %s is not running", st.Name)
		return nil
	}

	logInfo("Stopping container %s...", st.Name)
	if err := orchestrator(pc).Stop(cmd.Context(), cfg); err != nil {
		return err
	}

	logSuccess("Stopped container %s", st.Name)
	return nil
}
