package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramtinhoss/vibekit/internal/tui"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show changes in the sandbox that the project has not received",
	Args:  cobra.NoArgs,
	RunE:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	paths, pc, err := loadProject()
	if err != nil {
		return err
	}

	changes, _, err := orchestrator(pc).PendingChanges(cmd.Context(), paths.ProjectDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		for _, c := range changes.Sorted() {
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("failed to marshal change: %w", err)
			}
			fmt.Fprintln(out, string(data))
		}
		return nil
	}

	fmt.Fprint(out, tui.RenderChanges(changes))
	return nil
}
