package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/tui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply changes left in the sandbox by an earlier session",
	Long: `Sync applies the changes an earlier session could not apply, for example
because host files were edited while the agent ran. Host files that changed
are skipped unless --force is given; they are never deleted.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var syncForce bool

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Overwrite host files that changed since the session started")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	paths, pc, err := loadProject()
	if err != nil {
		return err
	}

	o := orchestrator(pc)
	changes, rec, err := o.PendingChanges(cmd.Context(), paths.ProjectDir)
	if err != nil {
		return err
	}
	if !rec.Pending {
		logInfo("Nothing to sync: the last session's changes were all applied")
		return nil
	}

	var result *reconcile.Result
	err = tui.WithSpinner(cmd.ErrOrStderr(), "Syncing changes...", func() error {
		var err error
		result, err = o.SyncPending(cmd.Context(), paths.ProjectDir, syncForce)
		return err
	})
	if err != nil {
		return err
	}

	printSyncReport(cmd.OutOrStdout(), result, changes)
	if err := result.Err(); err != nil {
		return err
	}
	logSuccess("Project is up to date with the sandbox")
	return nil
}
