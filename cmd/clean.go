package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/session"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the project's container, shadow copy and session state",
	Long: `Clean destroys everything sessions left behind: the container, the shadow
copy under .vibekit/, the baseline and the session record.

Changes that were never synced are discarded; clean refuses to do that
unless --discard is given.

With --orphans, clean leaves the project alone and instead removes the
vibekit containers that no project tracks anymore: those whose project
directory is gone or whose project has since moved to another backend.
'vibekit status' lists them.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

var (
	cleanDiscard bool
	cleanOrphans bool
)

func init() {
	cleanCmd.Flags().BoolVar(&cleanDiscard, "discard", false, "Discard unsynced changes")
	cleanCmd.Flags().BoolVar(&cleanOrphans, "orphans", false, "Remove untracked vibekit containers of any project instead")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	paths, pc, cfg, err := inspectProject("")
	if err != nil {
		return err
	}
	defer cfg.Secrets.Destroy()

	if cleanOrphans {
		return cleanOrphanedContainers(cmd, pc)
	}

	if rec, err := session.Record(paths.ProjectDir); err == nil && rec.Pending && !cleanDiscard {
		logWarning("Use 'vibekit clean --discard' to throw the unsynced changes away")
		return sberrors.PendingChangesError(paths.ProjectDir)
	}

	if err := orchestrator(pc).Clean(cmd.Context(), cfg); err != nil {
		return err
	}

	logSuccess("Cleaned %s", paths.ProjectDir)
	return nil
}

func cleanOrphanedContainers(cmd *cobra.Command, pc *config.ProjectConfig) error {
	removed, err := orchestrator(pc).RemoveOrphans(cmd.Context())
	for _, o := range removed {
		logSuccess("Removed %s (%s)", o.Name, o.Reason)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		logInfo("No orphaned containers")
	}
	return nil
}
