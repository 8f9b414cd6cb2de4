package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sandbox and session status of the project",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusSandbox string

func init() {
	statusCmd.Flags().StringVarP(&statusSandbox, "sandbox", "s", "", "Backend to inspect (default: the configured backend)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths, pc, cfg, err := inspectProject(statusSandbox)
	if err != nil {
		return err
	}
	defer cfg.Secrets.Destroy()

	st, err := orchestrator(pc).Status(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	view := tui.StatusView{
		ProjectDir: paths.ProjectDir,
		Backend:    st,
		Active:     session.Active(paths.ProjectDir),
	}
	// An unreachable container engine only hides the orphans.
	if orphans, err := orchestrator(pc).Orphans(cmd.Context()); err != nil {
		logging.Debug("failed to list sandbox containers", "error", err)
	} else {
		view.Orphans = orphans
	}
	rec, err := session.Record(paths.ProjectDir)
	switch {
	case err == nil:
		view.Record = rec
	case !sberrors.IsKind(err, sberrors.KindNotFound):
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), tui.RenderStatus(view))
	return nil
}
