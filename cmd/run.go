package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ramtinhoss/vibekit/internal/app"
	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/tui"
	"github.com/Ramtinhoss/vibekit/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <agent> [args...]",
	Short: "Run an agent in a sandbox and sync its changes back",
	Long: `Run starts a sandbox session for the project, runs the agent in it, applies
the agent's changes to the project and ends the session.

The agent's exit status becomes vibekit's exit status. When the agent exits 0
but some changes could not be applied, vibekit exits 243 (conflicts) or 244
(I/O failures) and keeps the changes for 'vibekit sync'.

Flags override the project's .vibekit/config.toml.`,
	Example: `  vibekit run -- claude -p "fix the failing tests"
  vibekit run --sandbox docker --image node:22 --secret ANTHROPIC_API_KEY -- claude
  vibekit run --command "make test"`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

var (
	runSandbox    string
	runNetwork    string
	runPersistent bool
	runFresh      bool
	runForce      bool
	runTimeout    time.Duration
	runGrace      time.Duration
	runImage      string
	runCPUs       float64
	runMemory     string
	runSecrets    []string
	runProxy      string
	runWatch      bool
	runTTY        bool
	runCommand    string
)

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runSandbox, "sandbox", "s", "", "Sandbox backend: none, local or docker")
	f.StringVar(&runNetwork, "network", "", "Network policy for docker: bridge or none")
	f.BoolVar(&runPersistent, "persistent", false, "Keep the container for later sessions")
	f.BoolVar(&runFresh, "fresh", false, "Use a new container and destroy it afterwards")
	f.BoolVar(&runForce, "force", false, "Overwrite host files changed during the session (never deletes them)")
	f.DurationVar(&runTimeout, "timeout", 0, "Stop the agent after this long (0 for no limit)")
	f.DurationVar(&runGrace, "grace", 0, "Time between interrupting and killing the agent")
	f.StringVar(&runImage, "image", "", "Container image for docker")
	f.Float64Var(&runCPUs, "cpus", 0, "CPU limit for docker")
	f.StringVar(&runMemory, "memory", "", "Memory limit for docker (e.g. 2g)")
	f.StringArrayVar(&runSecrets, "secret", nil, "Forward a host environment variable (repeatable)")
	f.StringVar(&runProxy, "proxy", "", "API proxy URL exposed to the agent")
	f.BoolVarP(&runWatch, "watch", "w", false, "Print file activity while the agent runs")
	f.BoolVarP(&runTTY, "tty", "t", false, "Attach the agent to the terminal (default: when stdin is a terminal)")
	f.StringVarP(&runCommand, "command", "c", "", "Agent command line, parsed like a shell would")
	runCmd.MarkFlagsMutuallyExclusive("persistent", "fresh")

	rootCmd.AddCommand(runCmd)
}

// agentArgv returns the command to run from --command or the positional
// arguments.
func agentArgv(args []string) ([]string, error) {
	if runCommand != "" {
		if len(args) > 0 {
			return nil, sberrors.ValidationError("use either --command or arguments after --, not both")
		}
		argv, err := shellquote.Split(runCommand)
		if err != nil {
			return nil, sberrors.ValidationError(fmt.Sprintf("invalid --command: %v", err))
		}
		args = argv
	}
	if len(args) == 0 {
		return nil, sberrors.ValidationError("no agent command given; pass it after -- or with --command")
	}
	return args, nil
}

// applyRunFlags overrides project configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, pc *config.ProjectConfig) error {
	flags := cmd.Flags()
	if flags.Changed("sandbox") {
		pc.Sandbox.Backend = runSandbox
	}
	if flags.Changed("network") {
		pc.Sandbox.Network = runNetwork
	}
	if flags.Changed("persistent") {
		pc.Sandbox.Persistent = true
	}
	if flags.Changed("fresh") {
		pc.Sandbox.Persistent = false
	}
	if flags.Changed("timeout") {
		pc.Sandbox.CommandTimeout = config.Duration{Duration: runTimeout}
	}
	if flags.Changed("grace") {
		pc.Sandbox.GracePeriod = config.Duration{Duration: runGrace}
	}
	if flags.Changed("image") {
		pc.Docker.Image = runImage
	}
	if flags.Changed("cpus") {
		pc.Docker.CPUs = runCPUs
	}
	if flags.Changed("memory") {
		pc.Docker.Memory = runMemory
	}
	if flags.Changed("proxy") {
		pc.Proxy.URL = runProxy
	}
	for _, name := range runSecrets {
		if !contains(pc.Secrets.Env, name) {
			pc.Secrets.Env = append(pc.Secrets.Env, name)
		}
	}

	if err := pc.Validate(); err != nil {
		return sberrors.ConfigError("invalid options", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func runRun(cmd *cobra.Command, args []string) error {
	argv, err := agentArgv(args)
	if err != nil {
		return err
	}

	paths, pc, err := loadProject()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, pc); err != nil {
		return err
	}

	cfg, err := app.Default.SessionConfig(paths, pc)
	if err != nil {
		return err
	}
	defer cfg.Secrets.Destroy()
	cfg.Force = runForce

	tty := runTTY
	if !cmd.Flags().Changed("tty") {
		tty = term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	}

	errOut := cmd.ErrOrStderr()
	sp := tui.NewSpinner(errOut, fmt.Sprintf("Preparing %s sandbox...", cfg.Backend))
	defer sp.Stop()
	app.Default.StateHook = func(_ *session.Session, st session.State) {
		if st == session.StateProvisioning {
			sp.Start()
		} else {
			sp.Stop()
		}
	}
	defer func() { app.Default.StateHook = nil }()

	var opts []session.RunOption
	if runWatch {
		opts = append(opts, session.WithActivity(func(e watch.Event) {
			fmt.Fprintf(errOut, "  %-6s %s\n", e.Op, e.Path)
		}))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := backend.ExecRequest{
		Argv:   argv,
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: errOut,
		TTY:    tty,
	}

	report, err := orchestrator(pc).Run(ctx, cfg, req, opts...)
	if report != nil {
		printSyncReport(errOut, report.Sync, report.Changes)
		switch report.Outcome.Phase {
		case session.PhaseStopping:
			logWarning("Agent stopped after an interrupt")
		case session.PhaseKilled:
			logWarning("Agent was killed after the %s grace period", cfg.GracePeriod)
		}
		if report.Pending {
			logWarning("Unsynced changes remain in the sandbox; review them with 'vibekit diff' and apply them with 'vibekit sync'")
		}
	}
	if err != nil {
		return err
	}
	return report.Err()
}
