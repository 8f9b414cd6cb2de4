package backend

import (
	"context"
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"

	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/injection"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/system"
)

// hostEnv collects the injected environment for a host backend.
func hostEnv(ctx context.Context, cfg *Config) ([]string, error) {
	contributions, err := injection.NewCollector().Collect(ctx, injection.CollectionSources{
		Contributors:  cfg.contributors(),
		EnvVarRequest: &injection.EnvVarRequest{ResourceName: cfg.Name, ProxyURL: cfg.ProxyURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect sandbox environment: %w", err)
	}
	return contributions.Env(), nil
}

// startHost runs a command on the host with its working directory
// resolved inside h.Workdir.
func startHost(exec system.Executor, h *Handle, req ExecRequest) (Process, error) {
	if len(req.Argv) == 0 {
		return nil, sberrors.ExecutionError("empty command", nil)
	}

	dir := h.Workdir
	if req.Dir != "" {
		resolved, err := securejoin.SecureJoin(h.Workdir, req.Dir)
		if err != nil {
			return nil, sberrors.ExecutionError(fmt.Sprintf("invalid working directory %q", req.Dir), err)
		}
		dir = resolved
	}

	env := system.Environ(append(append([]string{}, h.env...), req.Env...))

	proc, err := exec.Start(system.Command{
		Argv:   req.Argv,
		Dir:    dir,
		Env:    env,
		Stdin:  req.Stdin,
		Stdout: req.Stdout,
		Stderr: req.Stderr,

		Interactive: req.TTY,
	})
	if err != nil {
		return nil, sberrors.ExecutionError(fmt.Sprintf("failed to start %s", req.Argv[0]), err)
	}
	return proc, nil
}

// noneProvider runs commands directly in the project directory.
type noneProvider struct {
	exec system.Executor
}

func (p *noneProvider) Kind() Kind { return KindNone }

func (p *noneProvider) Inspect(ctx context.Context, cfg *Config) (*Inspection, error) {
	return &Inspection{State: StateRunning, ConfigHash: cfg.Hash()}, nil
}

func (p *noneProvider) Provision(ctx context.Context, cfg *Config) (*Handle, error) {
	logging.Warn("sandbox backend 'none' provides no isolation; the agent writes directly to the project",
		"dir", cfg.ProjectDir)

	env, err := hostEnv(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h := cfg.Handle()
	h.env = env
	return h, nil
}

func (p *noneProvider) Resume(ctx context.Context, cfg *Config, ins *Inspection) (*Handle, error) {
	h, err := p.Provision(ctx, cfg)
	if err != nil {
		return nil, err
	}
	h.Reused = true
	return h, nil
}

func (p *noneProvider) Start(ctx context.Context, h *Handle, req ExecRequest) (Process, error) {
	return startHost(p.exec, h, req)
}

func (p *noneProvider) Stop(ctx context.Context, h *Handle) error { return nil }

func (p *noneProvider) Teardown(ctx context.Context, h *Handle) error { return nil }

// localProvider runs commands on the host inside the shadow root.
type localProvider struct {
	exec system.Executor
}

func (p *localProvider) Kind() Kind { return KindLocal }

// Inspect reports an existing shadow root as stopped: it is ready for
// reuse but nothing runs in it between sessions. Local roots carry no
// parameters that can drift.
func (p *localProvider) Inspect(ctx context.Context, cfg *Config) (*Inspection, error) {
	info, err := os.Stat(cfg.ShadowDir)
	if os.IsNotExist(err) {
		return &Inspection{State: StateNotCreated}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect shadow root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("shadow root %s is not a directory", cfg.ShadowDir)
	}
	return &Inspection{State: StateStopped, ConfigHash: cfg.Hash()}, nil
}

func (p *localProvider) Provision(ctx context.Context, cfg *Config) (*Handle, error) {
	if err := os.MkdirAll(cfg.ShadowDir, 0755); err != nil {
		return nil, sberrors.ProvisioningError("failed to create shadow root", err)
	}
	logging.Debug("provisioned shadow root", "path", cfg.ShadowDir)

	env, err := hostEnv(ctx, cfg)
	if err != nil {
		return nil, sberrors.ProvisioningError("failed to prepare sandbox environment", err)
	}

	h := cfg.Handle()
	h.env = env
	return h, nil
}

func (p *localProvider) Resume(ctx context.Context, cfg *Config, ins *Inspection) (*Handle, error) {
	h, err := p.Provision(ctx, cfg)
	if err != nil {
		return nil, err
	}
	h.Reused = true
	return h, nil
}

func (p *localProvider) Start(ctx context.Context, h *Handle, req ExecRequest) (Process, error) {
	return startHost(p.exec, h, req)
}

func (p *localProvider) Stop(ctx context.Context, h *Handle) error { return nil }

func (p *localProvider) Teardown(ctx context.Context, h *Handle) error {
	if h.Root == "" {
		return nil
	}
	if err := os.RemoveAll(h.Root); err != nil {
		return fmt.Errorf("failed to remove shadow root: %w", err)
	}
	logging.Debug("removed shadow root", "path", h.Root)
	return nil
}
