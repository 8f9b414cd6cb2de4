package backend

import (
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/injection"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
)

// signalTimeout bounds the exec used to deliver a signal.
const signalTimeout = 10 * time.Second

// dockerProvider runs commands in a container with the shadow root
// bind-mounted as the working directory.
type dockerProvider struct {
	rt runtime.Runtime
}

func (p *dockerProvider) Kind() Kind { return KindDocker }

func (p *dockerProvider) Inspect(ctx context.Context, cfg *Config) (*Inspection, error) {
	info, err := p.rt.Status(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", cfg.Name, err)
	}

	ins := &Inspection{ContainerID: info.ID, ConfigHash: info.Labels[LabelConfigHash]}
	switch info.Status {
	case runtime.StatusNotFound:
		ins.State = StateNotCreated
	case runtime.StatusRunning:
		ins.State = StateRunning
	default:
		ins.State = StateStopped
	}
	return ins, nil
}

func (p *dockerProvider) Provision(ctx context.Context, cfg *Config) (*Handle, error) {
	if err := os.MkdirAll(cfg.ShadowDir, 0755); err != nil {
		return nil, sberrors.ProvisioningError("failed to create shadow root", err)
	}

	h := cfg.Handle()
	contributions, err := injection.NewCollector().Collect(ctx, injection.CollectionSources{
		Contributors:  cfg.contributors(),
		MountRequest:  &injection.MountRequest{IsolatedRoot: cfg.ShadowDir, Workdir: h.Workdir},
		EnvVarRequest: &injection.EnvVarRequest{ResourceName: cfg.Name, ProxyURL: cfg.ProxyURL},
	})
	if err != nil {
		return nil, sberrors.ProvisioningError("failed to prepare sandbox environment", err)
	}

	opts := runtime.CreateOptions{
		Name:       cfg.Name,
		Image:      cfg.Image,
		User:       cfg.User,
		WorkingDir: h.Workdir,
		Env:        contributions.Env(),
		BindMounts: contributions.BindMounts(),
		Network:    string(cfg.Network),
		NanoCPUs:   int64(math.Round(cfg.CPUs * 1e9)),
		Memory:     cfg.Memory,
		Labels: map[string]string{
			LabelProject:    cfg.ProjectDir,
			LabelConfigHash: h.ConfigHash,
		},
		Start: true,
	}

	logging.Debug("creating sandbox container", "name", cfg.Name, "image", cfg.Image,
		"network", cfg.Network, "hash", h.ConfigHash, "env", injection.EnvNames(cfg.contributors()))

	if err := p.rt.Create(ctx, opts); err != nil {
		return nil, sberrors.ProvisioningError(fmt.Sprintf("failed to create container %s", cfg.Name), err)
	}

	info, err := p.rt.Status(ctx, cfg.Name)
	if err != nil {
		return nil, sberrors.ProvisioningError(fmt.Sprintf("failed to inspect container %s", cfg.Name), err)
	}
	if info.Status != runtime.StatusRunning {
		return nil, sberrors.ProvisioningError(fmt.Sprintf("container %s is %s after start", cfg.Name, info.Status), nil)
	}

	h.ContainerID = info.ID
	return h, nil
}

func (p *dockerProvider) Resume(ctx context.Context, cfg *Config, ins *Inspection) (*Handle, error) {
	if ins.State == StateStopped {
		logging.Debug("starting stopped sandbox container", "name", cfg.Name)
		if err := p.rt.Start(ctx, cfg.Name); err != nil {
			return nil, sberrors.ProvisioningError(fmt.Sprintf("failed to start container %s", cfg.Name), err)
		}
	}

	h := cfg.Handle()
	h.ContainerID = ins.ContainerID
	h.Reused = true
	return h, nil
}

// Start runs the command through a small shell wrapper that records the
// command's PID inside the container, so that it can be signalled later
// through a second exec.
func (p *dockerProvider) Start(ctx context.Context, h *Handle, req ExecRequest) (Process, error) {
	if len(req.Argv) == 0 {
		return nil, sberrors.ExecutionError("empty command", nil)
	}

	workdir := h.Workdir
	if req.Dir != "" {
		clean := path.Clean("/" + req.Dir)
		workdir = path.Join(h.Workdir, clean)
	}

	pidFile := "/tmp/vibekit-" + uuid.NewString() + ".pid"
	command := append([]string{"sh", "-c", `echo $$ > "$0"; exec "$@"`, pidFile}, req.Argv...)

	session, err := p.rt.ExecStart(ctx, h.Name, command, runtime.ExecOptions{
		WorkingDir: workdir,
		Env:        req.Env,
		Stdin:      req.Stdin,
		Stdout:     req.Stdout,
		Stderr:     req.Stderr,
		TTY:        req.TTY,
	})
	if err != nil {
		return nil, sberrors.ExecutionError(fmt.Sprintf("failed to start %s in container", req.Argv[0]), err)
	}

	return &containerProcess{rt: p.rt, name: h.Name, pidFile: pidFile, session: session}, nil
}

func (p *dockerProvider) Stop(ctx context.Context, h *Handle) error {
	if err := p.rt.Stop(ctx, h.Name); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", h.Name, err)
	}
	return nil
}

func (p *dockerProvider) Teardown(ctx context.Context, h *Handle) error {
	if err := p.rt.Destroy(ctx, h.Name); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", h.Name, err)
	}
	logging.Debug("removed sandbox container", "name", h.Name)
	return nil
}

// containerProcess is a command running inside a container.
type containerProcess struct {
	rt      runtime.Runtime
	name    string
	pidFile string
	session runtime.ExecSession
}

func (c *containerProcess) Wait() (int, error) {
	code, err := c.session.Wait(context.Background())
	_ = c.session.Close()
	return code, err
}

func (c *containerProcess) Interrupt() error {
	return c.signal("INT")
}

func (c *containerProcess) Kill() error {
	err := c.signal("KILL")
	_ = c.session.Close()
	return err
}

func (c *containerProcess) signal(sig string) error {
	script := fmt.Sprintf(`pid=$(cat %q 2>/dev/null) && kill -%s "$pid" 2>/dev/null; true`, c.pidFile, sig)

	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	if _, err := c.rt.Exec(ctx, c.name, []string{"sh", "-c", script}, runtime.ExecOptions{}); err != nil {
		return fmt.Errorf("failed to send SIG%s to process in %s: %w", sig, c.name, err)
	}
	return nil
}
