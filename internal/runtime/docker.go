package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Ramtinhoss/vibekit/internal/logging"
)

// stopTimeoutSeconds bounds how long the engine waits for a container's
// init process before killing it.
const stopTimeoutSeconds = 5

// DockerRuntime implements the Runtime interface using the Docker Engine API.
// Podman's compatible socket is used when no Docker daemon is configured.
type DockerRuntime struct {
	// Engine is "docker" or "podman", reported by Name
	Engine string

	cli *client.Client
}

// NewDockerRuntime connects to the container engine found by Detect.
func NewDockerRuntime() (*DockerRuntime, error) {
	endpoint, err := Detect()
	if err != nil {
		return nil, err
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if endpoint.Host != "" {
		opts = append(opts, client.WithHost(endpoint.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client init failed: %w", err)
	}

	logging.Debug("connected container runtime", "engine", endpoint.Engine, "host", cli.DaemonHost())
	return &DockerRuntime{Engine: endpoint.Engine, cli: cli}, nil
}

// Name returns the runtime identifier
func (r *DockerRuntime) Name() string {
	return r.Engine
}

// Close releases the engine connection.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

// Ping checks that the engine is reachable.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%s daemon unavailable: %w", r.Engine, err)
	}
	return nil
}

// Create creates a new container that idles until commands are exec'd into it.
func (r *DockerRuntime) Create(ctx context.Context, opts CreateOptions) error {
	logging.Debug("creating container", "name", opts.Name, "image", opts.Image, "runtime", r.Engine)

	if err := r.ensureImage(ctx, opts.Image); err != nil {
		return err
	}

	resp, err := r.cli.ContainerCreate(ctx, containerConfig(opts), hostConfig(opts), &network.NetworkingConfig{}, nil, opts.Name)
	if err != nil {
		return fmt.Errorf("docker container create failed: %w", err)
	}
	if resp.ID == "" {
		return fmt.Errorf("docker container create returned empty id")
	}

	if opts.Start {
		if err := r.Start(ctx, opts.Name); err != nil {
			_ = r.cli.ContainerRemove(ctx, opts.Name, container.RemoveOptions{Force: true})
			return err
		}
	}

	return nil
}

func (r *DockerRuntime) ensureImage(ctx context.Context, ref string) error {
	if _, err := r.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	logging.Info("pulling image", "image", ref)
	rc, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker image unavailable (%s): %w", ref, err)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// containerConfig builds the container configuration. The container runs
// an idle command; work happens through exec.
func containerConfig(opts CreateOptions) *container.Config {
	labels := make(map[string]string, len(opts.Labels)+1)
	for k, v := range opts.Labels {
		labels[k] = v
	}
	labels[LabelManaged] = "true"

	return &container.Config{
		Image:      opts.Image,
		Cmd:        []string{"sleep", "infinity"},
		Entrypoint: []string{},
		WorkingDir: opts.WorkingDir,
		User:       strings.TrimSpace(opts.User),
		Env:        opts.Env,
		Labels:     labels,
	}
}

func hostConfig(opts CreateOptions) *container.HostConfig {
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(opts.Network),
		Binds:       bindSpecs(opts.BindMounts),
	}
	hostCfg.NanoCPUs = opts.NanoCPUs
	hostCfg.Memory = opts.Memory
	return hostCfg
}

// bindSpecs renders bind mounts in a stable order.
func bindSpecs(mounts map[string]string) []string {
	binds := make([]string, 0, len(mounts))
	for hostPath, containerPath := range mounts {
		binds = append(binds, fmt.Sprintf("%s:%s:rw", hostPath, containerPath))
	}
	sort.Strings(binds)
	return binds
}

// Start starts an existing container
func (r *DockerRuntime) Start(ctx context.Context, name string) error {
	logging.Debug("starting container", "container", name)

	if err := r.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("docker container start failed: %w", err)
	}
	return nil
}

// Stop stops a running container
func (r *DockerRuntime) Stop(ctx context.Context, name string) error {
	logging.Debug("stopping container", "container", name)

	timeout := stopTimeoutSeconds
	if err := r.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("docker container stop failed: %w", err)
	}
	return nil
}

// Destroy stops and removes a container
func (r *DockerRuntime) Destroy(ctx context.Context, name string) error {
	logging.Debug("destroying container", "container", name)

	timeout := stopTimeoutSeconds
	_ = r.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})

	if err := r.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("docker container remove failed: %w", err)
	}
	return nil
}

// Status returns detailed status of a container
func (r *DockerRuntime) Status(ctx context.Context, name string) (*ContainerInfo, error) {
	info := &ContainerInfo{
		Name:   name,
		Status: StatusNotFound,
	}

	inspect, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return info, nil
		}
		return nil, fmt.Errorf("docker container inspect failed: %w", err)
	}

	info.ID = inspect.ID
	if inspect.Config != nil {
		info.Labels = inspect.Config.Labels
	}
	if inspect.State != nil {
		info.Status = statusFromState(string(inspect.State.Status))
		info.StartedAt = inspect.State.StartedAt
	}

	return info, nil
}

func statusFromState(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "stopped", "created", "paused", "dead":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// Exec executes a command inside a container
func (r *DockerRuntime) Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	opts.Stdout = &stdout
	opts.Stderr = &stderr
	opts.TTY = false

	session, err := r.ExecStart(ctx, name, command, opts)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	code, err := session.Wait(ctx)
	result := &ExecResult{
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if err != nil {
		return result, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

// ExecStart starts a command inside a container. Output is copied to the
// writers in opts until the command exits or the session is closed.
func (r *DockerRuntime) ExecStart(ctx context.Context, name string, command []string, opts ExecOptions) (ExecSession, error) {
	execResp, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          command,
		User:         opts.User,
		WorkingDir:   opts.WorkingDir,
		Env:          opts.Env,
		Tty:          opts.TTY,
		AttachStdin:  opts.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("docker exec create failed: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{Tty: opts.TTY})
	if err != nil {
		return nil, fmt.Errorf("docker exec attach failed: %w", err)
	}

	stdout := writerOrDiscard(opts.Stdout)
	stderr := writerOrDiscard(opts.Stderr)

	s := &dockerExec{
		cli:    r.cli,
		id:     execResp.ID,
		closer: attach.Close,
		copied: make(chan error, 1),
	}

	if opts.Stdin != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, opts.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	go func() {
		var err error
		if opts.TTY {
			_, err = io.Copy(stdout, attach.Reader)
		} else {
			_, err = stdcopy.StdCopy(stdout, stderr, attach.Reader)
		}
		if err == io.EOF {
			err = nil
		}
		s.copied <- err
	}()

	return s, nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

type dockerExec struct {
	cli    *client.Client
	id     string
	closer func()
	copied chan error

	closeOnce sync.Once
}

func (s *dockerExec) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		s.Close()
		return 1, ctx.Err()
	case err := <-s.copied:
		if err != nil && ctx.Err() == nil {
			logging.Debug("exec output stream ended with error", "exec", s.id, "error", err)
		}
	}
	return s.waitExecDone(ctx)
}

func (s *dockerExec) waitExecDone(ctx context.Context) (int, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		ins, err := s.cli.ContainerExecInspect(ctx, s.id)
		if err != nil {
			return 1, fmt.Errorf("docker exec inspect failed: %w", err)
		}
		if !ins.Running {
			return ins.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return 1, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *dockerExec) Close() error {
	s.closeOnce.Do(s.closer)
	return nil
}

// List returns all containers managed by vibekit
func (r *DockerRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	summaries, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("docker container list failed: %w", err)
	}

	containers := make([]*ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		name := s.ID
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		containers = append(containers, &ContainerInfo{
			ID:     s.ID,
			Name:   name,
			Status: statusFromState(string(s.State)),
			Labels: s.Labels,
		})
	}

	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })
	return containers, nil
}

// Ensure DockerRuntime implements Runtime
var _ Runtime = (*DockerRuntime)(nil)
