package system

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// osExecutor implements Executor using real OS processes. Non-interactive
// processes are placed in their own process group so that signals reach
// the whole tree the agent spawns.
type osExecutor struct{}

func (e *osExecutor) Start(c Command) (Process, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if !c.Interactive {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProcess{cmd: cmd, group: !c.Interactive}, nil
}

type osProcess struct {
	cmd   *exec.Cmd
	group bool

	once sync.Once
	code int
	err  error
}

func (p *osProcess) Wait() (int, error) {
	p.once.Do(func() {
		p.code, p.err = exitStatus(p.cmd.Wait())
	})
	return p.code, p.err
}

func (p *osProcess) Interrupt() error {
	return p.signalGroup(syscall.SIGINT)
}

func (p *osProcess) Kill() error {
	return p.signalGroup(syscall.SIGKILL)
}

func (p *osProcess) signalGroup(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	if p.group {
		pid = -pid
	}
	err := syscall.Kill(pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// exitStatus converts the result of Wait into an exit code. Only failures
// to wait at all are returned as errors.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, err
	}

	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}

// Environ returns the host environment with overrides applied. Overrides
// replace host variables of the same name.
func Environ(overrides []string) []string {
	return MergeEnv(os.Environ(), overrides)
}
