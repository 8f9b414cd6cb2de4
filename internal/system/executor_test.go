package system

import (
	"bytes"
	"errors"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestOSExecutor_ExitCodeAndOutput(t *testing.T) {
	requireShell(t)

	var stdout bytes.Buffer
	p, err := DefaultExecutor().Start(Command{
		Argv:   []string{"sh", "-c", "echo $GREETING; exit 3"},
		Env:    []string{"GREETING=hello"},
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if strings.TrimSpace(stdout.String()) != "hello" {
		t.Errorf("stdout = %q, want hello", stdout.String())
	}

	// Wait is repeatable
	if again, _ := p.Wait(); again != 3 {
		t.Errorf("second Wait() = %d, want 3", again)
	}
}

func TestOSExecutor_WorkingDirectory(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	var stdout bytes.Buffer
	p, err := DefaultExecutor().Start(Command{Argv: []string{"pwd", "-P"}, Dir: dir, Stdout: &stdout})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := p.Wait(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(strings.TrimSpace(stdout.String()), "/"+filepath.Base(dir)) {
		t.Errorf("pwd = %q, want %q", stdout.String(), dir)
	}
}

func TestOSExecutor_KillReportsSignal(t *testing.T) {
	requireShell(t)

	p, err := DefaultExecutor().Start(Command{Argv: []string{"sh", "-c", "trap '' INT; sleep 30"}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Give the shell a moment to install its trap.
	time.Sleep(100 * time.Millisecond)
	if err := p.Interrupt(); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 137 {
		t.Errorf("exit code = %d, want 137", code)
	}
}

func TestOSExecutor_EmptyCommand(t *testing.T) {
	if _, err := DefaultExecutor().Start(Command{}); err == nil {
		t.Error("Start() with no argv should fail")
	}
}

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides []string
		want      []string
	}{
		{
			name:      "override replaces in place",
			base:      []string{"A=1", "B=2"},
			overrides: []string{"A=9"},
			want:      []string{"A=9", "B=2"},
		},
		{
			name:      "new keys appended",
			base:      []string{"A=1"},
			overrides: []string{"C=3"},
			want:      []string{"A=1", "C=3"},
		},
		{
			name:      "value with equals sign",
			base:      nil,
			overrides: []string{"URL=http://x/?a=b"},
			want:      []string{"URL=http://x/?a=b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeEnv(tt.base, tt.overrides); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMockProcess(t *testing.T) {
	p := NewMockProcess()
	p.IgnoreInterrupt = true

	_ = p.Interrupt()
	select {
	case <-p.done:
		t.Fatal("process should ignore interrupt")
	default:
	}

	_ = p.Kill()
	code, _ := p.Wait()
	if code != 137 {
		t.Errorf("exit code = %d, want 137", code)
	}
	if i, k := p.Signals(); i != 1 || k != 1 {
		t.Errorf("Signals() = %d, %d, want 1, 1", i, k)
	}
}

func TestMockProcess_Fail(t *testing.T) {
	p := NewMockProcess()
	lost := errors.New("stream closed")
	p.Fail(lost)
	p.Exit(0)

	code, err := p.Wait()
	if !errors.Is(err, lost) {
		t.Errorf("Wait() error = %v, want %v", err, lost)
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestMockExecutor_Default(t *testing.T) {
	m := NewMockExecutor()
	p, err := m.Start(Command{Argv: []string{"agent"}})
	if err != nil {
		t.Fatal(err)
	}
	if code, _ := p.Wait(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if len(m.Commands()) != 1 {
		t.Errorf("recorded %d commands, want 1", len(m.Commands()))
	}
}
