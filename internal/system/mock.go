package system

import (
	"sync"
)

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	mu       sync.Mutex
	commands []Command

	// OnStart, when set, returns the process for each started command.
	// Without it every command exits immediately with status 0.
	OnStart func(cmd Command) *MockProcess

	// StartErr is returned by Start when set
	StartErr error
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

func (m *MockExecutor) Start(cmd Command) (Process, error) {
	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	onStart, startErr := m.OnStart, m.StartErr
	m.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}
	if onStart != nil {
		return onStart(cmd), nil
	}
	p := NewMockProcess()
	p.Exit(0)
	return p, nil
}

// Commands returns all started commands.
func (m *MockExecutor) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// MockProcess is a process that runs until Exit, Interrupt or Kill.
type MockProcess struct {
	// IgnoreInterrupt makes Interrupt a no-op, like an agent that
	// traps SIGINT and keeps running.
	IgnoreInterrupt bool

	mu         sync.Mutex
	done       chan struct{}
	exited     bool
	code       int
	waitErr    error
	interrupts int
	kills      int
}

// NewMockProcess creates a running MockProcess.
func NewMockProcess() *MockProcess {
	return &MockProcess{done: make(chan struct{})}
}

// Exit finishes the process with the given code. Later calls are ignored.
func (p *MockProcess) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.done)
}

// Fail finishes the process without a readable exit status, like a
// command whose exec stream was lost. Wait returns -1 and err.
func (p *MockProcess) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = -1
	p.waitErr = err
	close(p.done)
}

func (p *MockProcess) Wait() (int, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.waitErr
}

func (p *MockProcess) Interrupt() error {
	p.mu.Lock()
	p.interrupts++
	ignore := p.IgnoreInterrupt
	p.mu.Unlock()

	if !ignore {
		p.Exit(130)
	}
	return nil
}

func (p *MockProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()

	p.Exit(137)
	return nil
}

// Signals returns how many times the process was interrupted and killed.
func (p *MockProcess) Signals() (interrupts, kills int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupts, p.kills
}

// Ensure mocks implement interfaces
var (
	_ Executor = (*MockExecutor)(nil)
	_ Process  = (*MockProcess)(nil)
)
