package runtime

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ExecHook simulates a command inside a mock container. It may write to the
// container's bind mounts to stand in for an agent editing files.
type ExecHook func(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error)

// MockRuntime is a mock implementation of Runtime for testing
type MockRuntime struct {
	mu sync.RWMutex

	// Containers tracks the state of mock containers
	Containers map[string]*ContainerInfo

	// Created records the options each live container was created with
	Created map[string]CreateOptions

	// ExecResults maps container names to predefined exec results
	ExecResults map[string]*ExecResult

	// ExecHook, when set, runs instead of returning ExecResults
	ExecHook ExecHook

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	nextID int
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockRuntime creates a new mock runtime
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Containers:  make(map[string]*ContainerInfo),
		Created:     make(map[string]CreateOptions),
		ExecResults: make(map[string]*ExecResult),
		Errors:      make(map[string]error),
		CallLog:     make([]MockCall, 0),
	}
}

func (m *MockRuntime) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockRuntime) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// ClearError removes an injected error
func (m *MockRuntime) ClearError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Errors, operation)
}

// SetExecResult sets the result for exec operations on a container
func (m *MockRuntime) SetExecResult(name string, result *ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecResults[name] = result
}

// SetExecHook installs a hook that simulates commands
func (m *MockRuntime) SetExecHook(hook ExecHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecHook = hook
}

// AddContainer adds a container to the mock
func (m *MockRuntime) AddContainer(name string, status ContainerStatus, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.Containers[name] = &ContainerInfo{
		ID:     fmt.Sprintf("mock-%d", m.nextID),
		Name:   name,
		Status: status,
		Labels: labels,
	}
}

// GetCalls returns all recorded calls
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Reset clears all state
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers = make(map[string]*ContainerInfo)
	m.Created = make(map[string]CreateOptions)
	m.ExecResults = make(map[string]*ExecResult)
	m.ExecHook = nil
	m.Errors = make(map[string]error)
	m.CallLog = make([]MockCall, 0)
}

// Name returns the runtime identifier
func (m *MockRuntime) Name() string {
	return "mock"
}

// Create creates a new container
func (m *MockRuntime) Create(ctx context.Context, opts CreateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Create", opts)

	if err, ok := m.Errors["Create"]; ok {
		return err
	}
	if _, exists := m.Containers[opts.Name]; exists {
		return fmt.Errorf("container name already in use: %s", opts.Name)
	}

	status := StatusStopped
	if opts.Start {
		status = StatusRunning
	}

	labels := make(map[string]string, len(opts.Labels)+1)
	for k, v := range opts.Labels {
		labels[k] = v
	}
	labels[LabelManaged] = "true"

	m.nextID++
	m.Containers[opts.Name] = &ContainerInfo{
		ID:     fmt.Sprintf("mock-%d", m.nextID),
		Name:   opts.Name,
		Status: status,
		Labels: labels,
	}
	m.Created[opts.Name] = opts

	return nil
}

// Start starts an existing container
func (m *MockRuntime) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Start", name)

	if err, ok := m.Errors["Start"]; ok {
		return err
	}

	if container, ok := m.Containers[name]; ok {
		container.Status = StatusRunning
		return nil
	}

	return fmt.Errorf("container not found: %s", name)
}

// Stop stops a running container
func (m *MockRuntime) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop", name)

	if err, ok := m.Errors["Stop"]; ok {
		return err
	}

	if container, ok := m.Containers[name]; ok {
		container.Status = StatusStopped
		return nil
	}

	return fmt.Errorf("container not found: %s", name)
}

// Destroy stops and removes a container
func (m *MockRuntime) Destroy(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Destroy", name)

	if err, ok := m.Errors["Destroy"]; ok {
		return err
	}

	delete(m.Containers, name)
	delete(m.Created, name)
	return nil
}

// Status returns detailed status of a container
func (m *MockRuntime) Status(ctx context.Context, name string) (*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Status", name)

	if err, ok := m.Errors["Status"]; ok {
		return nil, err
	}

	if container, ok := m.Containers[name]; ok {
		info := *container
		return &info, nil
	}

	return &ContainerInfo{Name: name, Status: StatusNotFound}, nil
}

// Exec executes a command inside a container
func (m *MockRuntime) Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error) {
	hook, err := m.beginExec("Exec", name, command, opts)
	if err != nil {
		return nil, err
	}
	return hook(ctx, name, command, opts)
}

// ExecStart starts a command inside a container. The hook runs in its own
// goroutine so callers can interrupt it while they wait.
func (m *MockRuntime) ExecStart(ctx context.Context, name string, command []string, opts ExecOptions) (ExecSession, error) {
	hook, err := m.beginExec("ExecStart", name, command, opts)
	if err != nil {
		return nil, err
	}

	s := &mockExec{done: make(chan struct{})}
	go func() {
		defer close(s.done)
		result, err := hook(ctx, name, command, opts)
		if err != nil {
			s.err = err
			s.code = 1
			return
		}
		if opts.Stdout != nil && result.Stdout != "" {
			_, _ = io.WriteString(opts.Stdout, result.Stdout)
		}
		if opts.Stderr != nil && result.Stderr != "" {
			_, _ = io.WriteString(opts.Stderr, result.Stderr)
		}
		s.code = result.ExitCode
	}()
	return s, nil
}

func (m *MockRuntime) beginExec(method, name string, command []string, opts ExecOptions) (ExecHook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(method, name, command, opts)

	if err, ok := m.Errors[method]; ok {
		return nil, err
	}
	container, ok := m.Containers[name]
	if !ok || container.Status != StatusRunning {
		return nil, fmt.Errorf("container %s is not running", name)
	}

	if m.ExecHook != nil {
		return m.ExecHook, nil
	}

	result, ok := m.ExecResults[name]
	if !ok {
		result = &ExecResult{}
	}
	return func(context.Context, string, []string, ExecOptions) (*ExecResult, error) {
		r := *result
		return &r, nil
	}, nil
}

type mockExec struct {
	done chan struct{}
	code int
	err  error
}

func (s *mockExec) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 1, ctx.Err()
	case <-s.done:
		return s.code, s.err
	}
}

func (s *mockExec) Close() error {
	return nil
}

// List returns all containers managed by this runtime
func (m *MockRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("List")

	if err, ok := m.Errors["List"]; ok {
		return nil, err
	}

	var containers []*ContainerInfo
	for _, container := range m.Containers {
		if container.Labels[LabelManaged] != "true" {
			continue
		}
		info := *container
		containers = append(containers, &info)
	}
	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })

	return containers, nil
}

// Ensure MockRuntime implements Runtime
var _ Runtime = (*MockRuntime)(nil)
