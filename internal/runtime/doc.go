// Package runtime provides the container engine interface used by the
// docker sandbox backend.
//
// DockerRuntime talks to the Docker Engine API through the official client.
// Podman is supported through its Docker-compatible socket. Detect picks the
// socket: DOCKER_HOST first, then the well-known Docker and Podman locations.
//
// # Runtime Interface
//
// The Runtime interface defines the operations the backend needs:
//   - Create, Start, Stop, Destroy: Container lifecycle
//   - Status: Container state queries
//   - Exec, ExecStart: Captured and streamed command execution
//   - List: Enumerate containers carrying the vibekit label
//
// # Mock Runtime
//
// For testing, use NewMockRuntime() to create a mock implementation that can
// be configured with expected responses, or with an ExecHook that edits the
// bind-mounted directory to simulate an agent.
package runtime
