// Package injection provides types and interfaces for sandbox injection
// contributions. Sources such as the workspace, the API proxy, and the
// secret store implement contribution interfaces to provide mounts and
// environment variables to a backend.
package injection

// Mount represents a filesystem mount for a container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// EnvVar represents an environment variable to set in the sandbox.
type EnvVar struct {
	Name  string
	Value string
}

// String renders the variable as KEY=VALUE.
func (e EnvVar) String() string {
	return e.Name + "=" + e.Value
}

// MountRequest provides context for mount contributions.
type MountRequest struct {
	IsolatedRoot string // host path of the shadow root
	Workdir      string // path of the working directory inside the sandbox
}

// EnvVarRequest provides context for env var contributions.
type EnvVarRequest struct {
	ResourceName string
	ProxyURL     string
}
