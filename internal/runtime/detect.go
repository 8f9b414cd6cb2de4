package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"

	"github.com/Ramtinhoss/vibekit/internal/logging"
)

// Engine identifies which container engine serves the API socket
type Engine = string

const (
	EngineDocker Engine = "docker"
	EnginePodman Engine = "podman"
)

// Endpoint is a container engine API location. An empty Host means the
// client's environment defaults apply.
type Endpoint struct {
	Engine Engine
	Host   string
}

// socketCandidate is an API socket Detect tries, in preference order.
type socketCandidate struct {
	engine Engine
	path   string
}

// Detect determines which container engine is reachable on the system.
// DOCKER_HOST always wins; otherwise the Docker socket is preferred over a
// rootless Podman socket.
func Detect() (Endpoint, error) {
	logging.Debug("detecting container runtime", "os", goruntime.GOOS)
	return detect(os.Getenv, candidateSockets(os.Getenv))
}

func detect(getenv func(string) string, candidates []socketCandidate) (Endpoint, error) {
	if host := getenv("DOCKER_HOST"); host != "" {
		logging.Debug("using DOCKER_HOST", "host", host)
		return Endpoint{Engine: EngineDocker}, nil
	}

	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tried = append(tried, c.path)
		info, err := os.Stat(c.path)
		if err != nil || info.Mode()&os.ModeSocket == 0 {
			continue
		}
		logging.Debug("detected container engine socket", "engine", c.engine, "path", c.path)
		return Endpoint{Engine: c.engine, Host: "unix://" + c.path}, nil
	}

	return Endpoint{}, fmt.Errorf("no container engine socket found (tried: %v); set DOCKER_HOST", tried)
}

func candidateSockets(getenv func(string) string) []socketCandidate {
	candidates := []socketCandidate{
		{EngineDocker, "/var/run/docker.sock"},
	}

	if home := getenv("HOME"); home != "" {
		// Docker Desktop on macOS and rootless docker on Linux
		candidates = append(candidates, socketCandidate{EngineDocker, filepath.Join(home, ".docker", "run", "docker.sock")})
	}

	if xdg := getenv("XDG_RUNTIME_DIR"); xdg != "" {
		candidates = append(candidates,
			socketCandidate{EngineDocker, filepath.Join(xdg, "docker.sock")},
			socketCandidate{EnginePodman, filepath.Join(xdg, "podman", "podman.sock")},
		)
	}

	candidates = append(candidates, socketCandidate{EnginePodman, "/run/podman/podman.sock"})
	return candidates
}
