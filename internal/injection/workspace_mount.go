package injection

import (
	"context"
)

// WorkspaceMountContributor mounts the shadow root as the container's
// working directory.
type WorkspaceMountContributor struct{}

// NewWorkspaceMountContributor creates a new workspace mount contributor.
func NewWorkspaceMountContributor() *WorkspaceMountContributor {
	return &WorkspaceMountContributor{}
}

// ContributeMounts returns the workspace mount.
func (w *WorkspaceMountContributor) ContributeMounts(ctx context.Context, req *MountRequest) ([]Mount, error) {
	if req == nil || req.IsolatedRoot == "" {
		return nil, nil
	}
	containerPath := req.Workdir
	if containerPath == "" {
		containerPath = "/workspace"
	}
	return []Mount{{
		HostPath:      req.IsolatedRoot,
		ContainerPath: containerPath,
	}}, nil
}

// Ensure WorkspaceMountContributor implements MountContributor
var _ MountContributor = (*WorkspaceMountContributor)(nil)
