package docker

import "context"

// DockerClient defines the Docker operations the branch engine and
// registry depend on. Mocked in tests via MockClient.
type DockerClient interface {
	// Client lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Container lifecycle
	CreateContainer(ctx context.Context, cfg *ContainerConfig) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
	PauseContainer(ctx context.Context, containerID string) error
	UnpauseContainer(ctx context.Context, containerID string) error
	GetContainerState(ctx context.Context, containerID string) (string, error)
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)

	// Exec
	ExecInContainer(ctx context.Context, containerID string, cmd []string) (string, error)
	FindProcessByCommand(ctx context.Context, containerID, pattern string) (pid string, err error)
	KillProcess(ctx context.Context, containerID, pid string) error

	// Fleet management
	FindContainerByName(ctx context.Context, name string) (ContainerInfo, bool, error)
	ListBranchContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error)

	// Image operations
	ImageExists(ctx context.Context, imageName string) (bool, error)
	BuildImage(ctx context.Context, dockerfileDir, tag string) error
	PullImage(ctx context.Context, imageName string) error
}

// Verify Client implements DockerClient at compile time
var _ DockerClient = (*Client)(nil)
