package docker

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a mock implementation of DockerClient for testing the
// branch engine and registry without a real Docker daemon.
type MockClient struct {
	mu         sync.Mutex
	containers map[string]*mockContainer

	PingErr           error
	CreateContainerFn func(ctx context.Context, cfg *ContainerConfig) (string, error)
	ImageExistsFn     func(ctx context.Context, imageName string) (bool, error)
	FindProcessFn     func(ctx context.Context, containerID, pattern string) (string, error)
}

type mockContainer struct {
	ID     string
	Name   string
	State  string // "created", "running", "paused", "exited"
	Config *ContainerConfig
}

// NewMockClient creates a new mock Docker client for testing.
func NewMockClient() *MockClient {
	return &MockClient{
		containers: make(map[string]*mockContainer),
	}
}

func (m *MockClient) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockClient) Close() error {
	return nil
}

func (m *MockClient) CreateContainer(ctx context.Context, cfg *ContainerConfig) (string, error) {
	if m.CreateContainerFn != nil {
		return m.CreateContainerFn(ctx, cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := "mock-" + cfg.Name
	m.containers[id] = &mockContainer{ID: id, Name: cfg.Name, State: "created", Config: cfg}
	return id, nil
}

func (m *MockClient) StartContainer(ctx context.Context, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[containerID]; ok {
		c.State = "running"
	}
	return nil
}

func (m *MockClient) StopContainer(ctx context.Context, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[containerID]; ok {
		c.State = "exited"
	}
	return nil
}

func (m *MockClient) RemoveContainer(ctx context.Context, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.containers, containerID)
	return nil
}

func (m *MockClient) PauseContainer(ctx context.Context, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[containerID]; ok {
		c.State = "paused"
	}
	return nil
}

func (m *MockClient) UnpauseContainer(ctx context.Context, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[containerID]; ok {
		c.State = "running"
	}
	return nil
}

func (m *MockClient) GetContainerState(ctx context.Context, containerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[containerID]; ok {
		return c.State, nil
	}
	return "", &containerNotFoundError{containerID}
}

func (m *MockClient) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	state, err := m.GetContainerState(ctx, containerID)
	if err != nil {
		return false, err
	}
	return state == "running", nil
}

func (m *MockClient) ExecInContainer(ctx context.Context, containerID string, cmd []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[containerID]; !ok {
		return "", &containerNotFoundError{containerID}
	}
	if len(cmd) > 0 {
		switch cmd[0] {
		case "echo":
			if len(cmd) > 1 {
				return cmd[1], nil
			}
		case "which":
			return "/usr/bin/" + cmd[1], nil
		}
	}
	return "mock output", nil
}

func (m *MockClient) FindProcessByCommand(ctx context.Context, containerID, pattern string) (string, error) {
	if m.FindProcessFn != nil {
		return m.FindProcessFn(ctx, containerID, pattern)
	}
	return "", nil
}

func (m *MockClient) KillProcess(ctx context.Context, containerID, pid string) error {
	return nil
}

func (m *MockClient) FindContainerByName(ctx context.Context, name string) (ContainerInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.containers {
		if c.Name == name {
			return ContainerInfo{ID: c.ID, Name: c.Name, State: c.State}, true, nil
		}
	}
	return ContainerInfo{}, false, nil
}

func (m *MockClient) ListBranchContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []ContainerInfo
	for id, c := range m.containers {
		if !strings.HasPrefix(c.Name, namePrefix) {
			continue
		}
		result = append(result, ContainerInfo{ID: id, Name: c.Name, State: c.State})
	}
	return result, nil
}

func (m *MockClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	if m.ImageExistsFn != nil {
		return m.ImageExistsFn(ctx, imageName)
	}
	return true, nil
}

func (m *MockClient) BuildImage(ctx context.Context, dockerfileDir, tag string) error {
	return nil
}

func (m *MockClient) PullImage(ctx context.Context, imageName string) error {
	return nil
}

// containerNotFoundError for mock
type containerNotFoundError struct {
	id string
}

func (e *containerNotFoundError) Error() string {
	return "container not found: " + e.id
}

// Verify MockClient implements DockerClient
var _ DockerClient = (*MockClient)(nil)
