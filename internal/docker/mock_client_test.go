package docker

import (
	"context"
	"testing"
)

// Unit tests using MockClient - these run instantly without Docker

func TestMockClient_ContainerLifecycle(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	cfg := &ContainerConfig{
		Name:  "test-container",
		Image: "alpine:latest",
		Volumes: []Volume{
			{HostPath: "/tmp/ws", ContainerPath: "/workspace"},
		},
	}

	id, err := client.CreateContainer(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateContainer() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateContainer() returned empty ID")
	}

	state, err := client.GetContainerState(ctx, id)
	if err != nil {
		t.Fatalf("GetContainerState() error = %v", err)
	}
	if state != "created" {
		t.Errorf("State = %q, want 'created'", state)
	}

	if err := client.StartContainer(ctx, id); err != nil {
		t.Fatalf("StartContainer() error = %v", err)
	}

	running, err := client.IsContainerRunning(ctx, id)
	if err != nil {
		t.Fatalf("IsContainerRunning() error = %v", err)
	}
	if !running {
		t.Error("Container should be running")
	}

	if err := client.StopContainer(ctx, id); err != nil {
		t.Fatalf("StopContainer() error = %v", err)
	}

	running, _ = client.IsContainerRunning(ctx, id)
	if running {
		t.Error("Container should not be running")
	}

	if err := client.RemoveContainer(ctx, id); err != nil {
		t.Fatalf("RemoveContainer() error = %v", err)
	}

	_, err = client.GetContainerState(ctx, id)
	if err == nil {
		t.Error("Container should not exist after removal")
	}
}

func TestMockClient_PauseUnpause(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	cfg := &ContainerConfig{Name: "pause-test", Image: "alpine"}
	id, _ := client.CreateContainer(ctx, cfg)
	_ = client.StartContainer(ctx, id)

	if err := client.PauseContainer(ctx, id); err != nil {
		t.Fatalf("PauseContainer() error = %v", err)
	}

	state, _ := client.GetContainerState(ctx, id)
	if state != "paused" {
		t.Errorf("State = %q, want 'paused'", state)
	}

	if err := client.UnpauseContainer(ctx, id); err != nil {
		t.Fatalf("UnpauseContainer() error = %v", err)
	}

	state, _ = client.GetContainerState(ctx, id)
	if state != "running" {
		t.Errorf("State = %q, want 'running'", state)
	}
}

func TestMockClient_ExecInContainer(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	cfg := &ContainerConfig{Name: "exec-test", Image: "alpine"}
	id, _ := client.CreateContainer(ctx, cfg)
	_ = client.StartContainer(ctx, id)

	output, err := client.ExecInContainer(ctx, id, []string{"echo", "hello"})
	if err != nil {
		t.Fatalf("ExecInContainer() error = %v", err)
	}
	if output != "hello" {
		t.Errorf("Output = %q, want 'hello'", output)
	}
}

func TestMockClient_FindProcessByCommand(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	cfg := &ContainerConfig{Name: "find-test", Image: "alpine"}
	id, _ := client.CreateContainer(ctx, cfg)
	_ = client.StartContainer(ctx, id)

	client.FindProcessFn = func(ctx context.Context, containerID, pattern string) (string, error) {
		if pattern == "make update" {
			return "4242", nil
		}
		return "", nil
	}

	pid, err := client.FindProcessByCommand(ctx, id, "make update")
	if err != nil {
		t.Fatalf("FindProcessByCommand() error = %v", err)
	}
	if pid != "4242" {
		t.Errorf("pid = %q, want 4242", pid)
	}

	if err := client.KillProcess(ctx, id, pid); err != nil {
		t.Errorf("KillProcess() error = %v", err)
	}
}

func TestMockClient_ListBranchContainers(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	names := []string{"proj-a", "proj-b", "proj-c", "other-x"}
	for _, name := range names {
		cfg := &ContainerConfig{Name: name, Image: "alpine"}
		id, _ := client.CreateContainer(ctx, cfg)
		_ = client.StartContainer(ctx, id)
	}

	containers, err := client.ListBranchContainers(ctx, "proj-")
	if err != nil {
		t.Fatalf("ListBranchContainers() error = %v", err)
	}
	if len(containers) != 3 {
		t.Errorf("Got %d containers, want 3 (excluding other-x)", len(containers))
	}
	for _, c := range containers {
		if c.Name == "other-x" {
			t.Errorf("ListBranchContainers() leaked container from a different project prefix")
		}
	}
}

func TestMockClient_FindContainerByName(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	cfg := &ContainerConfig{Name: "myproject-mybranch", Image: "alpine"}
	id, _ := client.CreateContainer(ctx, cfg)
	_ = client.StartContainer(ctx, id)

	info, found, err := client.FindContainerByName(ctx, "myproject-mybranch")
	if err != nil {
		t.Fatalf("FindContainerByName() error = %v", err)
	}
	if !found {
		t.Fatal("expected to find the container")
	}
	if info.Name != "myproject-mybranch" {
		t.Errorf("Name = %q, want myproject-mybranch", info.Name)
	}

	_, found, err = client.FindContainerByName(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("FindContainerByName() error = %v", err)
	}
	if found {
		t.Error("should not have found a container")
	}
}

func TestMockClient_ImageExists(t *testing.T) {
	t.Parallel()

	client := NewMockClient()
	ctx := context.Background()

	exists, err := client.ImageExists(ctx, "alpine:latest")
	if err != nil {
		t.Fatalf("ImageExists() error = %v", err)
	}
	if !exists {
		t.Error("Default should return true")
	}

	client.ImageExistsFn = func(ctx context.Context, imageName string) (bool, error) {
		return imageName == "exists:latest", nil
	}

	exists, _ = client.ImageExists(ctx, "exists:latest")
	if !exists {
		t.Error("Should exist")
	}

	exists, _ = client.ImageExists(ctx, "notexists:latest")
	if exists {
		t.Error("Should not exist")
	}
}
