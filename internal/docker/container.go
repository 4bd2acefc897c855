package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
)

// Volume is a single host-path:container-path bind mount, optionally
// read-only. Used both for the workspace/temp mounts and for a project's
// configured extra volumes.
type Volume struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ContainerConfig holds everything needed to create a branch's container.
// Name is always "{project}-{branch}" per the external interface contract.
type ContainerConfig struct {
	Name    string
	Image   string
	Shell   []string // command run as the container's entrypoint, e.g. ["sleep", "infinity"]
	Env     map[string]string
	Volumes []Volume
}

// CreateContainer creates a new container but doesn't start it.
func (c *Client) CreateContainer(ctx context.Context, cfg *ContainerConfig) (string, error) {
	shell := cfg.Shell
	if len(shell) == 0 {
		shell = []string{"sleep", "infinity"}
	}

	var env []string
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image: cfg.Image,
		Cmd:   shell,
		Tty:   true,
		Env:   env,
	}

	var mounts []mount.Mount
	for _, v := range cfg.Volumes {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   v.HostPath,
			Target:   v.ContainerPath,
			ReadOnly: v.ReadOnly,
		})
	}

	hostCfg := &container.HostConfig{
		Mounts: mounts,
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// StartContainer starts a created container.
func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	return c.cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

// StopContainer stops a running container.
func (c *Client) StopContainer(ctx context.Context, containerID string) error {
	timeout := 10 // seconds
	return c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
}

// RemoveContainer removes a container.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	return c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// PauseContainer pauses a running container. Used for fleetwide soft-cancel:
// in-progress processes are frozen but retained.
func (c *Client) PauseContainer(ctx context.Context, containerID string) error {
	return c.cli.ContainerPause(ctx, containerID)
}

// UnpauseContainer unpauses a paused container.
func (c *Client) UnpauseContainer(ctx context.Context, containerID string) error {
	return c.cli.ContainerUnpause(ctx, containerID)
}

// GetContainerState returns the state of a container (running, paused, exited, etc.)
func (c *Client) GetContainerState(ctx context.Context, containerID string) (string, error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	return info.State.Status, nil
}

// IsContainerRunning checks if a container is running.
func (c *Client) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	return info.State.Running, nil
}

// ExecInContainer runs a command in a container and returns combined output.
func (c *Client) ExecInContainer(ctx context.Context, containerID string, cmd []string) (string, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := c.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return "", err
	}

	resp, err := c.cli.ContainerExecAttach(ctx, execID.ID, container.ExecStartOptions{})
	if err != nil {
		return "", err
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&stdout, &stderr, resp.Reader)
	if err != nil && err != io.EOF {
		return "", err
	}

	return stdout.String() + stderr.String(), nil
}

// psLineRegex matches a single line of `ps -o pid,args` output: leading
// whitespace, a numeric PID, whitespace, then the rest of the line as args.
var psLineRegex = regexp.MustCompile(`^\s*(\d+)\s+(.*)$`)

// FindProcessByCommand runs `ps -o pid,args` inside the container and
// returns the PID of the first process line whose args match pattern.
// Implements the cancellation protocol's "docker exec ps, regex match,
// extract PID" step.
func (c *Client) FindProcessByCommand(ctx context.Context, containerID, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid process pattern: %w", err)
	}

	out, err := c.ExecInContainer(ctx, containerID, []string{"ps", "-o", "pid,args"})
	if err != nil {
		return "", fmt.Errorf("docker exec ps failed: %w", err)
	}

	for _, line := range strings.Split(out, "\n") {
		m := psLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pid, args := m[1], m[2]
		if re.MatchString(args) {
			return pid, nil
		}
	}
	return "", nil
}

// KillProcess sends SIGTERM to a PID inside the container.
func (c *Client) KillProcess(ctx context.Context, containerID, pid string) error {
	if _, err := strconv.Atoi(pid); err != nil {
		return fmt.Errorf("invalid pid %q: %w", pid, err)
	}
	execCfg := container.ExecOptions{
		Cmd:          []string{"kill", pid},
		AttachStdout: true,
		AttachStderr: true,
	}
	execID, err := c.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return err
	}
	return c.cli.ContainerExecStart(ctx, execID.ID, container.ExecStartOptions{})
}

// ContainerInfo holds basic info about a container.
type ContainerInfo struct {
	ID      string
	Name    string
	State   string
	Created time.Time
}

// FindContainerByName looks up a single container by its exact name
// ("{project}-{branch}"). The second return value is false if no such
// container exists.
func (c *Client) FindContainerByName(ctx context.Context, name string) (ContainerInfo, bool, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", "^/"+name+"$")

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return ContainerInfo{}, false, err
	}
	for _, ct := range containers {
		n := ""
		if len(ct.Names) > 0 {
			n = strings.TrimPrefix(ct.Names[0], "/")
		}
		if n == name {
			return ContainerInfo{ID: ct.ID, Name: n, State: ct.State, Created: time.Unix(ct.Created, 0)}, true, nil
		}
	}
	return ContainerInfo{}, false, nil
}

// ListBranchContainers lists all containers whose name starts with
// namePrefix, used by the registry for fleetwide pause/remove.
func (c *Client) ListBranchContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", namePrefix)

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, err
	}

	var result []ContainerInfo
	for _, ct := range containers {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		// Docker's name filter matches anywhere in the name, not only at the start.
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		result = append(result, ContainerInfo{
			ID:      ct.ID,
			Name:    name,
			State:   ct.State,
			Created: time.Unix(ct.Created, 0),
		})
	}
	return result, nil
}
