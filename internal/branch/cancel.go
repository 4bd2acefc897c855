package branch

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/STRML/droid/internal/docker"
	"github.com/STRML/droid/internal/runner"
)

func (e *Engine) containerName() string {
	return e.Project + "-" + e.Name
}

// wrapForContainerLocked ensures the branch's container exists (creating
// it transparently if this is the first launch since a restart — spec.md
// §9 Open Question 2) and rewrites spec into a docker-exec invocation
// tagged with a per-launch nonce the cancellation protocol can match on
// unambiguously (spec.md §9 Open Question 3). Caller holds e.mu.
func (e *Engine) wrapForContainerLocked(ctx context.Context, spec runner.Spec) (runner.Spec, error) {
	name := e.containerName()
	info, exists, err := e.deps.Docker.FindContainerByName(ctx, name)
	if err != nil {
		return runner.Spec{}, fmt.Errorf("branch: checking container %s: %w", name, err)
	}
	if !exists || info.State != "running" {
		if err := e.rebuildContainerLocked(ctx); err != nil {
			return runner.Spec{}, err
		}
	}

	e.lastNonce++
	nonce := fmt.Sprintf("droid-op-%s-%s-%d", e.Project, e.Name, e.lastNonce)
	taggedArgv := []string{"sh", "-c", strings.Join(spec.Argv, " ") + " # " + nonce}

	dockerCfg := e.deps.Project.Docker
	cc := runner.ContainerContext{
		ContainerName: name,
		WorkspaceHost: e.workspaceDir,
		WorkspaceCtr:  dockerCfg.WorkspaceDir,
		TempHost:      e.tempDir,
		TempCtr:       dockerCfg.TempDir,
		DefaultDir:    dockerCfg.DefaultWorkingDir,
		ProjectEnv:    e.deps.Project.Env,
		DockerEnv:     dockerCfg.Env,
	}

	wrapped := runner.DockerWrap(runner.Spec{Argv: taggedArgv, Dir: spec.Dir, Env: spec.Env, Timeout: spec.Timeout}, cc)
	e.lastCancelPattern = regexp.QuoteMeta(nonce)
	return wrapped, nil
}

func (e *Engine) killLiveProcessLocked() {
	if e.proc == nil {
		return
	}
	if _, resolved := e.proc.ExitCode.Value(); resolved {
		return
	}
	if e.proc.Cmd != nil && e.proc.Cmd.Process != nil {
		_ = e.proc.Cmd.Process.Kill()
	}
}

// preemptLiveProcessLocked applies the full §4.2.2 cancellation protocol to
// whatever process is currently attached: the in-container PID lookup+kill
// first when Docker is enabled, then the host-side parent kill, then marks
// cancelled=true and persists the transition. A no-op if no process is live.
// Every caller that needs to get rid of a running process before doing
// something else — `cancel` itself, preemption ahead of a new launch,
// rebuild-container — goes through this so none of them can leave an
// orphaned in-container process behind (spec.md §3/§5: the container is
// single-writer, exactly one process at a time).
func (e *Engine) preemptLiveProcessLocked(ctx context.Context) {
	if e.proc == nil {
		return
	}
	if _, resolved := e.proc.ExitCode.Value(); resolved {
		return
	}

	e.setState(StateCancelling)

	if e.deps.Project.Docker != nil && !e.deps.Project.Docker.Disabled && e.lastCancelPattern != "" {
		e.cancelInContainerLocked(ctx)
	}

	e.killLiveProcessLocked()
	e.cancelled = true
	e.setState(StateIdle)
	e.flushConsole()
	e.persist(ctx)
}

// Cancel kills the live process, routing through the in-container PID
// lookup first when Docker is enabled (spec.md §4.2.1 `cancel`, §4.2.2
// cancellation protocol). Idempotent: cancelling an Idle branch is a no-op.
func (e *Engine) Cancel(ctx context.Context) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.proc == nil || e.state != StateRunning {
			return snapshotFromEngine(e), nil
		}

		e.preemptLiveProcessLocked(ctx)

		return snapshotFromEngine(e), nil
	})
}

// cancelInContainerLocked implements protocol step 1: find the
// in-container PID whose argv matches the launch's nonce, and kill it.
// Lookup failures are logged and execution continues to the host-side
// kill (the container's process may have already finished).
func (e *Engine) cancelInContainerLocked(ctx context.Context) {
	name := e.containerName()
	pid, err := e.deps.Docker.FindProcessByCommand(ctx, name, e.lastCancelPattern)
	if err != nil {
		log.Printf("[branch] %s/%s: container ps failed: %v", e.Project, e.Name, err)
		return
	}
	if pid == "" {
		return
	}
	if err := e.deps.Docker.KillProcess(ctx, name, pid); err != nil {
		log.Printf("[branch] %s/%s: killing container pid %s: %v", e.Project, e.Name, pid, err)
	}
}

// RebuildContainer removes the container, then builds (if the branch has
// a Dockerfile) or pulls the configured image, then creates and starts a
// fresh one (spec.md §4.2.1 `rebuild-container`).
func (e *Engine) RebuildContainer(ctx context.Context) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.deps.Project.Docker == nil || e.deps.Project.Docker.Disabled {
			log.Printf("[branch] %s/%s: docker disabled, rebuild-container is a no-op", e.Project, e.Name)
			return snapshotFromEngine(e), nil
		}

		e.preemptLiveProcessLocked(ctx)
		e.setState(StatePreparing)
		if err := e.rebuildContainerLocked(ctx); err != nil {
			e.setState(StateIdle)
			return Snapshot{}, err
		}
		e.setState(StateIdle)
		e.persist(ctx)
		return snapshotFromEngine(e), nil
	})
}

func (e *Engine) rebuildContainerLocked(ctx context.Context) error {
	name := e.containerName()
	dockerCfg := e.deps.Project.Docker

	if _, exists, err := e.deps.Docker.FindContainerByName(ctx, name); err == nil && exists {
		if err := e.deps.Docker.RemoveContainer(ctx, name); err != nil {
			return fmt.Errorf("branch: removing container %s: %w", name, err)
		}
	}

	dockerfilePath := e.workspaceDir + "/Dockerfile"
	if _, statErr := os.Stat(dockerfilePath); statErr == nil {
		if err := e.deps.Docker.BuildImage(ctx, e.workspaceDir, dockerCfg.Image); err != nil {
			return fmt.Errorf("branch: building image for %s: %w", name, err)
		}
	} else if err := e.deps.Docker.PullImage(ctx, dockerCfg.Image); err != nil {
		return fmt.Errorf("branch: pulling image for %s: %w", name, err)
	}

	volumes := []docker.Volume{
		{HostPath: e.workspaceDir, ContainerPath: dockerCfg.WorkspaceDir},
		{HostPath: e.tempDir, ContainerPath: dockerCfg.TempDir},
	}
	for host, ctr := range dockerCfg.ExtraVolumes {
		volumes = append(volumes, docker.Volume{HostPath: host, ContainerPath: ctr})
	}

	id, err := e.deps.Docker.CreateContainer(ctx, &docker.ContainerConfig{
		Name:    name,
		Image:   dockerCfg.Image,
		Shell:   dockerCfg.Shell,
		Env:     dockerCfg.Env,
		Volumes: volumes,
	})
	if err != nil {
		return fmt.Errorf("branch: creating container %s: %w", name, err)
	}
	if err := e.deps.Docker.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("branch: starting container %s: %w", name, err)
	}
	return nil
}
