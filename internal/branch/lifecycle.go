package branch

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/STRML/droid/internal/runner"
)

// CheckoutRemote clones an existing remote branch into the workspace,
// ignores the transient credentials file, configures identity, and
// fetches (spec.md §4.2.1 `checkout-remote`). On any failure the partial
// workspace directory is removed and the branch is left Idle.
func (e *Engine) CheckoutRemote(ctx context.Context, branchName string) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.setState(StatePreparing)
		if err := e.checkoutRemoteLocked(ctx, branchName); err != nil {
			e.cleanupWorkspaceLocked()
			e.setState(StateIdle)
			return Snapshot{}, err
		}
		e.setState(StateIdle)
		e.persist(ctx)
		return snapshotFromEngine(e), nil
	})
}

func (e *Engine) checkoutRemoteLocked(ctx context.Context, branchName string) error {
	if err := ensureDir(e.workspaceDir); err != nil {
		return fmt.Errorf("branch: creating workspace: %w", err)
	}
	if err := e.deps.Git.Clone(ctx, e.deps.GitRepoURL, branchName); err != nil {
		return fmt.Errorf("branch: cloning %s: %w", branchName, err)
	}
	if err := e.deps.Git.AddGitignoreEntry(gitCredentialsFile); err != nil {
		return fmt.Errorf("branch: patching .gitignore: %w", err)
	}
	if err := e.deps.Git.ConfigureIdentity(ctx, e.deps.GitHubUserName, e.deps.GitHubUserEmail); err != nil {
		return fmt.Errorf("branch: configuring identity: %w", err)
	}
	if err := e.deps.Git.Fetch(ctx); err != nil {
		return fmt.Errorf("branch: fetching: %w", err)
	}
	return nil
}

// CreateLocal clones the project's base branch, creates and checks out a
// new branch off it, pushes it upstream, and removes the transient
// credentials file it used to authenticate the push (spec.md §4.2.1
// `create-local`). On any failure the partial workspace is removed.
func (e *Engine) CreateLocal(ctx context.Context, name, base string) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.setState(StatePreparing)
		if err := e.createLocalLocked(ctx, name, base); err != nil {
			e.cleanupWorkspaceLocked()
			e.setState(StateIdle)
			return Snapshot{}, err
		}
		e.setState(StateIdle)
		e.persist(ctx)
		return snapshotFromEngine(e), nil
	})
}

func (e *Engine) createLocalLocked(ctx context.Context, name, base string) error {
	if err := ensureDir(e.workspaceDir); err != nil {
		return fmt.Errorf("branch: creating workspace: %w", err)
	}
	if err := e.deps.Git.Clone(ctx, e.deps.GitRepoURL, base); err != nil {
		return fmt.Errorf("branch: cloning base %s: %w", base, err)
	}
	if err := e.deps.Git.AddGitignoreEntry(gitCredentialsFile); err != nil {
		return fmt.Errorf("branch: patching .gitignore: %w", err)
	}
	if err := e.storeCredsLocked(ctx); err != nil {
		return err
	}
	if err := e.deps.Git.CreateAndCheckout(ctx, name); err != nil {
		return fmt.Errorf("branch: creating branch %s: %w", name, err)
	}
	if err := e.deps.Git.PushSetUpstream(ctx, name); err != nil {
		return fmt.Errorf("branch: pushing %s: %w", name, err)
	}
	if err := e.deps.Git.Fetch(ctx); err != nil {
		return fmt.Errorf("branch: fetching: %w", err)
	}
	if err := e.removeCredsLocked(); err != nil {
		return err
	}
	return nil
}

// DeleteLocal optionally runs `make clean`, then removes the container
// and deletes the workspace and temp directories (spec.md §4.2.1
// `delete-local`). The caller is responsible for dropping the registry
// entry once this returns.
func (e *Engine) DeleteLocal(ctx context.Context, makeClean bool, makefilePath string) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if makeClean {
			if err := e.runMakeCleanLocked(ctx, makefilePath); err != nil {
				return Snapshot{}, fmt.Errorf("make clean: %w", err)
			}
		}

		name := e.containerName()
		if e.deps.Project.Docker != nil && !e.deps.Project.Docker.Disabled {
			if _, exists, err := e.deps.Docker.FindContainerByName(ctx, name); err == nil && exists {
				if err := e.deps.Docker.RemoveContainer(ctx, name); err != nil {
					log.Printf("[branch] %s/%s: removing container on delete: %v", e.Project, e.Name, err)
				}
			}
		}

		e.cleanupWorkspaceLocked()
		if err := os.RemoveAll(e.tempDir); err != nil {
			log.Printf("[branch] %s/%s: removing temp dir: %v", e.Project, e.Name, err)
		}

		// The metadata row is deliberately retained across delete-local
		// (spec.md §2 item 7 Lifecycle): only the workspace, temp dir,
		// container, and registry entry are dropped.
		e.setState(StateDeleted)
		return snapshotFromEngine(e), nil
	})
}

func (e *Engine) runMakeCleanLocked(ctx context.Context, makefilePath string) error {
	argv := []string{"make", "-i", "-k", "-f", makefilePath, "clean"}
	result := e.deps.Runner.Run(ctx, runner.Spec{Argv: argv, Dir: e.workspaceDir, Env: e.deps.Project.Env})
	result.ExitCode.Wait()
	if code, _ := result.ExitCode.Value(); code != 0 {
		return fmt.Errorf("exit code %d: %s", code, result.Console.String())
	}
	return nil
}

func (e *Engine) cleanupWorkspaceLocked() {
	if err := os.RemoveAll(e.workspaceDir); err != nil {
		log.Printf("[branch] %s/%s: removing workspace: %v", e.Project, e.Name, err)
	}
}
