package branch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/STRML/droid/internal/git"
	"github.com/STRML/droid/internal/makefile"
	"github.com/STRML/droid/internal/runner"
)

// Refresh re-reads git status, the Makefile (the registry re-parses it on
// every refresh before calling in, whether or not its mtime changed), and
// console; updates run-time if a
// process is live (spec.md §4.2.1 `refresh`).
func (e *Engine) Refresh(ctx context.Context, mkfile *makefile.Makefile) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		status, err := e.deps.Git.Status(ctx)
		if err != nil {
			log.Printf("[branch] %s/%s: git status failed: %v", e.Project, e.Name, err)
			e.gitStatus = git.Status{}
		} else {
			e.gitStatus = status
		}
		if mkfile != nil {
			e.makefile = mkfile
		}

		if e.proc != nil {
			if _, resolved := e.proc.ExitCode.Value(); resolved && e.state == StateRunning {
				e.setState(StateIdle)
			}
		}

		return snapshotFromEngine(e), nil
	})
}

// RunMake launches `make <target>` for a general-action target (spec.md
// §4.2.1 `run-make`).
func (e *Engine) RunMake(ctx context.Context, target string) (Snapshot, error) {
	argv := []string{"make", target}
	return e.launch(ctx, target, "make "+target, argv)
}

// RunGit runs the command the git action table names for key, filling in
// commit message/author where the key requires them (spec.md §4.2.1
// `run-git`, §6 git action table).
func (e *Engine) RunGit(ctx context.Context, key, message, authorName, authorEmail string) (Snapshot, error) {
	action, ok := makefile.GitActionByKey(key)
	if !ok {
		return Snapshot{}, fmt.Errorf("branch: unknown git action %q", key)
	}

	command := action.Command
	if strings.Contains(command, "%s") {
		if message == "" {
			return Snapshot{}, fmt.Errorf("branch: %s requires a commit message", key)
		}
		command = fmt.Sprintf(command, message, authorName, authorEmail)
	}

	argv := []string{"sh", "-c", command}
	return e.launch(ctx, key, command, argv)
}

// RunView launches a file/dir view (`make <path>`) or an exec view
// (`./<script> <query>`) (spec.md §4.2.1 `run-view`).
func (e *Engine) RunView(ctx context.Context, kind makefile.Kind, normalizedPath, decodedQuery string) (Snapshot, error) {
	var argv []string
	var command string
	switch kind {
	case makefile.KindExecView:
		command = "./" + normalizedPath
		if decodedQuery != "" {
			command += " " + decodedQuery
		}
		argv = []string{"sh", "-c", command}
	case makefile.KindFileView, makefile.KindDirView:
		command = "make " + normalizedPath
		argv = []string{"make", normalizedPath}
	default:
		return Snapshot{}, fmt.Errorf("branch: %q is not a view", normalizedPath)
	}
	return e.launch(ctx, normalizedPath, command, argv)
}

// launch is the shared machinery behind run-make/run-git/run-view: preempt
// any live process through the full §4.2.2 cancellation protocol, apply the
// HEAD-consistency guard, wrap for Docker if enabled, and attach the new
// process (spec.md §4.2.1, §4.2.3). Preempting through the same protocol
// Cancel uses — not a bare host-side kill — matters when Docker is enabled:
// the live process is `docker exec …`, and killing only that host parent
// would leave the real work orphaned inside the container instead of
// stopped, and would launch the replacement into a container that still has
// the previous command running (spec.md §3/§5's single-writer container
// invariant).
func (e *Engine) launch(ctx context.Context, action, command string, argv []string) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.preemptLiveProcessLocked(ctx)

		spec := runner.Spec{Argv: argv, Dir: e.workspaceDir, Env: e.deps.Project.Env}

		if !e.deps.Git.OnBranch(ctx, e.Name) {
			spec = consistencyFailureSpec(e.Name)
		} else if e.deps.Project.Docker != nil && !e.deps.Project.Docker.Disabled {
			var err error
			spec, err = e.wrapForContainerLocked(ctx, spec)
			if err != nil {
				return Snapshot{}, err
			}
		}

		e.action = action
		e.command = command
		e.cancelled = false
		e.startTime = time.Now()
		e.setState(StateRunning)

		e.proc = e.deps.Runner.Run(ctx, spec)
		e.flushConsole()
		e.persist(ctx)

		go e.watchExit(e.proc)

		return snapshotFromEngine(e), nil
	})
}

// consistencyFailureSpec builds the echo-and-fail command the HEAD
// consistency guard substitutes when the workspace has drifted off the
// named branch (spec.md §4.2.3).
func consistencyFailureSpec(branch string) runner.Spec {
	msg := fmt.Sprintf("Refusing to run command: working tree HEAD does not match the branch %s", branch)
	return runner.Spec{Argv: []string{"sh", "-c", fmt.Sprintf("echo %q >&2; exit 1", msg)}}
}

// watchExit waits for a launched process's exit code to resolve and
// re-enqueues a transition back to Idle, keeping all state mutation
// confined to the worker goroutine.
func (e *Engine) watchExit(proc *runner.Result) {
	proc.ExitCode.Wait()
	t := task{
		fn: func(ctx context.Context) (Snapshot, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.proc == proc && e.state == StateRunning {
				e.setState(StateIdle)
				e.flushConsole()
				e.persist(ctx)
			}
			return snapshotFromEngine(e), nil
		},
		done: make(chan taskResult, 1),
	}
	select {
	case e.ops <- t:
	case <-e.closed:
	}
}
