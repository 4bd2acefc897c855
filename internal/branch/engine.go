package branch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/STRML/droid/internal/config"
	"github.com/STRML/droid/internal/docker"
	"github.com/STRML/droid/internal/git"
	"github.com/STRML/droid/internal/makefile"
	"github.com/STRML/droid/internal/metadata"
	"github.com/STRML/droid/internal/runner"
)

// GitOps is the subset of *git.Git the engine depends on, narrowed to an
// interface so tests can substitute a fake (spec.md §9's "narrow
// operations" guidance for cross-component references).
type GitOps interface {
	OnBranch(ctx context.Context, branch string) bool
	Clone(ctx context.Context, repoURL, branch string) error
	CreateAndCheckout(ctx context.Context, name string) error
	PushSetUpstream(ctx context.Context, branch string) error
	Fetch(ctx context.Context) error
	ConfigureIdentity(ctx context.Context, name, email string) error
	AddGitignoreEntry(entry string) error
	Status(ctx context.Context) (git.Status, error)
}

var _ GitOps = (*git.Git)(nil)

// Deps bundles an Engine's collaborators: everything it delegates to but
// does not itself own the lifecycle of (spec.md §9 "ownership of external
// resources" — the registry builds these once per (project,branch) and
// hands them to the engine).
type Deps struct {
	Runner     *runner.Runner
	Docker     docker.DockerClient
	Git        GitOps
	Store      *metadata.Store
	Project    config.Project
	GitRepoURL string

	// PushWithInstallationToken records the push-with-installation-token
	// setting (spec.md §4.2.1 store-creds/remove-creds). The engine does not
	// read it: which credential store-creds writes is decided by Token.
	PushWithInstallationToken bool
	GitHubUserName            string
	GitHubUserEmail           string

	// Token resolves the credential to write to .git-credentials; the
	// registry wires this to either the GitHub adapter's InstallationToken
	// method or a static personal token depending on PushWithInstallationToken.
	Token func(ctx context.Context) (string, error)
}

// Engine is the per-(project, branch) serializer (spec.md §4.2).
type Engine struct {
	Project string
	Name    string

	deps Deps

	workspaceDir string
	tempDir      string
	consolePath  string

	ops      chan task
	closed   chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	state     State
	action    string
	command   string
	proc      *runner.Result
	startTime time.Time
	cancelled bool
	gitStatus git.Status
	makefile  *makefile.Makefile
	lastNonce int

	// lastCancelPattern is the regexp-escaped nonce of the most recently
	// launched container command, used to find its PID on cancellation.
	lastCancelPattern string
}

type task struct {
	fn   func(ctx context.Context) (Snapshot, error)
	done chan taskResult
}

type taskResult struct {
	snap Snapshot
	err  error
}

// New creates an engine for (project, branch) rooted at workspaceDir, and
// starts its single worker goroutine.
func New(project, branchName, workspaceDir, tempDir string, deps Deps) *Engine {
	e := &Engine{
		Project:      project,
		Name:         branchName,
		deps:         deps,
		workspaceDir: workspaceDir,
		tempDir:      tempDir,
		consolePath:  filepath.Join(tempDir, "console.txt"),
		ops:          make(chan task, 16),
		closed:       make(chan struct{}),
		state:        StateIdle,
	}
	go e.run()
	return e
}

// Seed populates the engine's public fields from a previously persisted
// metadata row (spec.md §4.5: "seeds the engine's public fields; exit_code
// is re-wrapped as an already-resolved value").
func (e *Engine) Seed(r metadata.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.action = r.Action
	e.command = r.Command
	e.cancelled = r.Cancelled
	e.startTime = r.StartTime
	if r.ExitCodeResolved {
		e.proc = &runner.Result{Console: &runner.SyncBuffer{}, ExitCode: runner.Resolved(r.ExitCode)}
	}
}

func (e *Engine) run() {
	for {
		select {
		case t := <-e.ops:
			snap, err := t.fn(context.Background())
			t.done <- taskResult{snap, err}
		case <-e.closed:
			return
		}
	}
}

// Close stops the engine's worker. Pending ops already accepted finish;
// no new ops are accepted after this returns.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.closed) })
}

func (e *Engine) submit(ctx context.Context, fn func(ctx context.Context) (Snapshot, error)) (Snapshot, error) {
	t := task{fn: fn, done: make(chan taskResult, 1)}
	select {
	case e.ops <- t:
	case <-e.closed:
		return Snapshot{}, fmt.Errorf("branch %s/%s: engine closed", e.Project, e.Name)
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case r := <-t.done:
		return r.snap, r.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshot returns the current public state without going through the
// worker queue (the "observe asynchronously" path spec.md §4.2 describes).
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshotFromEngine(e)
}

func (e *Engine) consoleText() string {
	if e.proc != nil {
		return e.proc.Console.String()
	}
	data, err := os.ReadFile(e.consolePath)
	if err != nil {
		return ""
	}
	return string(data)
}

func (e *Engine) flushConsole() {
	if e.proc == nil {
		return
	}
	_ = os.WriteFile(e.consolePath, []byte(e.proc.Console.String()), 0644)
}

func (e *Engine) setState(s State) {
	e.state = s
}

// persist upserts the engine's current public fields to the metadata
// store, called by the worker after every state transition (spec.md §4.5).
func (e *Engine) persist(ctx context.Context) {
	if e.deps.Store == nil {
		return
	}
	r := metadata.Record{
		ProjectName: e.Project,
		BranchName:  e.Name,
		Action:      e.action,
		Cancelled:   e.cancelled,
		Command:     e.command,
		StartTime:   e.startTime,
	}
	if e.proc != nil {
		if code, resolved := e.proc.ExitCode.Value(); resolved {
			r.ExitCodeResolved = true
			if code == runner.Timeout {
				r.ExitCode = 1
			} else {
				r.ExitCode = code
			}
		}
	}
	if err := e.deps.Store.Upsert(ctx, r); err != nil {
		log.Printf("[branch] %s/%s: failed to persist metadata: %v", e.Project, e.Name, err)
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
