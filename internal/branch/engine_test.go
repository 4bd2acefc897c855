package branch

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/STRML/droid/internal/config"
	"github.com/STRML/droid/internal/docker"
	"github.com/STRML/droid/internal/git"
	"github.com/STRML/droid/internal/metadata"
	"github.com/STRML/droid/internal/runner"
)

// fakeGit is a minimal GitOps stub for engine tests that don't need a real
// repository checkout, only the consistency-guard branch and git-status
// hooks the engine calls.
type fakeGit struct {
	onBranch bool
	status   git.Status
}

func (f *fakeGit) OnBranch(ctx context.Context, branch string) bool { return f.onBranch }
func (f *fakeGit) Clone(ctx context.Context, repoURL, branch string) error { return nil }
func (f *fakeGit) CreateAndCheckout(ctx context.Context, name string) error { return nil }
func (f *fakeGit) PushSetUpstream(ctx context.Context, branch string) error { return nil }
func (f *fakeGit) Fetch(ctx context.Context) error { return nil }
func (f *fakeGit) ConfigureIdentity(ctx context.Context, name, email string) error { return nil }
func (f *fakeGit) AddGitignoreEntry(entry string) error { return nil }
func (f *fakeGit) Status(ctx context.Context) (git.Status, error) { return f.status, nil }

func newTestEngine(t *testing.T, g GitOps) *Engine {
	t.Helper()
	deps := Deps{
		Runner:  runner.New(),
		Docker:  docker.NewMockClient(),
		Git:     g,
		Project: config.Project{Docker: &config.DockerConfig{Disabled: true}},
	}
	e := New("acme", "feature-x", t.TempDir(), t.TempDir(), deps)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_RunMake_ConsistencyGuard(t *testing.T) {
	g := &fakeGit{onBranch: false}
	e := newTestEngine(t, g)

	snap, err := e.RunMake(context.Background(), "build")
	if err != nil {
		t.Fatalf("RunMake: %v", err)
	}
	if snap.State != StateRunning {
		t.Fatalf("state = %v, want Running", snap.State)
	}

	waitForIdle(t, e)
	final := e.Snapshot()
	if final.ExitCode == 0 {
		t.Fatalf("expected non-zero exit code for HEAD mismatch, got 0")
	}
	if !strings.Contains(final.Console, "Refusing to run command") {
		t.Fatalf("console = %q, want consistency guard message", final.Console)
	}
}

func TestEngine_RunGit_Success(t *testing.T) {
	g := &fakeGit{onBranch: true}
	e := newTestEngine(t, g)

	_, err := e.RunGit(context.Background(), "git-status", "", "", "")
	if err != nil {
		t.Fatalf("RunGit: %v", err)
	}
	waitForIdle(t, e)

	final := e.Snapshot()
	if !final.ExitCodeResolved {
		t.Fatalf("snapshot = %+v, want a resolved exit code", final)
	}
}

func TestEngine_Cancel_IdleIsNoop(t *testing.T) {
	g := &fakeGit{onBranch: true}
	e := newTestEngine(t, g)

	snap, err := e.Cancel(context.Background())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if snap.State != StateIdle {
		t.Fatalf("state = %v, want Idle", snap.State)
	}
}

func TestEngine_Seed_RoundTrip(t *testing.T) {
	g := &fakeGit{onBranch: true}
	e := newTestEngine(t, g)

	e.Seed(metadata.Record{
		Action:            "run-make",
		Command:           "make deploy",
		ExitCodeResolved:  true,
		ExitCode:          3,
		StartTime:         time.Now().Add(-time.Minute),
	})

	snap := e.Snapshot()
	if !snap.ExitCodeResolved || snap.ExitCode != 3 {
		t.Fatalf("snapshot = %+v, want resolved exit code 3", snap)
	}
	if snap.Command != "make deploy" {
		t.Fatalf("command = %q", snap.Command)
	}
}

func TestEngine_DeleteLocal_RemovesWorkspaceRetainsMetadata(t *testing.T) {
	g := &fakeGit{onBranch: true}
	store, err := metadata.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	workspaceDir, tempDir := t.TempDir(), t.TempDir()
	deps := Deps{
		Runner:  runner.New(),
		Docker:  docker.NewMockClient(),
		Git:     g,
		Store:   store,
		Project: config.Project{Docker: &config.DockerConfig{Disabled: true}},
	}
	e := New("acme", "feature-x", workspaceDir, tempDir, deps)
	t.Cleanup(e.Close)

	ctx := context.Background()
	if err := store.Upsert(ctx, metadata.Record{ProjectName: "acme", BranchName: "feature-x", Action: "run-make"}); err != nil {
		t.Fatalf("seeding metadata: %v", err)
	}

	snap, err := e.DeleteLocal(ctx, false, "Makefile")
	if err != nil {
		t.Fatalf("DeleteLocal: %v", err)
	}
	if snap.State != StateDeleted {
		t.Fatalf("state = %v, want Deleted", snap.State)
	}
	if _, err := os.Stat(workspaceDir); !os.IsNotExist(err) {
		t.Fatalf("workspace dir still exists: %v", err)
	}

	// spec.md §2 item 7: the metadata row is retained across delete-local,
	// only the registry entry and on-disk directories are dropped.
	_, ok, err := store.Get(ctx, "acme", "feature-x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected metadata row to survive delete-local")
	}
}

func waitForIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Snapshot().State == StateIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("engine did not return to Idle in time")
}
