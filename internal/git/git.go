// Package git provides the small set of git operations the branch engine
// needs to bring a branch's workspace into existence, check it out, and
// push it: clone-per-branch, not a single shared repository with worktrees
// (each branch owns a full clone at projects/<project>/workspace/<branch>).
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git runs git commands against one workspace directory.
type Git struct {
	workspaceDir string
}

// New creates a Git instance rooted at workspaceDir.
func New(workspaceDir string) *Git {
	return &Git{workspaceDir: workspaceDir}
}

// run executes a git command and returns trimmed combined output.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workspaceDir
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("%s: %w", output, err)
		}
		return output, err
	}
	return output, nil
}

// Clone clones repoURL, checking out branch, into the workspace dir.
func (g *Git) Clone(ctx context.Context, repoURL, branch string) error {
	_, err := g.run(ctx, "clone", "--branch", branch, repoURL, ".")
	return err
}

// HeadRef returns the ref HEAD points at, as printed by
// `git symbolic-ref HEAD`, e.g. "refs/heads/main". A detached HEAD is
// reported as an error.
func (g *Git) HeadRef(ctx context.Context) (string, error) {
	return g.run(ctx, "symbolic-ref", "HEAD")
}

// OnBranch reports whether HEAD currently points at refs/heads/<branch>,
// implementing the consistency guard (spec §4.2.3).
func (g *Git) OnBranch(ctx context.Context, branch string) bool {
	ref, err := g.HeadRef(ctx)
	if err != nil {
		return false
	}
	return ref == "refs/heads/"+branch
}

// CreateAndCheckout creates and switches to a new local branch.
func (g *Git) CreateAndCheckout(ctx context.Context, name string) error {
	_, err := g.run(ctx, "checkout", "-b", name)
	return err
}

// PushSetUpstream pushes a new branch and sets its upstream.
func (g *Git) PushSetUpstream(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "push", "--set-upstream", "origin", branch)
	return err
}

// Fetch runs a plain `git fetch`.
func (g *Git) Fetch(ctx context.Context) error {
	_, err := g.run(ctx, "fetch")
	return err
}

// ConfigureIdentity sets user.name/user.email/color.ui/credential.helper,
// part of checkout-remote (spec §4.2.1).
func (g *Git) ConfigureIdentity(ctx context.Context, name, email string) error {
	if _, err := g.run(ctx, "config", "user.name", name); err != nil {
		return err
	}
	if _, err := g.run(ctx, "config", "user.email", email); err != nil {
		return err
	}
	if _, err := g.run(ctx, "config", "color.ui", "always"); err != nil {
		return err
	}
	_, err := g.run(ctx, "config", "credential.helper", "store")
	return err
}

// AddGitignoreEntry appends a line to .gitignore if it is not already
// present, used to keep the transient .git-credentials file untracked.
func (g *Git) AddGitignoreEntry(entry string) error {
	path := filepath.Join(g.workspaceDir, ".gitignore")
	existing, _ := os.ReadFile(path)
	if strings.Contains(string(existing), entry) {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry + "\n")
	return err
}
