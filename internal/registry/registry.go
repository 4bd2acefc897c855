// Package registry owns the collection of branch engines across all
// configured projects, their startup/refresh lifecycle, and fleetwide
// container operations. It is the top-level object cmd/droid wires to the
// HTTP layer (out of scope here).
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/STRML/droid/internal/branch"
	"github.com/STRML/droid/internal/config"
	"github.com/STRML/droid/internal/docker"
	"github.com/STRML/droid/internal/git"
	"github.com/STRML/droid/internal/makefile"
	"github.com/STRML/droid/internal/metadata"
	"github.com/STRML/droid/internal/runner"
)

// TokenSource resolves the credential store-creds should write for a given
// project; the caller (cmd/droid) wires this to the GitHub adapter's
// InstallationToken or a static personal token per push-with-installation-token.
type TokenSource func(ctx context.Context, project config.Project) (string, error)

// Registry holds project -> branch -> engine (spec.md §4.6).
type Registry struct {
	cfg     *config.Config
	root    string
	runner  *runner.Runner
	docker  docker.DockerClient
	store   *metadata.Store
	token   TokenSource

	mu       sync.RWMutex
	projects map[string]map[string]*branch.Engine
}

// New builds an empty registry; call Startup to populate it from disk.
func New(cfg *config.Config, root string, r *runner.Runner, d docker.DockerClient, store *metadata.Store, token TokenSource) *Registry {
	return &Registry{
		cfg:      cfg,
		root:     root,
		runner:   r,
		docker:   d,
		store:    store,
		token:    token,
		projects: make(map[string]map[string]*branch.Engine),
	}
}

func (reg *Registry) projectPaths(project string) (workspaceRoot, tempRoot string) {
	base := filepath.Join(reg.root, "projects", project)
	return filepath.Join(base, "workspace"), filepath.Join(base, "temp")
}

// Startup enumerates each project's workspace subdirectories and
// instantiates an engine for each, seeded from metadata if present.
// Containers are never built or pulled here (spec.md §4.6 Startup).
func (reg *Registry) Startup(ctx context.Context) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for name, proj := range reg.cfg.Projects {
		workspaceRoot, tempRoot := reg.projectPaths(name)
		entries, err := os.ReadDir(workspaceRoot)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("registry: reading workspace for %s: %w", name, err)
		}

		branches := make(map[string]*branch.Engine, len(entries))
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			branchName := entry.Name()
			e, err := reg.instantiate(ctx, name, proj, branchName, workspaceRoot, tempRoot)
			if err != nil {
				log.Printf("[registry] %s/%s: failed to instantiate: %v", name, branchName, err)
				continue
			}
			branches[branchName] = e
		}
		reg.projects[name] = branches
	}
	return nil
}

func (reg *Registry) instantiate(ctx context.Context, project string, proj config.Project, branchName, workspaceRoot, tempRoot string) (*branch.Engine, error) {
	workspaceDir := filepath.Join(workspaceRoot, branchName)
	tempDir := filepath.Join(tempRoot, branchName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("ensuring temp dir: %w", err)
	}
	consolePath := filepath.Join(tempDir, "console.txt")
	if _, err := os.Stat(consolePath); os.IsNotExist(err) {
		if err := os.WriteFile(consolePath, nil, 0644); err != nil {
			return nil, fmt.Errorf("creating console file: %w", err)
		}
	}

	deps := branch.Deps{
		Runner:                    reg.runner,
		Docker:                    reg.docker,
		Git:                       git.New(workspaceDir),
		Store:                     reg.store,
		Project:                   proj,
		GitRepoURL:                fmt.Sprintf("https://github.com/%s.git", proj.GitHubRef()),
		PushWithInstallationToken: reg.cfg.PushWithInstallationToken,
		GitHubUserName:            reg.cfg.GitHubUserName,
		GitHubUserEmail:           reg.cfg.GitHubUserEmail,
		Token: func(ctx context.Context) (string, error) {
			return reg.token(ctx, proj)
		},
	}

	e := branch.New(project, branchName, workspaceDir, tempDir, deps)

	if reg.store != nil {
		if rec, ok, err := reg.store.Get(ctx, project, branchName); err != nil {
			log.Printf("[registry] %s/%s: failed to load metadata: %v", project, branchName, err)
		} else if ok {
			e.Seed(rec)
		}
	}

	if mkfile, err := makefile.Parse(filepath.Join(workspaceDir, proj.MakefilePath), project, branchName); err != nil {
		log.Printf("[registry] %s/%s: failed to parse makefile: %v", project, branchName, err)
	} else {
		e.Refresh(ctx, mkfile)
	}

	return e, nil
}

// Refresh walks a named project's workspace, instantiating engines for new
// branch directories and enqueuing a refresh op on known ones
// (spec.md §4.6 Refresh).
func (reg *Registry) Refresh(ctx context.Context, project string) error {
	proj, ok := reg.cfg.Projects[project]
	if !ok {
		return fmt.Errorf("registry: unknown project %s", project)
	}
	workspaceRoot, tempRoot := reg.projectPaths(project)
	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		return fmt.Errorf("registry: reading workspace for %s: %w", project, err)
	}

	reg.mu.Lock()
	branches, ok := reg.projects[project]
	if !ok {
		branches = make(map[string]*branch.Engine)
		reg.projects[project] = branches
	}
	reg.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		branchName := entry.Name()

		reg.mu.RLock()
		e, known := branches[branchName]
		reg.mu.RUnlock()

		if !known {
			newEngine, err := reg.instantiate(ctx, project, proj, branchName, workspaceRoot, tempRoot)
			if err != nil {
				log.Printf("[registry] %s/%s: failed to instantiate on refresh: %v", project, branchName, err)
				continue
			}
			reg.mu.Lock()
			branches[branchName] = newEngine
			reg.mu.Unlock()
			continue
		}

		mkfile, err := makefile.Parse(filepath.Join(workspaceRoot, branchName, proj.MakefilePath), project, branchName)
		if err != nil {
			log.Printf("[registry] %s/%s: failed to parse makefile on refresh: %v", project, branchName, err)
			mkfile = nil
		}
		if _, err := e.Refresh(ctx, mkfile); err != nil {
			log.Printf("[registry] %s/%s: refresh op failed: %v", project, branchName, err)
		}
	}
	return nil
}

// Engine returns the engine for (project, branch), or nil if unknown.
func (reg *Registry) Engine(project, branchName string) *branch.Engine {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	branches, ok := reg.projects[project]
	if !ok {
		return nil
	}
	return branches[branchName]
}

// Put registers a freshly created engine (e.g. just after create-local or
// checkout-remote) under (project, branch).
func (reg *Registry) Put(project, branchName string, e *branch.Engine) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	branches, ok := reg.projects[project]
	if !ok {
		branches = make(map[string]*branch.Engine)
		reg.projects[project] = branches
	}
	branches[branchName] = e
}

// Remove drops the registry entry for (project, branch), used after a
// successful delete-local (spec.md §4.2.1 `delete-local`).
func (reg *Registry) Remove(project, branchName string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if branches, ok := reg.projects[project]; ok {
		delete(branches, branchName)
	}
}

// ResetAll cancels every engine, deletes every project's temp directory,
// and rebuilds the registry from scratch (spec.md §4.6 Reset all).
func (reg *Registry) ResetAll(ctx context.Context) error {
	reg.mu.Lock()
	projects := reg.projects
	reg.projects = make(map[string]map[string]*branch.Engine)
	reg.mu.Unlock()

	for name, branches := range projects {
		for branchName, e := range branches {
			if _, err := e.Cancel(ctx); err != nil {
				log.Printf("[registry] %s/%s: cancel during reset failed: %v", name, branchName, err)
			}
		}
		_, tempRoot := reg.projectPaths(name)
		if err := os.RemoveAll(tempRoot); err != nil {
			log.Printf("[registry] %s: removing temp root during reset: %v", name, err)
		}
	}
	return reg.Startup(ctx)
}
