package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/STRML/droid/internal/config"
	"github.com/STRML/droid/internal/github"
)

// RemoteRegistry is the process-wide cache of remote branches per project,
// refreshed on demand. It is its own independent single-threaded
// serializer, distinct from the branch engines (spec.md §2.8, §5
// "the remote-branch registry is a second independent serializer").
type RemoteRegistry struct {
	cfg     *config.Config
	adapter *github.Adapter

	ops    chan func()
	closed chan struct{}

	mu    sync.RWMutex
	cache map[string][]github.RemoteBranch
}

// NewRemoteRegistry creates a remote-branch registry and starts its
// single worker goroutine.
func NewRemoteRegistry(cfg *config.Config, adapter *github.Adapter) *RemoteRegistry {
	r := &RemoteRegistry{
		cfg:     cfg,
		adapter: adapter,
		ops:     make(chan func(), 16),
		closed:  make(chan struct{}),
		cache:   make(map[string][]github.RemoteBranch),
	}
	go r.run()
	return r
}

func (r *RemoteRegistry) run() {
	for {
		select {
		case op := <-r.ops:
			op()
		case <-r.closed:
			return
		}
	}
}

// Close stops the worker goroutine.
func (r *RemoteRegistry) Close() {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
}

// Branches returns the cached remote branches for a project without
// blocking on a refresh.
func (r *RemoteRegistry) Branches(project string) []github.RemoteBranch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache[project]
}

// Refresh re-fetches a project's remote branches from GitHub, serialized
// through the registry's own worker so concurrent refreshes of different
// projects don't race on the shared REST client.
func (r *RemoteRegistry) Refresh(ctx context.Context, project string) error {
	proj, ok := r.cfg.Projects[project]
	if !ok {
		return fmt.Errorf("registry: unknown project %s", project)
	}

	done := make(chan error, 1)
	op := func() {
		token, err := r.adapter.InstallationToken(ctx, proj.GitHubOrg)
		if err != nil {
			done <- fmt.Errorf("minting token: %w", err)
			return
		}
		branches, err := r.adapter.GetRemoteBranches(ctx, proj.GitHubOrg, proj.GitHubRepo, token)
		if err != nil {
			done <- err
			return
		}
		r.mu.Lock()
		r.cache[project] = branches
		r.mu.Unlock()
		done <- nil
	}

	select {
	case r.ops <- op:
	case <-r.closed:
		return fmt.Errorf("registry: remote registry closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
