package registry

import (
	"context"
	"log"
	"strings"
)

// containerNotFound reports whether err looks like Docker's "No such
// container" response, downgraded to an info log rather than surfaced
// (spec.md §4.6 Container fleet ops).
func containerNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "No such container")
}

// PauseAll pauses every `{project}-{branch}` container across all known
// projects (a soft cancel: in-progress processes freeze but are retained).
func (reg *Registry) PauseAll(ctx context.Context) {
	reg.forEachContainer(ctx, func(name string) error {
		return reg.docker.PauseContainer(ctx, name)
	})
}

// UnpauseAll resumes every paused `{project}-{branch}` container.
func (reg *Registry) UnpauseAll(ctx context.Context) {
	reg.forEachContainer(ctx, func(name string) error {
		return reg.docker.UnpauseContainer(ctx, name)
	})
}

// RemoveAllContainers force-removes every `{project}-{branch}` container,
// used on shutdown when remove-containers-on-shutdown is configured.
func (reg *Registry) RemoveAllContainers(ctx context.Context) {
	reg.forEachContainer(ctx, func(name string) error {
		return reg.docker.RemoveContainer(ctx, name)
	})
}

func (reg *Registry) forEachContainer(ctx context.Context, op func(name string) error) {
	for project := range reg.cfg.Projects {
		containers, err := reg.docker.ListBranchContainers(ctx, project+"-")
		if err != nil {
			log.Printf("[registry] listing containers for %s: %v", project, err)
			continue
		}
		for _, c := range containers {
			if err := op(c.Name); err != nil {
				if containerNotFound(err) {
					log.Printf("[registry] %s: %v", c.Name, err)
					continue
				}
				log.Printf("[registry] %s: fleet op failed: %v", c.Name, err)
			}
		}
	}
}

// Shutdown cancels every live process across all engines, then either
// removes or pauses the container fleet depending on
// removeContainersOnShutdown (spec.md §5 Shutdown).
func (reg *Registry) Shutdown(ctx context.Context, removeContainersOnShutdown bool) {
	reg.mu.RLock()
	projects := reg.projects
	reg.mu.RUnlock()

	for name, branches := range projects {
		for branchName, e := range branches {
			if _, err := e.Cancel(ctx); err != nil {
				log.Printf("[registry] %s/%s: cancel during shutdown failed: %v", name, branchName, err)
			}
			e.Close()
		}
	}

	if removeContainersOnShutdown {
		reg.RemoveAllContainers(ctx)
	} else {
		reg.PauseAll(ctx)
	}
}
