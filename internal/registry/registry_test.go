package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/STRML/droid/internal/config"
	"github.com/STRML/droid/internal/docker"
	"github.com/STRML/droid/internal/metadata"
	"github.com/STRML/droid/internal/registry"
	"github.com/STRML/droid/internal/runner"
)

func newTestConfig(root string) *config.Config {
	return &config.Config{
		Root: root,
		Projects: map[string]config.Project{
			"acme": {
				ID:           "acme",
				GitHubOrg:    "acme-corp",
				GitHubRepo:   "widgets",
				MakefilePath: "Makefile",
				Docker:       &config.DockerConfig{Disabled: true},
			},
		},
	}
}

func TestRegistry_Startup_InstantiatesExistingBranches(t *testing.T) {
	root := t.TempDir()
	branchDir := filepath.Join(root, "projects", "acme", "workspace", "feature-x")
	require.NoError(t, os.MkdirAll(branchDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(branchDir, "Makefile"), []byte(".PHONY: build\n"), 0644))

	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	reg := registry.New(newTestConfig(root), root, runner.New(), docker.NewMockClient(), store, func(ctx context.Context, proj config.Project) (string, error) {
		return "test-token", nil
	})

	require.NoError(t, reg.Startup(context.Background()))

	e := reg.Engine("acme", "feature-x")
	require.NotNil(t, e)
}

func TestRegistry_Engine_UnknownReturnsNil(t *testing.T) {
	root := t.TempDir()
	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	reg := registry.New(newTestConfig(root), root, runner.New(), docker.NewMockClient(), store, nil)
	require.NoError(t, reg.Startup(context.Background()))

	require.Nil(t, reg.Engine("acme", "does-not-exist"))
}

func TestRegistry_ResetAll_ClearsAndRebuilds(t *testing.T) {
	root := t.TempDir()
	branchDir := filepath.Join(root, "projects", "acme", "workspace", "feature-x")
	require.NoError(t, os.MkdirAll(branchDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(branchDir, "Makefile"), []byte(".PHONY: build\n"), 0644))

	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	reg := registry.New(newTestConfig(root), root, runner.New(), docker.NewMockClient(), store, nil)
	require.NoError(t, reg.Startup(context.Background()))
	require.NotNil(t, reg.Engine("acme", "feature-x"))

	require.NoError(t, reg.ResetAll(context.Background()))
	require.NotNil(t, reg.Engine("acme", "feature-x"))
}
