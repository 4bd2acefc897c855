package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "droid.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
root = "/srv/droid"
local_mode = true

[github]
personal_access_token = "tok"

[projects.widgets]
github_org = "acme"
github_repo = "widgets"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/droid", cfg.Root)
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, "ubuntu:latest", cfg.DefaultDocker.Image)

	p, err := cfg.Project("widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", p.GitHubRef())
	require.NotNil(t, p.Docker)
	assert.Equal(t, "ubuntu:latest", p.Docker.Image, "project without docker config should inherit the default")
}

func TestLoad_ImageNormalization(t *testing.T) {
	path := writeConfig(t, `
root = "/srv/droid"
local_mode = true

[github]
personal_access_token = "tok"

[projects.widgets]
github_org = "acme"
github_repo = "widgets"

[projects.widgets.docker]
image = "ACME/Builder"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	p, err := cfg.Project("widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme/builder:latest", p.Docker.Image)
}

func TestLoad_UnknownProject(t *testing.T) {
	path := writeConfig(t, `
root = "/srv/droid"
local_mode = true

[github]
personal_access_token = "tok"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.Project("missing")
	assert.Error(t, err)
}

func TestLoad_MissingGitHubCredentials(t *testing.T) {
	path := writeConfig(t, `
root = "/srv/droid"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ProjectMissingGitHubCoordinates(t *testing.T) {
	path := writeConfig(t, `
root = "/srv/droid"
local_mode = true

[github]
personal_access_token = "tok"

[projects.widgets]
title = "Widgets"
`)

	_, err := Load(path)
	assert.Error(t, err)
}
