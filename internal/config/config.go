// Package config loads and validates the operator-authored droid.toml file:
// the project list, each project's GitHub coordinates and Docker settings,
// and the process-wide flags spec.md §3 names (push-with-installation-token,
// local-mode, github-user-name/email).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DockerConfig mirrors spec.md §3's "Docker config" data model.
type DockerConfig struct {
	Disabled         bool              `toml:"disabled"`
	Image            string            `toml:"image"`
	WorkspaceDir     string            `toml:"workspace_dir"`
	TempDir          string            `toml:"temp_dir"`
	DefaultWorkingDir string           `toml:"default_working_dir"`
	Shell            []string          `toml:"shell"`
	ExtraVolumes     map[string]string `toml:"extra_volumes"`
	Env              map[string]string `toml:"env"`
}

// Project mirrors spec.md §3's "Project" data model.
type Project struct {
	ID           string            `toml:"id"`
	GitHubOrg    string            `toml:"github_org"`
	GitHubRepo   string            `toml:"github_repo"`
	MakefilePath string            `toml:"makefile_path"`
	Env          map[string]string `toml:"env"`
	Title        string            `toml:"title"`
	Description  string            `toml:"description"`
	Docker       *DockerConfig     `toml:"docker"`
}

// GitHubRef returns "org/repo" for the GitHub adapter.
func (p Project) GitHubRef() string {
	return p.GitHubOrg + "/" + p.GitHubRepo
}

// GitHub holds the App/PAT credentials the GitHub adapter uses to mint
// tokens and authenticate REST calls (spec.md §4.4).
type GitHub struct {
	AppID              int64  `toml:"app_id"`
	PrivateKeyPath     string `toml:"private_key_path"`
	PersonalAccessToken string `toml:"personal_access_token"`
}

// Config is the root of droid.toml.
type Config struct {
	Root                     string             `toml:"root"`
	PushWithInstallationToken bool              `toml:"push_with_installation_token"`
	LocalMode                bool               `toml:"local_mode"`
	GitHubUserName           string             `toml:"github_user_name"`
	GitHubUserEmail          string             `toml:"github_user_email"`
	GitHub                   GitHub             `toml:"github"`
	DefaultDocker            DockerConfig       `toml:"default_docker"`
	Projects                 map[string]Project `toml:"projects"`
}

func defaults() Config {
	return Config{
		DefaultDocker: DockerConfig{
			Image:             "ubuntu:latest",
			DefaultWorkingDir: "/workspace",
			Shell:             []string{"/bin/bash"},
		},
	}
}

// Load reads and validates droid.toml at path. Unset per-project Docker
// config inherits DefaultDocker (spec.md §3: "Docker config or inherited
// default").
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	normalizeImage(&cfg.DefaultDocker)
	for id, p := range cfg.Projects {
		if p.Docker == nil {
			inherited := cfg.DefaultDocker
			p.Docker = &inherited
		} else {
			normalizeImage(p.Docker)
		}
		p.ID = id
		cfg.Projects[id] = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalizeImage case-normalizes an image reference and defaults the tag to
// :latest, per spec.md §3.
func normalizeImage(d *DockerConfig) {
	if d.Image == "" {
		return
	}
	d.Image = strings.ToLower(d.Image)
	if !strings.Contains(lastSegment(d.Image), ":") {
		d.Image += ":latest"
	}
}

func lastSegment(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// Validate performs the startup-fatal config checks: root is set, the
// GitHub App ID and PEM file (or, in local mode, the personal access token)
// are present, and every project names its github_org/github_repo. It does
// not check environment variables; unknown project IDs are reported by
// Project at lookup time.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("config: root directory is required")
	}
	if !c.LocalMode {
		if c.GitHub.AppID == 0 {
			return fmt.Errorf("config: github.app_id is required unless local_mode is set")
		}
		if c.GitHub.PrivateKeyPath == "" {
			return fmt.Errorf("config: github.private_key_path is required unless local_mode is set")
		}
		if _, err := os.Stat(c.GitHub.PrivateKeyPath); err != nil {
			return fmt.Errorf("config: github.private_key_path %q: %w", c.GitHub.PrivateKeyPath, err)
		}
	} else if c.GitHub.PersonalAccessToken == "" {
		return fmt.Errorf("config: github.personal_access_token is required when local_mode is set")
	}
	for id, p := range c.Projects {
		if p.GitHubOrg == "" || p.GitHubRepo == "" {
			return fmt.Errorf("config: project %q is missing github_org/github_repo", id)
		}
	}
	return nil
}

// Project looks up a project by ID, returning an error if it is unknown
// (spec.md §7: "unknown project").
func (c *Config) Project(id string) (Project, error) {
	p, ok := c.Projects[id]
	if !ok {
		return Project{}, fmt.Errorf("config: unknown project %q", id)
	}
	return p, nil
}
