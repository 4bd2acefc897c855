// Command droid wires the branch-lifecycle engine's collaborators
// together and brings the registry up from disk. The HTTP handler layer,
// OAuth middleware, and session storage that would sit in front of this
// are out of scope here and left to the operator's own adapter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/STRML/droid/internal/config"
	"github.com/STRML/droid/internal/docker"
	"github.com/STRML/droid/internal/github"
	"github.com/STRML/droid/internal/metadata"
	"github.com/STRML/droid/internal/registry"
	"github.com/STRML/droid/internal/runner"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "droid.toml", "path to droid.toml")
	root := flag.String("root", ".", "root directory holding projects/<project>/{workspace,temp}")
	metadataPath := flag.String("metadata", "droid-metadata.db", "path to the sqlite metadata store")
	removeContainersOnShutdown := flag.Bool("remove-containers-on-shutdown", false, "force-remove all branch containers on shutdown instead of pausing them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "droid: loading config: %v\n", err)
		os.Exit(1)
	}

	store, err := metadata.Open(*metadataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "droid: opening metadata store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var dockerClient docker.DockerClient
	if anyDockerEnabled(cfg) {
		c, err := docker.NewClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "droid: connecting to docker: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		dockerClient = c
	} else {
		dockerClient = docker.NewMockClient()
	}

	ghAdapter := github.New(cfg.LocalMode, cfg.GitHub.PersonalAccessToken, cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPath)

	reg := registry.New(cfg, *root, runner.New(), dockerClient, store, tokenSource(cfg, ghAdapter))
	remoteReg := registry.NewRemoteRegistry(cfg, ghAdapter)
	defer remoteReg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Startup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "droid: starting registry: %v\n", err)
		os.Exit(1)
	}
	log.Printf("droid: registry started, root=%s", *root)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("droid: shutting down")
	reg.Shutdown(ctx, *removeContainersOnShutdown)
}

func anyDockerEnabled(cfg *config.Config) bool {
	for _, p := range cfg.Projects {
		if p.Docker == nil || !p.Docker.Disabled {
			return true
		}
	}
	return false
}

// tokenSource wires store-creds to either a freshly minted GitHub App
// installation token or the configured personal token, per
// push-with-installation-token (spec.md §4.2.1 store-creds).
func tokenSource(cfg *config.Config, adapter *github.Adapter) registry.TokenSource {
	return func(ctx context.Context, proj config.Project) (string, error) {
		if cfg.LocalMode || !cfg.PushWithInstallationToken {
			return cfg.GitHub.PersonalAccessToken, nil
		}
		return adapter.InstallationToken(ctx, proj.GitHubOrg)
	}
}
