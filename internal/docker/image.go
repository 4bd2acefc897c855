package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
)

// BuildImage builds an image from the Dockerfile in dockerfileDir and tags
// it. Used by rebuild-container when a branch's workspace carries its own
// Dockerfile (spec.md §6).
func (c *Client) BuildImage(ctx context.Context, dockerfileDir, tag string) error {
	buildCtx, err := tarDirectory(dockerfileDir)
	if err != nil {
		return fmt.Errorf("failed to build tar context: %w", err)
	}

	resp, err := c.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("docker build failed: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// PullImage pulls an image reference from its configured registry.
func (c *Client) PullImage(ctx context.Context, imageName string) error {
	rc, err := c.cli.ImagePull(ctx, imageName, types.ImagePullOptions{
		RegistryAuth: "",
	})
	if err != nil {
		return fmt.Errorf("docker pull failed: %w", err)
	}
	defer rc.Close()

	_, err = io.Copy(io.Discard, rc)
	return err
}

// tarDirectory packs dir into an in-memory tar stream for ImageBuild.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
