package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"
)

// ValidationError represents a single failed Docker prerequisite check.
type ValidationError struct {
	Check   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// ValidationResult aggregates the outcome of ValidatePrerequisites.
type ValidationResult struct {
	DockerAvailable bool
	ImageExists     bool
	ImageName       string
	Errors          []ValidationError
}

// IsValid returns true if all validations passed.
func (v *ValidationResult) IsValid() bool {
	return v.DockerAvailable && v.ImageExists && len(v.Errors) == 0
}

// ValidatePrerequisites checks that the Docker daemon is reachable and that
// a project's configured image is present locally. It is a standalone
// check: config loading and the registry do not call it.
func ValidatePrerequisites(ctx context.Context, imageName string) (*ValidationResult, error) {
	result := &ValidationResult{ImageName: imageName}

	cli, err := NewClient()
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Check:   "docker_connection",
			Message: fmt.Sprintf("failed to connect to Docker: %v", err),
		})
		return result, nil
	}
	defer cli.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cli.Ping(pingCtx); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Check:   "docker_ping",
			Message: fmt.Sprintf("Docker daemon not responding: %v", err),
		})
		return result, nil
	}
	result.DockerAvailable = true

	exists, err := cli.ImageExists(ctx, imageName)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Check:   "image_check",
			Message: fmt.Sprintf("failed to check image: %v", err),
		})
		return result, nil
	}

	if !exists {
		result.Errors = append(result.Errors, ValidationError{
			Check:   "image_missing",
			Message: fmt.Sprintf("image %q not found locally; rebuild-container will pull or build it", imageName),
		})
	} else {
		result.ImageExists = true
	}

	return result, nil
}

// ImageExists checks if a Docker image exists locally.
func (c *Client) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
