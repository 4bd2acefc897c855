package branch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const gitCredentialsFile = ".git-credentials"

// StoreCreds writes a .git-credentials file into the workspace holding
// either a freshly minted installation token or the configured personal
// token, per push-with-installation-token (spec.md §4.2.1 `store-creds`).
func (e *Engine) StoreCreds(ctx context.Context) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.storeCredsLocked(ctx); err != nil {
			return Snapshot{}, err
		}
		return snapshotFromEngine(e), nil
	})
}

func (e *Engine) storeCredsLocked(ctx context.Context) error {
	if e.deps.Token == nil {
		return fmt.Errorf("branch: no credential source configured")
	}
	token, err := e.deps.Token(ctx)
	if err != nil {
		return fmt.Errorf("branch: minting credential: %w", err)
	}
	line := fmt.Sprintf("https://x-access-token:%s@github.com\n", token)
	path := filepath.Join(e.workspaceDir, gitCredentialsFile)
	return os.WriteFile(path, []byte(line), 0600)
}

// RemoveCreds deletes the workspace's .git-credentials file, used once a
// push-dependent op finishes so the credential doesn't sit on disk
// (spec.md §4.2.1 `remove-creds`).
func (e *Engine) RemoveCreds(ctx context.Context) (Snapshot, error) {
	return e.submit(ctx, func(ctx context.Context) (Snapshot, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.removeCredsLocked(); err != nil {
			return Snapshot{}, err
		}
		return snapshotFromEngine(e), nil
	})
}

func (e *Engine) removeCredsLocked() error {
	path := filepath.Join(e.workspaceDir, gitCredentialsFile)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("branch: removing credentials: %w", err)
	}
	return nil
}
