package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/treesync/internal/utils"
)

const lockSuffix = ".lock"

var (
	ErrWorkspaceLocked = errors.New("local root locked by another treesync run")
)

// Workspace guards a local sync root so that only one plan executes into it
// at a time. Lock files live in a shared directory, keyed by the root.
type Workspace struct {
	Root    string
	LockDir string

	flock *flock.Flock
}

func NewWorkspace(rootDir string, lockDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}
	lockDir, err = utils.ResolvePath(lockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", lockDir, err)
	}

	return &Workspace{
		Root:    root,
		LockDir: lockDir,
		flock:   flock.New(filepath.Join(lockDir, lockName(root))),
	}, nil
}

func (w *Workspace) LockPath() string {
	return w.flock.Path()
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.LockDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.LockDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrWorkspaceLocked, w.Root)
	}

	slog.Debug("workspace locked", "root", w.Root, "lock", w.flock.Path())
	return nil
}

func (w *Workspace) Unlock() error {
	// not ours to remove
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

func lockName(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:8]) + lockSuffix
}
