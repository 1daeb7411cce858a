package sync

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/openmined/treesync/internal/store"
)

var (
	ErrTypeMismatch     = errors.New("path is a file on one side and a directory on the other")
	ErrAlreadyExists    = errors.New("destination already exists")
	ErrPermission       = errors.New("permission denied")
	ErrInvalidDirection = errors.New("exactly one of source and target must be remote")
)

type WarningKind string

const (
	// ChecksumMismatchWarning is recorded when a completed transfer does not
	// verify. The transfer still counts as done.
	ChecksumMismatchWarning WarningKind = "checksum_mismatch"
	// UnverifiedWarning is recorded when a completed transfer could not be
	// checksummed afterwards. The transfer still counts as done.
	UnverifiedWarning WarningKind = "unverified"
	// SkippedWarning is recorded for an operation that failed while errors
	// were being ignored.
	SkippedWarning WarningKind = "skipped"
)

type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	Op      string      `json:"op" yaml:"op"`
	Path    string      `json:"path" yaml:"path"`
	Message string      `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s %s: %s", w.Kind, w.Op, w.Path, w.Message)
}

// classify maps store and filesystem failures onto the executor's error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermission), errors.Is(err, ErrAlreadyExists):
		return err
	case errors.Is(err, store.ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case errors.Is(err, store.ErrOverwriteWithoutForce), errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	return err
}
