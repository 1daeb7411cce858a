package treepath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/treesync/internal/utils"
)

// LocalPath is an absolute, cleaned path on the local filesystem.
type LocalPath struct {
	path string
}

// NewLocalPath joins segments and resolves "~" to the user's home directory.
func NewLocalPath(segments ...string) (LocalPath, error) {
	p, err := utils.ResolvePath(filepath.Join(segments...))
	if err != nil {
		return LocalPath{}, err
	}
	return LocalPath{path: p}, nil
}

func (p LocalPath) Path() string   { return p.path }
func (p LocalPath) String() string { return p.path }
func (p LocalPath) Name() string   { return filepath.Base(p.path) }

func (p LocalPath) Join(segments ...string) LocalPath {
	return LocalPath{path: filepath.Join(append([]string{p.path}, segments...)...)}
}

func (p LocalPath) Parent() LocalPath {
	return LocalPath{path: filepath.Dir(p.path)}
}

// RelativeTo returns p relative to root, or ErrNotRooted.
func (p LocalPath) RelativeTo(root LocalPath) (RelPath, error) {
	rel, err := filepath.Rel(root.path, p.path)
	if err != nil {
		return nil, fmt.Errorf("%s is not under %s: %w", p.path, root.path, ErrNotRooted)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, fmt.Errorf("%s is not under %s: %w", p.path, root.path, ErrNotRooted)
	}
	return ParseRelPath(rel)
}

func (p LocalPath) Exists() bool {
	_, err := os.Lstat(p.path)
	return err == nil
}

func (p LocalPath) IsDir() bool {
	return utils.DirExists(p.path)
}

func (p LocalPath) IsFile() bool {
	return utils.FileExists(p.path)
}

func (p LocalPath) IsSymlink() bool {
	info, err := os.Lstat(p.path)
	return err == nil && info.Mode()&fs.ModeSymlink != 0
}

// Size returns the size of a file, or the total size of all files below a directory.
func (p LocalPath) Size() (uint64, error) {
	info, err := os.Stat(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%s: %w", p.path, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return uint64(info.Size()), nil
	}

	var total uint64
	err = filepath.WalkDir(p.path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}

// Checksum computes a sha2 checksum of the file content.
func (p LocalPath) Checksum() (string, error) {
	return p.ChecksumAs(utils.ChecksumSHA2)
}

// ChecksumAs computes the checksum with the given algorithm, so it can be
// compared against a remote checksum of the same kind.
func (p LocalPath) ChecksumAs(algo string) (string, error) {
	info, err := os.Stat(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", p.path, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("checksum %s: %w", p.path, ErrNotAFile)
	}
	return utils.FileChecksum(p.path, algo)
}
