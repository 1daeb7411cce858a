package treepath

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/utils"
)

// Remote is a node in the remote tree, either a plain RemotePath that
// queries the store on every call or a CachedRemotePath produced by a walk.
type Remote interface {
	Path() string
	Base() RemotePath
	Exists(ctx context.Context) (bool, error)
	IsCollection(ctx context.Context) (bool, error)
	IsDataObject(ctx context.Context) (bool, error)
	Size(ctx context.Context) (uint64, error)
	Checksum(ctx context.Context) (string, error)
}

// RemotePath is an immutable handle on a remote path. Every query goes to the store.
type RemotePath struct {
	client store.Client
	path   string
}

// NewRemotePath joins segments POSIX-style and anchors the result at home
// when it is relative or starts with "~".
func NewRemotePath(client store.Client, home string, segments ...string) RemotePath {
	return RemotePath{
		client: client,
		path:   utils.ResolvePosixPath(path.Join(segments...), home),
	}
}

func (p RemotePath) Client() store.Client { return p.client }
func (p RemotePath) Path() string         { return p.path }
func (p RemotePath) String() string       { return p.path }
func (p RemotePath) Base() RemotePath     { return p }
func (p RemotePath) Name() string         { return path.Base(p.path) }
func (p RemotePath) Depth() int           { return len(utils.SplitPosix(p.path)) }

func (p RemotePath) Join(segments ...string) RemotePath {
	return RemotePath{
		client: p.client,
		path:   path.Clean(path.Join(append([]string{p.path}, segments...)...)),
	}
}

func (p RemotePath) Parent() RemotePath {
	return RemotePath{client: p.client, path: path.Dir(p.path)}
}

// RelativeTo returns p relative to root, or ErrNotRooted.
func (p RemotePath) RelativeTo(root RemotePath) (RelPath, error) {
	return relativePosix(p.path, root.path)
}

func (p RemotePath) Exists(ctx context.Context) (bool, error) {
	return p.client.Exists(ctx, p.path)
}

func (p RemotePath) IsCollection(ctx context.Context) (bool, error) {
	entry, err := p.stat(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.IsCollection, nil
}

func (p RemotePath) IsDataObject(ctx context.Context) (bool, error) {
	entry, err := p.stat(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !entry.IsCollection, nil
}

// Size returns the size of a data object, or the total size of all data
// objects below a collection.
func (p RemotePath) Size(ctx context.Context) (uint64, error) {
	entry, err := p.stat(ctx)
	if err != nil {
		return 0, err
	}
	if !entry.IsCollection {
		return entry.Size, nil
	}

	listing, err := p.client.ListTree(ctx, p.path)
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", p.path, err)
	}
	var total uint64
	for _, obj := range listing.DataObjects {
		total += obj.Size
	}
	return total, nil
}

// Checksum returns the registered checksum of a data object. When the store
// has none yet it is asked to compute one.
func (p RemotePath) Checksum(ctx context.Context) (string, error) {
	entry, err := p.stat(ctx)
	if err != nil {
		return "", err
	}
	if entry.IsCollection {
		return "", fmt.Errorf("checksum %s: %w", p.path, ErrNotAFile)
	}
	if entry.Checksum != "" {
		return entry.Checksum, nil
	}
	return p.computeChecksum(ctx)
}

func (p RemotePath) computeChecksum(ctx context.Context) (string, error) {
	sum, err := p.client.ComputeChecksum(ctx, p.path)
	if err != nil {
		return "", fmt.Errorf("compute checksum %s: %w", p.path, err)
	}
	return sum, nil
}

func (p RemotePath) stat(ctx context.Context) (*store.Entry, error) {
	entry, err := p.client.Stat(ctx, p.path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", p.path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func relativePosix(p, root string) (RelPath, error) {
	if p == root {
		return RelPath{}, nil
	}
	prefix := strings.TrimSuffix(root, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return nil, fmt.Errorf("%s is not under %s: %w", p, root, ErrNotRooted)
	}
	return RelPath(utils.SplitPosix(p[len(prefix):])), nil
}

var _ Remote = RemotePath{}
