package treepath

import (
	"context"
	"fmt"
)

// CachedRemotePath carries the kind, size and checksum observed when the
// path was enumerated. It never asks the store for those again, except that
// an empty checksum is computed on demand. Only the remote walk builds these,
// and they must not outlive the walk's sync run.
type CachedRemotePath struct {
	RemotePath
	isCollection bool
	size         uint64
	checksum     string
}

func newCachedRemotePath(base RemotePath, isCollection bool, size uint64, checksum string) *CachedRemotePath {
	return &CachedRemotePath{
		RemotePath:   base,
		isCollection: isCollection,
		size:         size,
		checksum:     checksum,
	}
}

func (p *CachedRemotePath) Exists(context.Context) (bool, error) { return true, nil }

func (p *CachedRemotePath) IsCollection(context.Context) (bool, error) {
	return p.isCollection, nil
}

func (p *CachedRemotePath) IsDataObject(context.Context) (bool, error) {
	return !p.isCollection, nil
}

func (p *CachedRemotePath) Kind() Kind {
	if p.isCollection {
		return KindCollection
	}
	return KindDataObject
}

// Size of a cached collection is not captured, so it falls back to a live query.
func (p *CachedRemotePath) Size(ctx context.Context) (uint64, error) {
	if p.isCollection {
		return p.RemotePath.Size(ctx)
	}
	return p.size, nil
}

// CachedChecksum returns the checksum captured by the walk, possibly empty.
func (p *CachedRemotePath) CachedChecksum() string {
	return p.checksum
}

func (p *CachedRemotePath) Checksum(ctx context.Context) (string, error) {
	if p.isCollection {
		return "", fmt.Errorf("checksum %s: %w", p.path, ErrNotAFile)
	}
	if p.checksum != "" {
		return p.checksum, nil
	}
	return p.computeChecksum(ctx)
}

var _ Remote = (*CachedRemotePath)(nil)
