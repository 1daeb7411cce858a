package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/utils"
)

// BlobStore holds the bytes of data objects, addressed by an opaque key.
type BlobStore interface {
	Write(ctx context.Context, key string, r io.Reader, size int64) error
	// Read returns store.ErrNotFound when the key does not exist.
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DirBlobs stores blobs as files under a local directory, sharded by key prefix.
type DirBlobs struct {
	root string
}

func NewDirBlobs(root string) (*DirBlobs, error) {
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	return &DirBlobs{root: root}, nil
}

func (d *DirBlobs) Write(_ context.Context, key string, r io.Reader, size int64) error {
	n, err := utils.WriteFileAtomic(d.keyPath(key), r)
	if err != nil {
		return err
	}
	if size >= 0 && n != size {
		return fmt.Errorf("blob %s: wrote %d bytes, expected %d", key, n, size)
	}
	return nil
}

func (d *DirBlobs) Read(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(d.keyPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", key, store.ErrNotFound)
	}
	return f, err
}

func (d *DirBlobs) Delete(_ context.Context, key string) error {
	err := os.Remove(d.keyPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (d *DirBlobs) keyPath(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(d.root, shard, key)
}

var _ BlobStore = (*DirBlobs)(nil)
