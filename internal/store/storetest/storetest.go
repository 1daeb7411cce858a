// Package storetest provides an in-memory catalog for tests that need a
// working store.Client.
package storetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/store/catalog"
	"github.com/stretchr/testify/require"
)

const Home = "/tempZone/home/tester"

// NewCatalog returns an empty catalog with the Home collection created.
func NewCatalog(t *testing.T, opts ...catalog.Option) *catalog.Catalog {
	t.Helper()

	blobs, err := catalog.NewDirBlobs(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	opts = append([]catalog.Option{catalog.WithCollections(Home)}, opts...)
	c, err := catalog.Open(":memory:", blobs, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// PutBytes uploads content to remotePath, creating parent collections.
func PutBytes(t *testing.T, client store.Client, remotePath string, content []byte) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, client.CreateCollection(ctx, parentOf(remotePath), true))

	local := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.WriteFile(local, content, 0o644))
	require.NoError(t, client.Put(ctx, local, remotePath, store.PutOptions{Overwrite: true}))
}

// WriteFile writes content to a local path, creating parent directories.
func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func parentOf(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "/"
}
