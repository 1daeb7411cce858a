package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	blobs, err := NewDirBlobs(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	c, err := Open(":memory:", blobs, append([]Option{WithCollections("/zone/home")}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeLocal(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCatalog_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	src := writeLocal(t, "hello")
	require.NoError(t, c.Put(ctx, src, "/zone/home/a.txt", store.PutOptions{RegisterChecksum: true}))

	entry, err := c.Stat(ctx, "/zone/home/a.txt")
	require.NoError(t, err)
	assert.False(t, entry.IsCollection)
	assert.EqualValues(t, 5, entry.Size)
	assert.Equal(t, "sha2:LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", entry.Checksum)

	dst := filepath.Join(t.TempDir(), "out", "a.txt")
	require.NoError(t, c.Get(ctx, "/zone/home/a.txt", dst, store.GetOptions{}))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	err = c.Get(ctx, "/zone/home/a.txt", dst, store.GetOptions{})
	assert.ErrorIs(t, err, store.ErrOverwriteWithoutForce)
}

func TestCatalog_PutOverwrite(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.Put(ctx, writeLocal(t, "one"), "/zone/home/a.txt", store.PutOptions{}))

	err := c.Put(ctx, writeLocal(t, "two!"), "/zone/home/a.txt", store.PutOptions{})
	assert.ErrorIs(t, err, store.ErrOverwriteWithoutForce)

	require.NoError(t, c.Put(ctx, writeLocal(t, "two!"), "/zone/home/a.txt", store.PutOptions{Overwrite: true}))
	entry, err := c.Stat(ctx, "/zone/home/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 4, entry.Size)
	assert.Empty(t, entry.Checksum, "checksum is only registered on request")
}

func TestCatalog_PutParentMissing(t *testing.T) {
	c := newTestCatalog(t)
	err := c.Put(context.Background(), writeLocal(t, "x"), "/zone/home/missing/a.txt", store.PutOptions{})
	assert.ErrorIs(t, err, store.ErrParentMissing)
}

func TestCatalog_ComputeChecksumRegisters(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	require.NoError(t, c.Put(ctx, writeLocal(t, "hello"), "/zone/home/a.txt", store.PutOptions{}))

	sum, err := c.ComputeChecksum(ctx, "/zone/home/a.txt")
	require.NoError(t, err)

	want, err := utils.FileChecksum(writeLocal(t, "hello"), utils.ChecksumSHA2)
	require.NoError(t, err)
	assert.Equal(t, want, sum)

	entry, err := c.Stat(ctx, "/zone/home/a.txt")
	require.NoError(t, err)
	assert.Equal(t, want, entry.Checksum)

	_, err = c.ComputeChecksum(ctx, "/zone/home")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalog_CreateCollection(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	err := c.CreateCollection(ctx, "/zone/home/a/b", false)
	assert.ErrorIs(t, err, store.ErrParentMissing)

	require.NoError(t, c.CreateCollection(ctx, "/zone/home/a/b", true))
	require.NoError(t, c.CreateCollection(ctx, "/zone/home/a", false), "existing collection is a no-op")

	entry, err := c.Stat(ctx, "/zone/home/a")
	require.NoError(t, err)
	assert.True(t, entry.IsCollection)

	ok, err := c.Exists(ctx, "/zone/home/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog_ListTree(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.CreateCollection(ctx, "/zone/home/proj/sub", true))
	require.NoError(t, c.CreateCollection(ctx, "/zone/home/proj_other", true))
	require.NoError(t, c.Put(ctx, writeLocal(t, "a"), "/zone/home/proj/a.txt", store.PutOptions{}))
	require.NoError(t, c.Put(ctx, writeLocal(t, "bb"), "/zone/home/proj/sub/b.txt", store.PutOptions{}))
	require.NoError(t, c.Put(ctx, writeLocal(t, "c"), "/zone/home/proj_other/c.txt", store.PutOptions{}))

	listing, err := c.ListTree(ctx, "/zone/home/proj")
	require.NoError(t, err)

	var objects, colls []string
	for _, e := range listing.DataObjects {
		objects = append(objects, e.Path)
	}
	for _, e := range listing.Collections {
		colls = append(colls, e.Path)
	}
	// "_" in proj_other must not match as a wildcard
	assert.Equal(t, []string{"/zone/home/proj/a.txt", "/zone/home/proj/sub/b.txt"}, objects)
	assert.Equal(t, []string{"/zone/home/proj/sub"}, colls)

	_, err = c.ListTree(ctx, "/zone/home/proj/a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalog_ListTreeIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.CreateCollection(ctx, "/zone/home/data", true))
	require.NoError(t, c.CreateCollection(ctx, "/zone/home/Data/sub", true))
	require.NoError(t, c.Put(ctx, writeLocal(t, "a"), "/zone/home/data/a.txt", store.PutOptions{}))
	require.NoError(t, c.Put(ctx, writeLocal(t, "0123456789"), "/zone/home/Data/big.bin", store.PutOptions{}))

	listing, err := c.ListTree(ctx, "/zone/home/data")
	require.NoError(t, err)
	require.Len(t, listing.DataObjects, 1)
	assert.Equal(t, "/zone/home/data/a.txt", listing.DataObjects[0].Path)
	assert.Empty(t, listing.Collections)

	listing, err = c.ListTree(ctx, "/zone/home/Data")
	require.NoError(t, err)
	require.Len(t, listing.DataObjects, 1)
	assert.Equal(t, "/zone/home/Data/big.bin", listing.DataObjects[0].Path)
	require.Len(t, listing.Collections, 1)
	assert.Equal(t, "/zone/home/Data/sub", listing.Collections[0].Path)
}

func TestCatalog_Metadata(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	item := store.MetadataItem{Key: "k", Value: "v"}
	require.NoError(t, c.AddMetadata(ctx, "/zone/home", item))
	assert.ErrorIs(t, c.AddMetadata(ctx, "/zone/home", item), store.ErrMetadataExists)
	require.NoError(t, c.AddMetadata(ctx, "/zone/home", store.MetadataItem{Key: "k", Value: "v", Units: "m"}))

	items, err := c.GetMetadata(ctx, "/zone/home")
	require.NoError(t, err)
	assert.Equal(t, []store.MetadataItem{
		{Key: "k", Value: "v"},
		{Key: "k", Value: "v", Units: "m"},
	}, items)

	require.NoError(t, c.RemoveMetadata(ctx, "/zone/home", item))
	assert.ErrorIs(t, c.RemoveMetadata(ctx, "/zone/home", item), store.ErrNotFound)

	assert.ErrorIs(t, c.AddMetadata(ctx, "/zone/nowhere", item), store.ErrNotFound)
}

func TestCatalog_ReadOnly(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, WithReadOnly())

	err := c.Put(ctx, writeLocal(t, "x"), "/zone/home/a.txt", store.PutOptions{})
	assert.ErrorIs(t, err, store.ErrPermissionDenied)
	assert.ErrorIs(t, c.CreateCollection(ctx, "/zone/home/x", true), store.ErrPermissionDenied)
	assert.ErrorIs(t, c.AddMetadata(ctx, "/zone/home", store.MetadataItem{Key: "k", Value: "v"}), store.ErrPermissionDenied)

	// reads still work
	ok, err := c.Exists(ctx, "/zone/home")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirBlobs_ReadMissing(t *testing.T) {
	blobs, err := NewDirBlobs(t.TempDir())
	require.NoError(t, err)
	_, err = blobs.Read(context.Background(), "abcdef")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, blobs.Delete(context.Background(), "abcdef"))
}
