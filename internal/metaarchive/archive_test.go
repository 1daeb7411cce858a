package metaarchive

import (
	"bytes"
	"context"
	"testing"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/store/storetest"
	"github.com/openmined/treesync/internal/treepath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, client store.Client, root string) {
	t.Helper()
	storetest.PutBytes(t, client, root+"/a.txt", []byte("a"))
	storetest.PutBytes(t, client, root+"/sub/b.txt", []byte("b"))
}

func TestExportImport_Scenario(t *testing.T) {
	ctx := context.Background()
	client := storetest.NewCatalog(t)
	buildTree(t, client, storetest.Home+"/proj")
	root := treepath.NewRemotePath(client, storetest.Home, "proj")

	item := store.MetadataItem{Key: "k", Value: "v"}
	require.NoError(t, client.AddMetadata(ctx, root.Path(), item))

	doc, err := Export(ctx, root, []treepath.Remote{root}, ExportOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, ".", doc.Items[0].RelPath)

	require.NoError(t, client.RemoveMetadata(ctx, root.Path(), item))

	res, err := Import(ctx, root, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	got, err := client.GetMetadata(ctx, root.Path())
	require.NoError(t, err)
	assert.Equal(t, []store.MetadataItem{item}, got)

	// importing again duplicates nothing
	res, err = Import(ctx, root, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Duplicates)

	got, err = client.GetMetadata(ctx, root.Path())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExportImport_RoundTripIntoEmptyTree(t *testing.T) {
	ctx := context.Background()
	client := storetest.NewCatalog(t)
	buildTree(t, client, storetest.Home+"/one")
	buildTree(t, client, storetest.Home+"/two")

	one := treepath.NewRemotePath(client, storetest.Home, "one")
	two := treepath.NewRemotePath(client, storetest.Home, "two")

	want := map[string][]store.MetadataItem{
		".":         {{Key: "project", Value: "x"}},
		"a.txt":     {{Key: "mass", Value: "10", Units: "kg"}, {Key: "mass", Value: "12", Units: "kg"}},
		"sub":       {{Key: "k", Value: "v"}},
		"sub/b.txt": {{Key: "k", Value: "v"}, {Key: "k", Value: "v", Units: "u"}},
	}
	for rel, items := range want {
		for _, item := range items {
			require.NoError(t, client.AddMetadata(ctx, one.Join(rel).Path(), item))
		}
	}

	items, err := CollectItems(ctx, one, true)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	doc, err := Export(ctx, one, items, ExportOptions{Recursive: true})
	require.NoError(t, err)

	_, err = Import(ctx, two, doc)
	require.NoError(t, err)

	for rel, items := range want {
		got, err := client.GetMetadata(ctx, two.Join(rel).Path())
		require.NoError(t, err)
		assert.ElementsMatch(t, items, got, rel)
	}
}

func TestExport_RecordsNameAndChecksum(t *testing.T) {
	ctx := context.Background()
	client := storetest.NewCatalog(t)
	buildTree(t, client, storetest.Home+"/proj")
	root := treepath.NewRemotePath(client, storetest.Home, "proj")

	items, err := CollectItems(ctx, root, true)
	require.NoError(t, err)
	doc, err := Export(ctx, root, items, ExportOptions{Recursive: true})
	require.NoError(t, err)

	byRel := map[string]Item{}
	for _, item := range doc.Items {
		byRel[item.RelPath] = item
	}
	require.Len(t, byRel, 4)

	assert.Equal(t, "proj", byRel["."].Name)
	assert.Equal(t, "sub", byRel["sub"].Name)
	assert.Empty(t, byRel["sub"].Checksum)

	want, err := root.Join("sub", "b.txt").Checksum(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", byRel["sub/b.txt"].Name)
	assert.Equal(t, want, byRel["sub/b.txt"].Checksum)
	assert.NotEmpty(t, byRel["a.txt"].Checksum)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))
	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc.Items, back.Items)
}

func TestExport_KeyFilter(t *testing.T) {
	ctx := context.Background()
	client := storetest.NewCatalog(t)
	buildTree(t, client, storetest.Home+"/proj")
	root := treepath.NewRemotePath(client, storetest.Home, "proj")

	require.NoError(t, client.AddMetadata(ctx, root.Path(), store.MetadataItem{Key: "dc.title", Value: "t"}))
	require.NoError(t, client.AddMetadata(ctx, root.Path(), store.MetadataItem{Key: "internal", Value: "i"}))

	doc, err := Export(ctx, root, []treepath.Remote{root}, ExportOptions{Keys: []string{"dc.*"}})
	require.NoError(t, err)
	assert.Equal(t, Metadata{{Key: "dc.title", Value: "t"}}, doc.Items[0].Metadata)

	_, err = Export(ctx, root, []treepath.Remote{root}, ExportOptions{Keys: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestImport_PathMissing(t *testing.T) {
	ctx := context.Background()
	client := storetest.NewCatalog(t)
	buildTree(t, client, storetest.Home+"/proj")
	root := treepath.NewRemotePath(client, storetest.Home, "proj")

	doc := &Document{Version: Version, Items: []Item{{RelPath: "nope.txt", Metadata: Metadata{{Key: "k", Value: "v"}}}}}
	_, err := Import(ctx, root, doc)
	assert.ErrorIs(t, err, ErrPathMissing)

	doc.Items[0].RelPath = "../escape"
	_, err = Import(ctx, root, doc)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}
