package metaarchive

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/treesync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_Format(t *testing.T) {
	doc := &Document{
		Recursive: true,
		RootPath:  "/zone/home/proj",
		Items: []Item{{
			RelPath: ".",
			Kind:    KindCollection,
			Metadata: Metadata{
				{Key: "k", Value: "v"},
				{Key: "mass", Value: "10", Units: "kg"},
			},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))

	out := buf.String()
	assert.Contains(t, out, `"version": "1.0"`)
	assert.Contains(t, out, `"root_path": "/zone/home/proj"`)
	assert.Contains(t, out, `"kind": "collection"`)
	compact := strings.Join(strings.Fields(out), "")
	assert.Contains(t, compact, `["k","v",null]`)
	assert.Contains(t, compact, `["mass","10","kg"]`)

	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc.Items, back.Items)
	assert.True(t, back.Recursive)
}

func TestRead_IgnoresUnknownKeys(t *testing.T) {
	doc, err := Read(strings.NewReader(`{
		"version": "1.0",
		"generator": "something else",
		"recursive": false,
		"root_path": "/a",
		"items": [{"rel_path": "x.txt", "kind": "data object", "metadata": [["k", "v"]]}]
	}`))
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, Metadata{{Key: "k", Value: "v"}}, doc.Items[0].Metadata)
}

func TestRead_LegacyLayout(t *testing.T) {
	doc, err := Read(strings.NewReader(`{
		"ibridges_metadata_version": "1.0",
		"recursive": true,
		"root_path": "/zone/home/proj",
		"items": [{
			"rel_path": "sub",
			"type": "collection",
			"irods_id": 10012,
			"metadata": {"name": "sub", "irods_id": 10012, "metadata": [["k", "v", null]]}
		}, {
			"rel_path": "sub/x.bin",
			"name": "x.bin",
			"type": "data object",
			"irods_id": 10013,
			"checksum": "sha2:AAAA",
			"metadata": []
		}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "1.0", doc.Version)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, KindCollection, doc.Items[0].Kind)
	assert.Equal(t, Metadata{{Key: "k", Value: "v"}}, doc.Items[0].Metadata)
	assert.Equal(t, Item{
		RelPath:  "sub/x.bin",
		Name:     "x.bin",
		Kind:     KindDataObject,
		Checksum: "sha2:AAAA",
		Metadata: Metadata{},
	}, doc.Items[1])
}

func TestRead_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{{`},
		{"missing version", `{"items": []}`},
		{"future version", `{"version": "2.0", "items": []}`},
		{"bad triple", `{"version": "1.0", "items": [{"rel_path": ".", "metadata": [["only-key"]]}]}`},
		{"non string units", `{"version": "1.0", "items": [{"rel_path": ".", "metadata": [["k", "v", 3]]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrInvalidArchive)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	doc := &Document{RootPath: "/a", Items: []Item{{RelPath: ".", Kind: KindCollection, Metadata: Metadata{{Key: "k", Value: "v"}}}}}
	require.NoError(t, Save(path, doc))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []store.MetadataItem{{Key: "k", Value: "v"}}, []store.MetadataItem(back.Items[0].Metadata))
}
