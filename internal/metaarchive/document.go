package metaarchive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/utils"
)

// Version is written into every archive. Readers accept any 1.x archive.
const Version = "1.0"

const (
	KindCollection = "collection"
	KindDataObject = "data object"
)

var (
	ErrInvalidArchive = errors.New("invalid metadata archive")
	ErrPathMissing    = errors.New("archive item does not exist below the root")
)

// Document is a metadata archive: the key-value-units triples of a subtree,
// keyed by paths relative to RootPath.
type Document struct {
	Version   string `json:"version"`
	Recursive bool   `json:"recursive"`
	RootPath  string `json:"root_path"`
	Items     []Item `json:"items"`
}

type Item struct {
	RelPath string `json:"rel_path"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	// Checksum is only recorded for data objects.
	Checksum string   `json:"checksum,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Metadata encodes as [[key, value, units|null], ...]. Empty units are null.
type Metadata []store.MetadataItem

func (m Metadata) MarshalJSON() ([]byte, error) {
	rows := make([][]any, 0, len(m))
	for _, item := range m {
		var units any
		if item.Units != "" {
			units = item.Units
		}
		rows = append(rows, []any{item.Key, item.Value, units})
	}
	return utils.JSONMarshal(rows)
}

// rawDocument also carries the keys written by older archive writers.
type rawDocument struct {
	Version       string    `json:"version"`
	LegacyVersion string    `json:"ibridges_metadata_version"`
	Recursive     bool      `json:"recursive"`
	RootPath      string    `json:"root_path"`
	Items         []rawItem `json:"items"`
}

type rawItem struct {
	RelPath  string `json:"rel_path"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Checksum string `json:"checksum"`
	// ID is a store-specific object id some writers add; it is not kept.
	ID       any    `json:"irods_id"`
	Type     string `json:"type"`
	Metadata any    `json:"metadata"`
}

func Write(w io.Writer, doc *Document) error {
	if doc.Version == "" {
		doc.Version = Version
	}
	if doc.Items == nil {
		doc.Items = []Item{}
	}
	return utils.JSONEncodeIndent(w, doc)
}

// Read parses an archive. Unknown top-level keys are ignored.
func Read(r io.Reader) (*Document, error) {
	var raw rawDocument
	if err := utils.JSONDecode(r, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	version := raw.Version
	if version == "" {
		version = raw.LegacyVersion
	}
	if version != "1" && !strings.HasPrefix(version, "1.") {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidArchive, version)
	}

	doc := &Document{
		Version:   version,
		Recursive: raw.Recursive,
		RootPath:  raw.RootPath,
		Items:     make([]Item, 0, len(raw.Items)),
	}
	for i, ri := range raw.Items {
		meta, err := parseMetadata(ri.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d (%s): %w", ErrInvalidArchive, i, ri.RelPath, err)
		}
		kind := ri.Kind
		if kind == "" {
			kind = ri.Type
		}
		doc.Items = append(doc.Items, Item{
			RelPath:  ri.RelPath,
			Name:     ri.Name,
			Kind:     kind,
			Checksum: ri.Checksum,
			Metadata: meta,
		})
	}
	return doc, nil
}

// Save writes the archive to path atomically.
func Save(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if _, err := utils.WriteFileAtomic(path, &buf); err != nil {
		return fmt.Errorf("save archive %s: %w", path, err)
	}
	return nil
}

func Load(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	defer file.Close()
	return Read(file)
}

// parseMetadata accepts the triple list, or an object holding it under
// "metadata" as older writers produced.
func parseMetadata(v any) (Metadata, error) {
	if obj, ok := v.(map[string]any); ok {
		v = obj["metadata"]
	}
	if v == nil {
		return Metadata{}, nil
	}
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("metadata must be a list, got %T", v)
	}

	meta := make(Metadata, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.([]any)
		if !ok || len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("metadata entry must be [key, value, units]")
		}
		key, okKey := fields[0].(string)
		value, okValue := fields[1].(string)
		if !okKey || !okValue {
			return nil, fmt.Errorf("metadata key and value must be strings")
		}
		item := store.MetadataItem{Key: key, Value: value}
		if len(fields) == 3 && fields[2] != nil {
			units, ok := fields[2].(string)
			if !ok {
				return nil, fmt.Errorf("metadata units must be a string or null")
			}
			item.Units = units
		}
		meta = append(meta, item)
	}
	return meta, nil
}
