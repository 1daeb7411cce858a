package metaarchive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/treepath"
)

type ExportOptions struct {
	// Keys keeps only entries whose key matches one of these globs. Empty keeps all.
	Keys      []string
	Recursive bool
}

// CollectItems returns root followed by every node below it when recursive,
// or just root otherwise.
func CollectItems(ctx context.Context, root treepath.RemotePath, recursive bool) ([]treepath.Remote, error) {
	items := []treepath.Remote{root}
	if !recursive {
		return items, nil
	}
	for node, err := range treepath.WalkRemote(ctx, root) {
		if err != nil {
			return nil, err
		}
		items = append(items, node.Remote)
	}
	return items, nil
}

// Export reads the metadata of every item, recording it relative to root.
func Export(ctx context.Context, root treepath.RemotePath, items []treepath.Remote, opts ExportOptions) (*Document, error) {
	for _, pattern := range opts.Keys {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid key pattern %q", pattern)
		}
	}

	doc := &Document{
		Version:   Version,
		Recursive: opts.Recursive,
		RootPath:  root.Path(),
		Items:     make([]Item, 0, len(items)),
	}

	client := root.Client()
	for _, item := range items {
		rel, err := item.Base().RelativeTo(root)
		if err != nil {
			return nil, err
		}
		isColl, err := item.IsCollection(ctx)
		if err != nil {
			return nil, err
		}
		kind, checksum := KindCollection, ""
		if !isColl {
			kind = KindDataObject
			if checksum, err = item.Checksum(ctx); err != nil {
				return nil, fmt.Errorf("export %s: %w", item.Path(), err)
			}
		}

		all, err := client.GetMetadata(ctx, item.Path())
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", item.Path(), err)
		}
		doc.Items = append(doc.Items, Item{
			RelPath:  rel.String(),
			Name:     item.Base().Name(),
			Kind:     kind,
			Checksum: checksum,
			Metadata: filterKeys(all, opts.Keys),
		})
	}

	slog.Debug("metadata export", "root", root.Path(), "items", len(doc.Items))
	return doc, nil
}

type ImportResult struct {
	Items      int
	Added      int
	Duplicates int
}

// Import adds the archived metadata to the matching paths below root. Items
// already carrying an identical triple are left alone.
func Import(ctx context.Context, root treepath.RemotePath, doc *Document) (*ImportResult, error) {
	client := root.Client()
	result := &ImportResult{}

	for _, item := range doc.Items {
		rel, err := treepath.ParseRelPath(item.RelPath)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		target := root.Join(rel...)

		ok, err := target.Exists(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, fmt.Errorf("%s: %w", target.Path(), ErrPathMissing)
		}
		if item.Kind != "" {
			isColl, err := target.IsCollection(ctx)
			if err != nil {
				return result, err
			}
			if isColl != (item.Kind == KindCollection) {
				slog.Warn("metadata archive kind differs from target", "path", target.Path(), "archived", item.Kind)
			}
		}

		for _, meta := range item.Metadata {
			err := client.AddMetadata(ctx, target.Path(), meta)
			switch {
			case errors.Is(err, store.ErrMetadataExists):
				result.Duplicates++
			case err != nil:
				return result, fmt.Errorf("import %s: %w", target.Path(), err)
			default:
				result.Added++
			}
		}
		result.Items++
	}

	slog.Debug("metadata import", "root", root.Path(), "items", result.Items, "added", result.Added, "duplicates", result.Duplicates)
	return result, nil
}

func filterKeys(items []store.MetadataItem, patterns []string) Metadata {
	if len(patterns) == 0 {
		return Metadata(items)
	}
	out := Metadata{}
	for _, item := range items {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, item.Key); ok {
				out = append(out, item)
				break
			}
		}
	}
	return out
}
