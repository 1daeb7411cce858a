package treepath

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/openmined/treesync/internal/store"
)

type walkConfig struct {
	maxDepth *int
	exclude  *ExcludeList
}

type WalkOption func(*walkConfig)

// WithMaxDepth limits the walk to nodes whose relative path has fewer than
// depth segments. Without it the walk is unbounded.
func WithMaxDepth(depth *int) WalkOption {
	return func(c *walkConfig) {
		c.maxDepth = depth
	}
}

// WithExclude skips nodes (and the subtrees of containers) matched by the list.
func WithExclude(list *ExcludeList) WalkOption {
	return func(c *walkConfig) {
		c.exclude = list
	}
}

func (c *walkConfig) admits(rel RelPath, container bool) bool {
	if c.maxDepth != nil && rel.Depth() >= *c.maxDepth {
		return false
	}
	return !c.exclude.Excludes(rel, container)
}

func newWalkConfig(opts []WalkOption) *walkConfig {
	cfg := &walkConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WalkRemote enumerates everything below root with one ListTree call. Each
// collection is followed by its subcollections (sorted, each recursively)
// and then its data objects (sorted). The root itself is not yielded.
func WalkRemote(ctx context.Context, root RemotePath, opts ...WalkOption) iter.Seq2[Node, error] {
	cfg := newWalkConfig(opts)

	return func(yield func(Node, error) bool) {
		isColl, err := root.IsCollection(ctx)
		if err != nil {
			yield(Node{}, err)
			return
		}
		if !isColl {
			yield(Node{}, fmt.Errorf("walk %s: not a collection: %w", root.Path(), ErrNotFound))
			return
		}

		listing, err := root.client.ListTree(ctx, root.path)
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("walk %s: %w", root.path, ErrNotFound)
		}
		if err != nil {
			yield(Node{}, err)
			return
		}

		subColls := make(map[string][]store.Entry)
		for _, e := range listing.Collections {
			parent := path.Dir(e.Path)
			subColls[parent] = append(subColls[parent], e)
		}
		objects := make(map[string][]store.Entry)
		for _, e := range listing.DataObjects {
			parent := path.Dir(e.Path)
			objects[parent] = append(objects[parent], e)
		}
		byPath := func(a, b store.Entry) int { return strings.Compare(a.Path, b.Path) }

		var visit func(coll string) bool
		visit = func(coll string) bool {
			if err := ctx.Err(); err != nil {
				yield(Node{}, err)
				return false
			}

			children := subColls[coll]
			slices.SortFunc(children, byPath)
			for _, e := range children {
				node, err := remoteNode(root, e)
				if err != nil {
					yield(Node{}, err)
					return false
				}
				if !cfg.admits(node.Rel, true) {
					continue
				}
				if !yield(node, nil) || !visit(e.Path) {
					return false
				}
			}

			leaves := objects[coll]
			slices.SortFunc(leaves, byPath)
			for _, e := range leaves {
				node, err := remoteNode(root, e)
				if err != nil {
					yield(Node{}, err)
					return false
				}
				if !cfg.admits(node.Rel, false) {
					continue
				}
				if !yield(node, nil) {
					return false
				}
			}
			return true
		}

		visit(root.path)
	}
}

func remoteNode(root RemotePath, e store.Entry) (Node, error) {
	base := RemotePath{client: root.client, path: e.Path}
	rel, err := base.RelativeTo(root)
	if err != nil {
		return Node{}, err
	}

	cached := newCachedRemotePath(base, e.IsCollection, e.Size, e.Checksum)
	node := Node{
		Kind:   cached.Kind(),
		Rel:    rel,
		Remote: cached,
	}
	if !e.IsCollection {
		node.Size = e.Size
		node.Checksum = e.Checksum
	}
	return node, nil
}

// WalkLocal enumerates a local directory in the same order as WalkRemote.
// Symlinks are yielded as KindSymlink and never followed.
func WalkLocal(ctx context.Context, root LocalPath, opts ...WalkOption) iter.Seq2[Node, error] {
	cfg := newWalkConfig(opts)

	return func(yield func(Node, error) bool) {
		if !root.IsDir() {
			yield(Node{}, fmt.Errorf("walk %s: not a directory: %w", root.Path(), ErrNotFound))
			return
		}

		var visit func(dir LocalPath, rel RelPath) bool
		visit = func(dir LocalPath, rel RelPath) bool {
			if err := ctx.Err(); err != nil {
				yield(Node{}, err)
				return false
			}

			// sorted by name
			entries, err := os.ReadDir(dir.Path())
			if err != nil {
				yield(Node{}, fmt.Errorf("walk %s: %w", dir.Path(), err))
				return false
			}

			var leaves []Node
			for _, e := range entries {
				childRel := append(slices.Clip(rel), e.Name())
				if !cfg.admits(childRel, e.IsDir()) {
					continue
				}
				child := dir.Join(e.Name())

				switch mode := e.Type(); {
				case mode&fs.ModeSymlink != 0:
					leaves = append(leaves, Node{Kind: KindSymlink, Rel: childRel, Local: child})
				case mode.IsDir():
					if !yield(Node{Kind: KindDirectory, Rel: childRel, Local: child}, nil) {
						return false
					}
					if !visit(child, childRel) {
						return false
					}
				case mode.IsRegular():
					info, err := e.Info()
					if err != nil {
						yield(Node{}, fmt.Errorf("walk %s: %w", child.Path(), err))
						return false
					}
					leaves = append(leaves, Node{Kind: KindFile, Rel: childRel, Size: uint64(info.Size()), Local: child})
				default:
					slog.Debug("walk skip irregular file", "path", child.Path(), "mode", mode.String())
				}
			}

			for _, leaf := range leaves {
				if !yield(leaf, nil) {
					return false
				}
			}
			return true
		}

		visit(root, RelPath{})
	}
}
