package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/treesync/internal/treepath"
	"github.com/openmined/treesync/internal/utils"
	"golang.org/x/sync/errgroup"
)

type DiffOptions struct {
	// MaxDepth bounds both walks; nil means unlimited.
	MaxDepth *int
	// CopyEmptyDirs creates source containers that have no children after depth truncation.
	CopyEmptyDirs bool
	// IgnoreChecksum treats equal sizes as in sync.
	IgnoreChecksum bool
	// Exclude is applied to relative paths on both sides.
	Exclude *treepath.ExcludeList
	// Checksums caches remote checksums computed by the store for this run.
	Checksums *ChecksumCache
	// MetadataArchive, when set, adds a metadata export (download) or import
	// (upload) of that archive file to the plan.
	MetadataArchive string
}

// Diff walks source and target and returns the operations that bring target
// in sync with source. Exactly one of them must be remote.
func Diff(ctx context.Context, source, target Endpoint, opts DiffOptions) (*OperationPlan, error) {
	dir, err := direction(source, target)
	if err != nil {
		return nil, fmt.Errorf("diff %s -> %s: %w", source, target, err)
	}
	if err := checkRoot(ctx, source); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := checkRoot(ctx, target); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	start := time.Now()
	walkOpts := []treepath.WalkOption{treepath.WithMaxDepth(opts.MaxDepth), treepath.WithExclude(opts.Exclude)}

	var srcNodes []treepath.Node
	var tgtNodes map[string]treepath.Node

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nodes, err := walkEndpoint(gctx, source, walkOpts)
		srcNodes = nodes
		return err
	})
	g.Go(func() error {
		nodes, err := walkEndpoint(gctx, target, walkOpts)
		if err != nil {
			return err
		}
		tgtNodes = make(map[string]treepath.Node, len(nodes))
		for _, n := range nodes {
			tgtNodes[n.Rel.String()] = n
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &differ{
		ctx:       ctx,
		opts:      opts,
		direction: dir,
		source:    source,
		target:    target,
		targets:   tgtNodes,
		scheduled: mapset.NewThreadUnsafeSet[string](),
		plan:      NewOperationPlan(),
	}
	d.plan.Direction = dir
	d.plan.Source = source
	d.plan.Target = target

	if err := d.run(srcNodes); err != nil {
		return nil, err
	}

	slog.Info("diff",
		"direction", dir,
		"source", source,
		"target", target,
		"sourceNodes", len(srcNodes),
		"targetNodes", len(tgtNodes),
		"uploads", len(d.plan.Upload),
		"downloads", len(d.plan.Download),
		"dirs", d.plan.CreateDir.Cardinality(),
		"collections", d.plan.CreateCollection.Cardinality(),
		"cachedChecksums", d.opts.Checksums.Len(),
		"took", time.Since(start),
	)
	return d.plan, nil
}

type differ struct {
	ctx       context.Context
	opts      DiffOptions
	direction Direction
	source    Endpoint
	target    Endpoint
	targets   map[string]treepath.Node
	// relative paths of containers already scheduled for creation
	scheduled mapset.Set[string]
	plan      *OperationPlan
}

func (d *differ) run(srcNodes []treepath.Node) error {
	// containers with at least one surviving child
	nonEmpty := mapset.NewThreadUnsafeSet[string]()
	for _, n := range srcNodes {
		if n.Kind != treepath.KindSymlink {
			nonEmpty.Add(n.Rel.Parent().String())
		}
	}

	for _, src := range srcNodes {
		if err := d.ctx.Err(); err != nil {
			return err
		}

		if src.Kind == treepath.KindSymlink {
			slog.Warn("skipping symbolic link", "path", src.Path())
			d.plan.SkippedSymlinks = append(d.plan.SkippedSymlinks, src.Local)
			continue
		}

		tgt, exists := d.targets[src.Rel.String()]
		if exists && tgt.Kind == treepath.KindSymlink {
			slog.Warn("skipping path that is a symbolic link on the target", "path", tgt.Path())
			d.plan.SkippedSymlinks = append(d.plan.SkippedSymlinks, tgt.Local)
			continue
		}
		if exists && src.Kind.IsLeaf() != tgt.Kind.IsLeaf() {
			return fmt.Errorf("%s is a %s in the source and a %s in the target: %w",
				src.Rel, src.Kind, tgt.Kind, ErrTypeMismatch)
		}

		if src.Kind.IsContainer() {
			if !exists && d.opts.CopyEmptyDirs && !nonEmpty.Contains(src.Rel.String()) {
				d.scheduleContainer(src.Rel)
			}
			continue
		}

		if exists {
			same, err := d.inSync(src, tgt)
			if err != nil {
				return err
			}
			if same {
				continue
			}
		}
		d.scheduleTransfer(src)
	}

	if d.opts.MetadataArchive != "" {
		d.addMetadataOps(srcNodes)
	}
	return nil
}

// inSync compares a source leaf with the target leaf at the same relative path.
func (d *differ) inSync(src, tgt treepath.Node) (bool, error) {
	if src.Size != tgt.Size {
		return false, nil
	}
	if d.opts.IgnoreChecksum {
		return true, nil
	}

	remote, local := src, tgt
	if d.direction == Upload {
		remote, local = tgt, src
	}

	remoteSum, err := d.opts.Checksums.remoteChecksum(d.ctx, remote.Remote)
	if err != nil {
		return false, err
	}
	localSum, err := local.Local.ChecksumAs(utils.ChecksumAlgorithm(remoteSum))
	if err != nil {
		return false, err
	}
	return utils.ChecksumsEqual(remoteSum, localSum), nil
}

func (d *differ) scheduleTransfer(src treepath.Node) {
	d.scheduleContainer(src.Rel.Parent())

	switch d.direction {
	case Upload:
		d.plan.AddUpload(Transfer{
			Local:  src.Local,
			Remote: d.remoteTarget().Join(src.Rel...),
			Size:   src.Size,
		})
	case Download:
		d.plan.AddDownload(Transfer{
			Local:          d.localTarget().Join(src.Rel...),
			Remote:         src.Remote,
			Size:           src.Size,
			SourceChecksum: d.opts.Checksums.knownChecksum(src.Remote),
		})
	}
}

// scheduleContainer schedules rel and every missing ancestor of it for
// creation on the target side. The target root always exists.
func (d *differ) scheduleContainer(rel treepath.RelPath) {
	for i := len(rel); i > 0; i-- {
		key := treepath.RelPath(rel[:i]).String()
		if _, exists := d.targets[key]; exists {
			return
		}
		if !d.scheduled.Add(key) {
			return
		}
		switch d.direction {
		case Upload:
			d.plan.AddCreateCollection(d.remoteTarget().Join(rel[:i]...))
		case Download:
			d.plan.AddCreateDir(d.localTarget().Join(rel[:i]...))
		}
	}
}

func (d *differ) addMetadataOps(srcNodes []treepath.Node) {
	switch d.direction {
	case Download:
		root := d.source.(RemoteEndpoint).Path
		d.plan.AddMetaExport(root, root, d.opts.MetadataArchive)
		for _, n := range srcNodes {
			if n.Remote != nil {
				d.plan.AddMetaExport(root, n.Remote, d.opts.MetadataArchive)
			}
		}
	case Upload:
		d.plan.AddMetaImport(d.remoteTarget(), d.opts.MetadataArchive)
	}
}

func (d *differ) remoteTarget() treepath.RemotePath {
	return d.target.(RemoteEndpoint).Path
}

func (d *differ) localTarget() treepath.LocalPath {
	return d.target.(LocalEndpoint).Path
}

func checkRoot(ctx context.Context, e Endpoint) error {
	switch e := e.(type) {
	case LocalEndpoint:
		if !e.Path.IsDir() {
			return fmt.Errorf("directory %s: %w", e.Path, treepath.ErrNotFound)
		}
	case RemoteEndpoint:
		ok, err := e.Path.IsCollection(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("collection %s: %w", e.Path, treepath.ErrNotFound)
		}
	}
	return nil
}

func walkEndpoint(ctx context.Context, e Endpoint, opts []treepath.WalkOption) ([]treepath.Node, error) {
	var nodes []treepath.Node
	var seq func(func(treepath.Node, error) bool)
	switch e := e.(type) {
	case LocalEndpoint:
		seq = treepath.WalkLocal(ctx, e.Path, opts...)
	case RemoteEndpoint:
		seq = treepath.WalkRemote(ctx, e.Path, opts...)
	}
	for node, err := range seq {
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
