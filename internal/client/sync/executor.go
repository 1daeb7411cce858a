package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/openmined/treesync/internal/metaarchive"
	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/utils"
)

// DefaultThreads is the thread hint handed to the store when none is set.
const DefaultThreads = 4

// TransferOptions are passed through to the store client. Extra keys that
// the executor sets itself are dropped with a warning.
type TransferOptions struct {
	Threads int
	Extra   map[string]string
}

// executorKeys are transfer options the executor always decides.
var executorKeys = mapset.NewSet("force", "resource", "threads", "register_checksum", "verify_checksum")

// splitExtra returns extra without the executor's own keys, and the sorted
// keys that were dropped. extra itself is never modified.
func splitExtra(extra map[string]string) (map[string]string, []string) {
	if len(extra) == 0 {
		return extra, nil
	}
	kept := make(map[string]string, len(extra))
	var dropped []string
	for k, v := range extra {
		if executorKeys.Contains(k) {
			dropped = append(dropped, k)
			continue
		}
		kept[k] = v
	}
	slices.Sort(dropped)
	return kept, dropped
}

// ProgressFunc receives the cumulative bytes transferred and the plan total.
type ProgressFunc func(done, total uint64)

type ExecuteOptions struct {
	Overwrite    bool
	IgnoreErrors bool
	ResourceName string
	Options      TransferOptions
	// Checksums should be the cache used for the diff that built the plan.
	Checksums *ChecksumCache
	Progress  ProgressFunc
	// MetaKeys filters exported metadata keys (doublestar globs).
	MetaKeys []string
}

type ExecutionReport struct {
	RunID              string        `json:"runId" yaml:"run_id"`
	StartedAt          time.Time     `json:"startedAt" yaml:"started_at"`
	Duration           time.Duration `json:"duration" yaml:"duration"`
	DirsCreated        int           `json:"dirsCreated" yaml:"dirs_created"`
	CollectionsCreated int           `json:"collectionsCreated" yaml:"collections_created"`
	Downloaded         int           `json:"downloaded" yaml:"downloaded"`
	Uploaded           int           `json:"uploaded" yaml:"uploaded"`
	Skipped            int           `json:"skipped" yaml:"skipped"`
	BytesTransferred   uint64        `json:"bytesTransferred" yaml:"bytes_transferred"`
	MetaExported       int           `json:"metaExported" yaml:"meta_exported"`
	MetaImported       int           `json:"metaImported" yaml:"meta_imported"`
	Warnings           []Warning     `json:"warnings" yaml:"warnings"`
}

// HasWarnings reports whether any operation was skipped or failed verification.
func (r *ExecutionReport) HasWarnings() bool {
	return len(r.Warnings) > 0
}

type executor struct {
	plan   *OperationPlan
	opts   ExecuteOptions
	report *ExecutionReport
	done   atomic.Uint64
	total  uint64
}

// Execute performs the plan: local directories, remote collections (parents
// first), downloads, uploads, metadata exports, then metadata imports. The
// plan itself is never modified. The context is checked between operations,
// never during one.
func (p *OperationPlan) Execute(ctx context.Context, opts ExecuteOptions) (*ExecutionReport, error) {
	if opts.Options.Threads <= 0 {
		opts.Options.Threads = DefaultThreads
	}
	extra, dropped := splitExtra(opts.Options.Extra)
	if len(dropped) > 0 {
		slog.Warn("some transfer options will be ignored", "keys", dropped)
	}
	opts.Options.Extra = extra

	e := &executor{
		plan: p,
		opts: opts,
		report: &ExecutionReport{
			RunID:     uuid.NewString(),
			StartedAt: time.Now(),
			Warnings:  []Warning{},
		},
		total: p.TotalBytes(),
	}

	slog.Info("execute plan",
		"runId", e.report.RunID,
		"uploads", len(p.Upload),
		"downloads", len(p.Download),
		"bytes", humanize.IBytes(e.total),
		"overwrite", opts.Overwrite,
		"ignoreErrors", opts.IgnoreErrors,
	)

	steps := []func(context.Context) error{
		e.createDirs,
		e.createCollections,
		e.downloads,
		e.uploads,
		e.metaExports,
		e.metaImports,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			e.finish()
			return e.report, err
		}
	}

	e.finish()
	slog.Info("execute done",
		"runId", e.report.RunID,
		"uploaded", e.report.Uploaded,
		"downloaded", e.report.Downloaded,
		"skipped", e.report.Skipped,
		"warnings", len(e.report.Warnings),
		"bytes", humanize.IBytes(e.report.BytesTransferred),
		"took", e.report.Duration,
	)
	return e.report, nil
}

func (e *executor) finish() {
	e.report.Duration = time.Since(e.report.StartedAt)
	e.report.BytesTransferred = e.done.Load()
}

// handle applies the ignore-errors policy to a failed operation.
func (e *executor) handle(op, path string, err error) error {
	if err == nil {
		return nil
	}
	err = classify(err)
	if !e.opts.IgnoreErrors {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	slog.Warn("operation skipped", "op", op, "path", path, "error", err)
	e.report.Skipped++
	e.report.Warnings = append(e.report.Warnings, Warning{
		Kind:    SkippedWarning,
		Op:      op,
		Path:    path,
		Message: err.Error(),
	})
	return nil
}

func (e *executor) createDirs(ctx context.Context) error {
	for _, dir := range e.plan.SortedDirs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := os.MkdirAll(dir.Path(), 0o755)
		if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, os.ErrExist) {
			// a file is in the way
			err = fmt.Errorf("%w: cannot create %s: %w", ErrPermission, dir.Path(), err)
		}
		if err == nil {
			e.report.DirsCreated++
		}
		if err := e.handle("create_dir", dir.Path(), err); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) createCollections(ctx context.Context) error {
	for _, coll := range e.plan.SortedCollections() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := coll.Client().CreateCollection(ctx, coll.Path(), true)
		if err == nil {
			e.report.CollectionsCreated++
		}
		if err := e.handle("create_collection", coll.Path(), err); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) downloads(ctx context.Context) error {
	for _, t := range e.plan.Download {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.handle("download", t.Remote.Path(), e.download(ctx, t)); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) download(ctx context.Context, t Transfer) error {
	if t.Local.Exists() && !e.opts.Overwrite {
		return fmt.Errorf("%s: %w", t.Local.Path(), ErrAlreadyExists)
	}

	err := t.Remote.Base().Client().Get(ctx, t.Remote.Path(), t.Local.Path(), store.GetOptions{
		Overwrite: e.opts.Overwrite,
		Resource:  e.opts.ResourceName,
		Threads:   e.opts.Options.Threads,
		Extra:     e.opts.Options.Extra,
	})
	if err != nil {
		return err
	}

	e.report.Downloaded++
	e.progress(t.Size)

	remoteSum := t.SourceChecksum
	if remoteSum == "" {
		remoteSum = e.opts.Checksums.knownChecksum(t.Remote)
	}
	if remoteSum != "" {
		localSum, err := t.Local.ChecksumAs(utils.ChecksumAlgorithm(remoteSum))
		if err != nil {
			e.unverified("download", t.Local.Path(), err)
			return nil
		}
		e.verify("download", t.Local.Path(), remoteSum, localSum)
	}
	return nil
}

func (e *executor) uploads(ctx context.Context) error {
	for _, t := range e.plan.Upload {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.upload(ctx, t)
		if errors.Is(err, store.ErrParentMissing) {
			// the plan should have created the parent collection
			return fmt.Errorf("upload %s: %w", t.Remote.Path(), err)
		}
		if err := e.handle("upload", t.Local.Path(), err); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) upload(ctx context.Context, t Transfer) error {
	remote := t.Remote.Base()
	exists, err := remote.Exists(ctx)
	if err != nil {
		return err
	}
	if exists && !e.opts.Overwrite {
		return fmt.Errorf("%s: %w", remote.Path(), ErrAlreadyExists)
	}

	err = remote.Client().Put(ctx, t.Local.Path(), remote.Path(), store.PutOptions{
		Overwrite:        e.opts.Overwrite,
		Resource:         e.opts.ResourceName,
		Threads:          e.opts.Options.Threads,
		RegisterChecksum: true,
		Extra:            e.opts.Options.Extra,
	})
	if err != nil {
		return err
	}
	e.opts.Checksums.Invalidate(remote.Path())

	e.report.Uploaded++
	e.progress(t.Size)

	remoteSum, err := remote.Checksum(ctx)
	if err != nil {
		e.unverified("upload", remote.Path(), err)
		return nil
	}
	e.opts.Checksums.Add(remote.Path(), remoteSum)
	localSum, err := t.Local.ChecksumAs(utils.ChecksumAlgorithm(remoteSum))
	if err != nil {
		e.unverified("upload", remote.Path(), err)
		return nil
	}
	e.verify("upload", remote.Path(), localSum, remoteSum)
	return nil
}

func (e *executor) verify(op, path, want, got string) {
	if utils.ChecksumsEqual(want, got) {
		return
	}
	slog.Warn("checksum mismatch after transfer", "op", op, "path", path, "expected", want, "actual", got)
	e.report.Warnings = append(e.report.Warnings, Warning{
		Kind:    ChecksumMismatchWarning,
		Op:      op,
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %s", want, got),
	})
}

// unverified records a transfer that completed but could not be checked. It
// is counted as transferred, never as skipped.
func (e *executor) unverified(op, path string, err error) {
	slog.Warn("transfer not verified", "op", op, "path", path, "error", err)
	e.report.Warnings = append(e.report.Warnings, Warning{
		Kind:    UnverifiedWarning,
		Op:      op,
		Path:    path,
		Message: err.Error(),
	})
}

func (e *executor) progress(size uint64) {
	done := e.done.Add(size)
	if e.opts.Progress != nil {
		e.opts.Progress(done, e.total)
	}
}

func (e *executor) metaExports(ctx context.Context) error {
	for _, op := range e.plan.MetaExport {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.metaExport(ctx, op)
		if err == nil {
			e.report.MetaExported++
		}
		if err := e.handle("meta_export", op.File, err); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) metaExport(ctx context.Context, op *MetaExportOp) error {
	doc, err := metaarchive.Export(ctx, op.Root, op.Items, metaarchive.ExportOptions{
		Keys:      e.opts.MetaKeys,
		Recursive: true,
	})
	if err != nil {
		return err
	}
	return metaarchive.Save(op.File, doc)
}

func (e *executor) metaImports(ctx context.Context) error {
	for _, op := range e.plan.MetaImport {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.metaImport(ctx, op)
		if err == nil {
			e.report.MetaImported++
		}
		if err := e.handle("meta_import", op.File, err); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) metaImport(ctx context.Context, op *MetaImportOp) error {
	doc, err := metaarchive.Load(op.File)
	if err != nil {
		return err
	}
	res, err := metaarchive.Import(ctx, op.Root, doc)
	if err != nil {
		return err
	}
	slog.Info("metadata imported", "file", op.File, "root", op.Root.Path(), "added", res.Added, "duplicates", res.Duplicates)
	return nil
}
