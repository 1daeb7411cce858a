package sync

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/treesync/internal/metaarchive"
	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/store/catalog"
	"github.com/openmined/treesync/internal/treepath"
	"github.com/openmined/treesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_OverwritePolicy(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "X")
	f.putRemote("a.txt", "Y")

	plan := f.mustPlan(f.upload(DiffOptions{}))
	require.Len(t, plan.Upload, 1)

	_, err := plan.Execute(f.ctx, ExecuteOptions{Overwrite: false})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	report := f.execute(plan, ExecuteOptions{Overwrite: true})
	assert.Equal(t, 1, report.Uploaded)
	assert.Empty(t, report.Warnings)

	want, err := utils.FileChecksum(f.local.Join("a.txt").Path(), utils.ChecksumSHA2)
	require.NoError(t, err)
	assert.Equal(t, want, f.remoteEntry("a.txt").Checksum)
}

func TestExecute_IgnoreErrorsRecordsWarning(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "X")
	f.writeLocal("b.txt", "new")
	f.putRemote("a.txt", "Y")

	plan := f.mustPlan(f.upload(DiffOptions{}))
	require.Len(t, plan.Upload, 2)

	report := f.execute(plan, ExecuteOptions{IgnoreErrors: true})
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, SkippedWarning, report.Warnings[0].Kind)
	assert.Equal(t, "upload", report.Warnings[0].Op)
}

func TestExecute_Idempotence(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "a")
	f.writeLocal("sub/b.txt", "bb")
	f.writeLocal("sub/deeper/c.txt", "ccc")
	f.mkdirLocal("empty")

	opts := DiffOptions{CopyEmptyDirs: true}
	plan := f.mustPlan(f.upload(opts))
	f.execute(plan, ExecuteOptions{})

	again := f.mustPlan(f.upload(opts))
	assert.True(t, again.IsEmpty(), again.Summary().String())
}

func TestExecute_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "alpha")
	f.writeLocal("x/y/z.bin", strings.Repeat("z", 4096))
	f.writeLocal("x/w.txt", "w")

	f.execute(f.mustPlan(f.upload(DiffOptions{})), ExecuteOptions{})

	copyDir, err := treepath.NewLocalPath(t.TempDir())
	require.NoError(t, err)
	down := f.mustPlan(Diff(f.ctx, Remote(f.remote), Local(copyDir), DiffOptions{}))
	report := f.execute(down, ExecuteOptions{})
	assert.Equal(t, 3, report.Downloaded)
	assert.Empty(t, report.Warnings)

	data, err := os.ReadFile(copyDir.Join("x", "y", "z.bin").Path())
	require.NoError(t, err)
	assert.Len(t, data, 4096)

	assert.True(t, f.mustPlan(Diff(f.ctx, Local(f.local), Remote(f.remote), DiffOptions{})).IsEmpty())
	assert.True(t, f.mustPlan(Diff(f.ctx, Remote(f.remote), Local(copyDir), DiffOptions{})).IsEmpty())
}

func TestExecute_DownloadOverwrite(t *testing.T) {
	f := newFixture(t)
	f.putRemote("a.txt", "remote")
	f.writeLocal("a.txt", "local!")

	plan := f.mustPlan(f.download(DiffOptions{Checksums: NewChecksumCache(0)}))
	require.Len(t, plan.Download, 1)

	_, err := plan.Execute(f.ctx, ExecuteOptions{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, "local!", f.readLocal("a.txt"))

	report := f.execute(plan, ExecuteOptions{Overwrite: true})
	assert.Equal(t, 1, report.Downloaded)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, "remote", f.readLocal("a.txt"))
}

func TestExecute_ChecksumMismatchIsWarning(t *testing.T) {
	f := newFixture(t)
	f.putRemote("a.txt", "content")

	plan := NewOperationPlan()
	cached := f.mustPlan(f.download(DiffOptions{}))
	require.Len(t, cached.Download, 1)
	transfer := cached.Download[0]
	transfer.SourceChecksum = "sha2:bm90IHRoZSByaWdodCBjaGVja3N1bQ=="
	plan.AddDownload(transfer)

	report, err := plan.Execute(f.ctx, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, ChecksumMismatchWarning, report.Warnings[0].Kind)
	assert.Equal(t, "content", f.readLocal("a.txt"))
}

func TestExecute_UnverifiableTransferCountedOnce(t *testing.T) {
	f := newFixture(t)
	f.putRemote("a.txt", "content")

	plan := NewOperationPlan()
	cached := f.mustPlan(f.download(DiffOptions{}))
	require.Len(t, cached.Download, 1)
	transfer := cached.Download[0]
	transfer.SourceChecksum = "crc32:AAAAAA=="
	plan.AddDownload(transfer)

	for _, ignore := range []bool{false, true} {
		report, err := plan.Execute(f.ctx, ExecuteOptions{Overwrite: true, IgnoreErrors: ignore})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Downloaded)
		assert.Equal(t, 0, report.Skipped)
		require.Len(t, report.Warnings, 1)
		assert.Equal(t, UnverifiedWarning, report.Warnings[0].Kind)
		assert.Equal(t, "download", report.Warnings[0].Op)
		assert.Equal(t, "content", f.readLocal("a.txt"))
	}
}

func TestSplitExtra(t *testing.T) {
	extra := map[string]string{"force": "", "threads": "9", "checksum_algo": "sha2"}

	kept, dropped := splitExtra(extra)
	assert.Equal(t, map[string]string{"checksum_algo": "sha2"}, kept)
	assert.Equal(t, []string{"force", "threads"}, dropped)
	assert.Len(t, extra, 3)

	kept, dropped = splitExtra(nil)
	assert.Nil(t, kept)
	assert.Empty(t, dropped)
}

func TestExecute_IgnoresExecutorKeysInExtra(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "a")
	f.putRemote("a.txt", "b")

	plan := f.mustPlan(f.upload(DiffOptions{}))
	require.Len(t, plan.Upload, 1)

	// a caller-supplied force flag must not override the overwrite policy
	_, err := plan.Execute(f.ctx, ExecuteOptions{Options: TransferOptions{Extra: map[string]string{"force": ""}}})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestExecute_PermissionDenied(t *testing.T) {
	f := newFixture(t, catalog.WithReadOnly())
	f.writeLocal("a.txt", "a")
	f.writeLocal("sub/b.txt", "b")

	plan := f.mustPlan(f.upload(DiffOptions{}))
	_, err := plan.Execute(f.ctx, ExecuteOptions{})
	assert.ErrorIs(t, err, ErrPermission)
	assert.ErrorIs(t, err, store.ErrPermissionDenied)
}

func TestExecute_LocalPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	f := newFixture(t)
	f.writeLocal("secret.txt", "s")
	require.NoError(t, os.Chmod(f.local.Join("secret.txt").Path(), 0o000))
	t.Cleanup(func() { os.Chmod(f.local.Join("secret.txt").Path(), 0o644) })

	plan := f.mustPlan(f.upload(DiffOptions{}))
	_, err := plan.Execute(f.ctx, ExecuteOptions{})
	assert.ErrorIs(t, err, ErrPermission)
}

func TestExecute_CreateDirBlockedByFile(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("blocker", "file")

	plan := NewOperationPlan()
	plan.AddCreateDir(f.local.Join("blocker", "sub"))
	_, err := plan.Execute(f.ctx, ExecuteOptions{})
	assert.ErrorIs(t, err, ErrPermission)
}

func TestExecute_MissingRemoteParentPropagates(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "a")

	plan := NewOperationPlan()
	plan.AddUpload(Transfer{Local: f.local.Join("a.txt"), Remote: f.remote.Join("missing", "a.txt"), Size: 1})

	_, err := plan.Execute(f.ctx, ExecuteOptions{IgnoreErrors: true})
	assert.ErrorIs(t, err, store.ErrParentMissing)
}

func TestExecute_ProgressAndPlanUnchanged(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "12345")
	f.writeLocal("b/c.txt", "123")

	plan := f.mustPlan(f.upload(DiffOptions{}))
	before := plan.Summary()

	var seen []uint64
	report := f.execute(plan, ExecuteOptions{Progress: func(done, total uint64) {
		assert.EqualValues(t, 8, total)
		seen = append(seen, done)
	}})

	// subdirectories are walked before sibling files
	assert.Equal(t, []uint64{3, 8}, seen)
	assert.EqualValues(t, 8, report.BytesTransferred)
	assert.Equal(t, 1, report.CollectionsCreated)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, before, plan.Summary())
}

func TestExecute_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("a.txt", "a")
	plan := f.mustPlan(f.upload(DiffOptions{}))

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	report, err := plan.Execute(ctx, ExecuteOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Uploaded)
}

func TestExecute_MetadataThroughSync(t *testing.T) {
	f := newFixture(t)
	f.putRemote("a.txt", "a")
	item := store.MetadataItem{Key: "k", Value: "v"}
	require.NoError(t, f.client.AddMetadata(f.ctx, f.remote.Path(), item))
	require.NoError(t, f.client.AddMetadata(f.ctx, f.remote.Path()+"/a.txt", store.MetadataItem{Key: "size", Value: "1", Units: "B"}))

	archive := filepath.Join(t.TempDir(), "meta.json")
	report := f.execute(f.mustPlan(f.download(DiffOptions{MetadataArchive: archive})), ExecuteOptions{})
	assert.Equal(t, 1, report.MetaExported)

	doc, err := metaarchive.Load(archive)
	require.NoError(t, err)
	assert.Equal(t, f.remote.Path(), doc.RootPath)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, ".", doc.Items[0].RelPath)

	// wipe the metadata and restore it with an upload sync
	require.NoError(t, f.client.RemoveMetadata(f.ctx, f.remote.Path(), item))
	report = f.execute(f.mustPlan(f.upload(DiffOptions{MetadataArchive: archive})), ExecuteOptions{})
	assert.Equal(t, 1, report.MetaImported)

	got, err := f.client.GetMetadata(f.ctx, f.remote.Path())
	require.NoError(t, err)
	assert.Equal(t, []store.MetadataItem{item}, got)
}

func TestPlan_SummaryFormats(t *testing.T) {
	f := newFixture(t)
	f.writeLocal("dir/a.txt", "hello")
	plan := f.mustPlan(f.upload(DiffOptions{}))

	var text bytes.Buffer
	require.NoError(t, plan.PrintSummary(&text))
	assert.Contains(t, text.String(), "Create collections:")
	assert.Contains(t, text.String(), "Upload files:")
	assert.Contains(t, text.String(), f.remote.Path()+"/dir/a.txt")

	var js bytes.Buffer
	require.NoError(t, plan.Summary().WriteJSON(&js))
	assert.Contains(t, js.String(), `"direction": "upload"`)

	var ym bytes.Buffer
	require.NoError(t, plan.Summary().WriteYAML(&ym))
	assert.Contains(t, ym.String(), "direction: upload")
	assert.Contains(t, ym.String(), "total_bytes: 5")

	var empty bytes.Buffer
	require.NoError(t, NewOperationPlan().PrintSummary(&empty))
	assert.Equal(t, "Nothing to do.\n", empty.String())
}
