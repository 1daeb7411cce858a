package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/store/catalog"
	"github.com/openmined/treesync/internal/store/storetest"
	"github.com/openmined/treesync/internal/treepath"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	client *catalog.Catalog
	local  treepath.LocalPath
	remote treepath.RemotePath
}

func newFixture(t *testing.T, opts ...catalog.Option) *fixture {
	t.Helper()
	opts = append(opts, catalog.WithCollections(storetest.Home+"/proj"))
	client := storetest.NewCatalog(t, opts...)

	local, err := treepath.NewLocalPath(t.TempDir())
	require.NoError(t, err)

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		client: client,
		local:  local,
		remote: treepath.NewRemotePath(client, storetest.Home, "proj"),
	}
}

func (f *fixture) writeLocal(rel, content string) {
	f.t.Helper()
	storetest.WriteFile(f.t, filepath.Join(f.local.Path(), filepath.FromSlash(rel)), []byte(content))
}

func (f *fixture) mkdirLocal(rel string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(filepath.Join(f.local.Path(), filepath.FromSlash(rel)), 0o755))
}

func (f *fixture) readLocal(rel string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.local.Path(), filepath.FromSlash(rel)))
	require.NoError(f.t, err)
	return string(data)
}

func (f *fixture) putRemote(rel, content string) {
	f.t.Helper()
	storetest.PutBytes(f.t, f.client, f.remote.Path()+"/"+rel, []byte(content))
}

func (f *fixture) mkdirRemote(rel string) {
	f.t.Helper()
	require.NoError(f.t, f.client.CreateCollection(f.ctx, f.remote.Path()+"/"+rel, true))
}

func (f *fixture) upload(opts DiffOptions) (*OperationPlan, error) {
	return Diff(f.ctx, Local(f.local), Remote(f.remote), opts)
}

func (f *fixture) download(opts DiffOptions) (*OperationPlan, error) {
	return Diff(f.ctx, Remote(f.remote), Local(f.local), opts)
}

func (f *fixture) mustPlan(plan *OperationPlan, err error) *OperationPlan {
	f.t.Helper()
	require.NoError(f.t, err)
	return plan
}

func (f *fixture) execute(plan *OperationPlan, opts ExecuteOptions) *ExecutionReport {
	f.t.Helper()
	report, err := plan.Execute(f.ctx, opts)
	require.NoError(f.t, err)
	return report
}

func (f *fixture) remoteEntry(rel string) *store.Entry {
	f.t.Helper()
	entry, err := f.client.Stat(f.ctx, f.remote.Path()+"/"+rel)
	require.NoError(f.t, err)
	return entry
}

func uploadTargets(plan *OperationPlan) []string {
	out := []string{}
	for _, t := range plan.Upload {
		out = append(out, t.Remote.Path())
	}
	return out
}

func downloadTargets(plan *OperationPlan) []string {
	out := []string{}
	for _, t := range plan.Download {
		out = append(out, t.Local.Path())
	}
	return out
}

func collectionPaths(plan *OperationPlan) []string {
	out := []string{}
	for _, c := range plan.SortedCollections() {
		out = append(out, c.Path())
	}
	return out
}

func dirPaths(plan *OperationPlan) []string {
	out := []string{}
	for _, d := range plan.SortedDirs() {
		out = append(out, d.Path())
	}
	return out
}
