package sync

import (
	"cmp"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/treesync/internal/treepath"
)

// Transfer moves one file between Local and Remote. The direction is given
// by the plan list it sits in.
type Transfer struct {
	Local  treepath.LocalPath
	Remote treepath.Remote
	// Size of the source, used for byte progress.
	Size uint64
	// SourceChecksum is set when the diff already had to compute it.
	SourceChecksum string
}

// MetaExportOp writes the metadata of Items, relative to Root, into File.
type MetaExportOp struct {
	Root  treepath.RemotePath
	Items []treepath.Remote
	File  string
}

// MetaImportOp applies the archive in File below Root.
type MetaImportOp struct {
	Root treepath.RemotePath
	File string
}

// OperationPlan is the outcome of a diff. It performs no I/O on its own and
// may be printed, inspected or dropped freely; Execute carries it out.
type OperationPlan struct {
	Direction        Direction
	Source           Endpoint
	Target           Endpoint
	CreateDir        mapset.Set[treepath.LocalPath]
	CreateCollection mapset.Set[treepath.RemotePath]
	Upload           []Transfer
	Download         []Transfer
	MetaExport       []*MetaExportOp
	MetaImport       []*MetaImportOp
	// SkippedSymlinks lists local links the diff refused to follow.
	SkippedSymlinks []treepath.LocalPath
}

func NewOperationPlan() *OperationPlan {
	return &OperationPlan{
		CreateDir:        mapset.NewSet[treepath.LocalPath](),
		CreateCollection: mapset.NewSet[treepath.RemotePath](),
	}
}

func (p *OperationPlan) AddCreateDir(dir treepath.LocalPath) {
	p.CreateDir.Add(dir)
}

func (p *OperationPlan) AddCreateCollection(coll treepath.RemotePath) {
	p.CreateCollection.Add(coll)
}

func (p *OperationPlan) AddUpload(t Transfer) {
	p.Upload = append(p.Upload, t)
}

func (p *OperationPlan) AddDownload(t Transfer) {
	p.Download = append(p.Download, t)
}

// AddMetaExport adds item to the export written to file, creating the export on first use.
func (p *OperationPlan) AddMetaExport(root treepath.RemotePath, item treepath.Remote, file string) {
	for _, op := range p.MetaExport {
		if op.File == file {
			op.Root = root
			op.Items = append(op.Items, item)
			return
		}
	}
	p.MetaExport = append(p.MetaExport, &MetaExportOp{Root: root, Items: []treepath.Remote{item}, File: file})
}

func (p *OperationPlan) AddMetaImport(root treepath.RemotePath, file string) {
	p.MetaImport = append(p.MetaImport, &MetaImportOp{Root: root, File: file})
}

// IsEmpty reports whether executing the plan would change nothing.
func (p *OperationPlan) IsEmpty() bool {
	return p.CreateDir.Cardinality() == 0 &&
		p.CreateCollection.Cardinality() == 0 &&
		len(p.Upload) == 0 &&
		len(p.Download) == 0 &&
		len(p.MetaExport) == 0 &&
		len(p.MetaImport) == 0
}

// TotalBytes is the sum of all transfer sizes.
func (p *OperationPlan) TotalBytes() uint64 {
	var total uint64
	for _, t := range p.Upload {
		total += t.Size
	}
	for _, t := range p.Download {
		total += t.Size
	}
	return total
}

// SortedDirs returns the directories to create, parents first.
func (p *OperationPlan) SortedDirs() []treepath.LocalPath {
	dirs := p.CreateDir.ToSlice()
	slices.SortFunc(dirs, func(a, b treepath.LocalPath) int {
		return strings.Compare(a.Path(), b.Path())
	})
	return dirs
}

// SortedCollections returns the collections to create by ascending depth, then path.
func (p *OperationPlan) SortedCollections() []treepath.RemotePath {
	colls := p.CreateCollection.ToSlice()
	slices.SortFunc(colls, func(a, b treepath.RemotePath) int {
		return cmp.Or(cmp.Compare(a.Depth(), b.Depth()), strings.Compare(a.Path(), b.Path()))
	})
	return colls
}
