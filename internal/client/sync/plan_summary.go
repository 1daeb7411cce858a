package sync

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/treesync/internal/utils"
	"gopkg.in/yaml.v3"
)

type TransferView struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	Size uint64 `json:"size" yaml:"size"`
}

type MetaExportView struct {
	File  string   `json:"file" yaml:"file"`
	Root  string   `json:"root" yaml:"root"`
	Items []string `json:"items" yaml:"items"`
}

type MetaImportView struct {
	File string `json:"file" yaml:"file"`
	Root string `json:"root" yaml:"root"`
}

// Summary is a printable, serializable view of an OperationPlan.
type Summary struct {
	Direction         Direction        `json:"direction" yaml:"direction"`
	Source            string           `json:"source" yaml:"source"`
	Target            string           `json:"target" yaml:"target"`
	CreateDirs        []string         `json:"createDirs" yaml:"create_dirs"`
	CreateCollections []string         `json:"createCollections" yaml:"create_collections"`
	Uploads           []TransferView   `json:"uploads" yaml:"uploads"`
	Downloads         []TransferView   `json:"downloads" yaml:"downloads"`
	MetaExports       []MetaExportView `json:"metaExports" yaml:"meta_exports"`
	MetaImports       []MetaImportView `json:"metaImports" yaml:"meta_imports"`
	SkippedSymlinks   []string         `json:"skippedSymlinks" yaml:"skipped_symlinks"`
	TotalBytes        uint64           `json:"totalBytes" yaml:"total_bytes"`
}

func (p *OperationPlan) Summary() *Summary {
	s := &Summary{
		Direction:         p.Direction,
		CreateDirs:        []string{},
		CreateCollections: []string{},
		Uploads:           []TransferView{},
		Downloads:         []TransferView{},
		MetaExports:       []MetaExportView{},
		MetaImports:       []MetaImportView{},
		SkippedSymlinks:   []string{},
		TotalBytes:        p.TotalBytes(),
	}
	if p.Source != nil {
		s.Source = p.Source.String()
	}
	if p.Target != nil {
		s.Target = p.Target.String()
	}

	for _, dir := range p.SortedDirs() {
		s.CreateDirs = append(s.CreateDirs, dir.Path())
	}
	for _, coll := range p.SortedCollections() {
		s.CreateCollections = append(s.CreateCollections, coll.Path())
	}
	for _, t := range p.Upload {
		s.Uploads = append(s.Uploads, TransferView{From: t.Local.Path(), To: t.Remote.Path(), Size: t.Size})
	}
	for _, t := range p.Download {
		s.Downloads = append(s.Downloads, TransferView{From: t.Remote.Path(), To: t.Local.Path(), Size: t.Size})
	}
	for _, op := range p.MetaExport {
		view := MetaExportView{File: op.File, Root: op.Root.Path()}
		for _, item := range op.Items {
			view.Items = append(view.Items, item.Path())
		}
		s.MetaExports = append(s.MetaExports, view)
	}
	for _, op := range p.MetaImport {
		s.MetaImports = append(s.MetaImports, MetaImportView{File: op.File, Root: op.Root.Path()})
	}
	for _, link := range p.SkippedSymlinks {
		s.SkippedSymlinks = append(s.SkippedSymlinks, link.Path())
	}
	return s
}

// PrintSummary writes a human readable listing of the plan, as shown for a dry run.
func (p *OperationPlan) PrintSummary(w io.Writer) error {
	_, err := io.WriteString(w, p.Summary().String())
	return err
}

func (s *Summary) String() string {
	var sections []string

	if len(s.CreateCollections) > 0 {
		sections = append(sections, "Create collections:\n\n"+strings.Join(s.CreateCollections, "\n")+"\n")
	}
	if len(s.CreateDirs) > 0 {
		sections = append(sections, "Create directories:\n\n"+strings.Join(s.CreateDirs, "\n")+"\n")
	}
	if len(s.Uploads) > 0 {
		sections = append(sections, "Upload files:\n\n"+transferLines(s.Uploads))
	}
	if len(s.Downloads) > 0 {
		sections = append(sections, "Download files:\n\n"+transferLines(s.Downloads))
	}
	if len(s.MetaExports) > 0 {
		var b strings.Builder
		b.WriteString("Metadata to download:\n\n")
		for _, op := range s.MetaExports {
			fmt.Fprintf(&b, "- Destination: %s\n- Root path: %s\n\n", op.File, op.Root)
			for _, item := range op.Items {
				b.WriteString(item + "\n")
			}
		}
		sections = append(sections, b.String())
	}
	if len(s.MetaImports) > 0 {
		var b strings.Builder
		b.WriteString("Metadata to upload:\n\n")
		for _, op := range s.MetaImports {
			fmt.Fprintf(&b, "%s -> %s\n", op.File, op.Root)
		}
		sections = append(sections, b.String())
	}
	if len(s.SkippedSymlinks) > 0 {
		sections = append(sections, "Skipped symbolic links:\n\n"+strings.Join(s.SkippedSymlinks, "\n")+"\n")
	}

	if len(sections) == 0 {
		return "Nothing to do.\n"
	}
	total := fmt.Sprintf("Total transfer size: %s\n", humanize.IBytes(s.TotalBytes))
	return strings.Join(sections, "\n") + "\n" + total
}

func transferLines(transfers []TransferView) string {
	var b strings.Builder
	for _, t := range transfers {
		fmt.Fprintf(&b, "%s -> %s (%s)\n", t.From, t.To, humanize.IBytes(t.Size))
	}
	return b.String()
}

func (s *Summary) WriteJSON(w io.Writer) error { return utils.JSONEncodeIndent(w, s) }
func (s *Summary) WriteYAML(w io.Writer) error { return writeYAML(w, s) }

// Result pairs an executed plan with its report.
type Result struct {
	Plan   *Summary         `json:"plan" yaml:"plan"`
	Report *ExecutionReport `json:"report" yaml:"report"`
}

func (r *Result) WriteJSON(w io.Writer) error { return utils.JSONEncodeIndent(w, r) }
func (r *Result) WriteYAML(w io.Writer) error { return writeYAML(w, r) }

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
