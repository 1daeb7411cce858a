package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/treesync/internal/client/sync"
	"github.com/openmined/treesync/internal/treepath"
	"github.com/openmined/treesync/internal/utils"
	"github.com/spf13/cobra"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// structured is implemented by sync.Summary and sync.Result.
type structured interface {
	WriteJSON(w io.Writer) error
	WriteYAML(w io.Writer) error
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <source> <target>",
		Short: "Make target contain everything in source",
		Long: `Compares source and target and transfers whatever is missing or different.
Exactly one side must be remote, written as irods:<path>. Relative remote
paths are resolved against the remote home. Nothing is ever deleted.`,
		Args: cobra.ExactArgs(2),
		RunE: runSync,
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().Int("max-depth", -1, "only consider paths with fewer than N segments below the root; 1 syncs nothing, -1 is unbounded")
	cmd.Flags().Bool("copy-empty-dirs", false, "also create empty directories on the target")
	cmd.Flags().Bool("ignore-checksum", false, "compare by size only")
	cmd.Flags().Bool("dry-run", false, "print the plan without executing it")
	cmd.Flags().Bool("overwrite", false, "replace differing files on the target")
	cmd.Flags().Bool("ignore-errors", false, "skip failed operations instead of aborting")
	cmd.Flags().String("resource", "", "storage resource hint for transfers")
	cmd.Flags().Int("threads", 0, "transfer threads hint (default from config)")
	cmd.Flags().String("metadata", "", "metadata archive to export to (download) or import from (upload)")
	cmd.Flags().String("format", formatText, "plan output format: text, json or yaml")
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != formatText && format != formatJSON && format != formatYAML {
		return fmt.Errorf("unknown format %q", format)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	source, err := a.endpoint(args[0])
	if err != nil {
		return err
	}
	target, err := a.endpoint(args[1])
	if err != nil {
		return err
	}

	diffOpts, err := diffOptions(cmd, a, source)
	if err != nil {
		return err
	}

	// held from the walk until execution ends so the plan stays current
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if !dryRun {
		ws, err := a.lockLocal(source, target)
		if err != nil {
			return err
		}
		if ws != nil {
			defer ws.Unlock()
		}
	}

	ctx := cmd.Context()
	plan, err := sync.Diff(ctx, source, target, diffOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == formatText {
		if err := plan.PrintSummary(out); err != nil {
			return err
		}
	}
	if dryRun || plan.IsEmpty() {
		return writeStructured(out, format, plan.Summary())
	}

	execOpts := executeOptions(cmd, a)
	execOpts.Checksums = diffOpts.Checksums

	var bar *progressBar
	if format == formatText && stderrIsTerminal() {
		bar = newProgressBar(cmd.ErrOrStderr())
		execOpts.Progress = bar.Update
	}

	report, err := plan.Execute(ctx, execOpts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if format != formatText {
		return writeStructured(out, format, &sync.Result{Plan: plan.Summary(), Report: report})
	}
	printReport(out, report)
	return nil
}

func diffOptions(cmd *cobra.Command, a *app, source sync.Endpoint) (sync.DiffOptions, error) {
	opts := sync.DiffOptions{
		Checksums: sync.NewChecksumCache(0),
	}

	if depth, _ := cmd.Flags().GetInt("max-depth"); depth >= 0 {
		opts.MaxDepth = &depth
	}
	opts.CopyEmptyDirs, _ = cmd.Flags().GetBool("copy-empty-dirs")
	opts.IgnoreChecksum, _ = cmd.Flags().GetBool("ignore-checksum")
	opts.MetadataArchive, _ = cmd.Flags().GetString("metadata")
	if opts.MetadataArchive != "" {
		archive, err := utils.ResolvePath(opts.MetadataArchive)
		if err != nil {
			return opts, fmt.Errorf("metadata archive: %w", err)
		}
		opts.MetadataArchive = archive
	}

	// the ignore file only applies to the local side
	if local, ok := source.(sync.LocalEndpoint); ok {
		opts.Exclude = treepath.LoadExcludeList(local.Path.Path(), a.cfg.Exclude...)
	} else {
		opts.Exclude = treepath.NewExcludeList(a.cfg.Exclude...)
	}
	slog.Debug("exclude rules", "count", opts.Exclude.Rules())

	return opts, nil
}

func executeOptions(cmd *cobra.Command, a *app) sync.ExecuteOptions {
	opts := sync.ExecuteOptions{
		Options: sync.TransferOptions{Threads: a.cfg.Threads},
	}
	opts.Overwrite, _ = cmd.Flags().GetBool("overwrite")
	opts.IgnoreErrors, _ = cmd.Flags().GetBool("ignore-errors")
	opts.ResourceName, _ = cmd.Flags().GetString("resource")
	if threads, _ := cmd.Flags().GetInt("threads"); threads > 0 {
		opts.Options.Threads = threads
	}
	return opts
}

func writeStructured(w io.Writer, format string, v structured) error {
	switch format {
	case formatJSON:
		return v.WriteJSON(w)
	case formatYAML:
		return v.WriteYAML(w)
	}
	return nil
}

func printReport(w io.Writer, r *sync.ExecutionReport) {
	fmt.Fprintf(w, "\n%s %d uploaded, %d downloaded, %d collections, %d directories, %s in %s\n",
		green.Render("Done."),
		r.Uploaded, r.Downloaded, r.CollectionsCreated, r.DirsCreated,
		humanize.IBytes(r.BytesTransferred), r.Duration.Round(time.Millisecond),
	)
	if r.MetaExported+r.MetaImported > 0 {
		fmt.Fprintf(w, "%s %d exported, %d imported\n", cyan.Render("Metadata:"), r.MetaExported, r.MetaImported)
	}
	if !r.HasWarnings() {
		return
	}
	fmt.Fprintf(w, "%s\n", yellow.Render(fmt.Sprintf("%d warnings:", len(r.Warnings))))
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "%s %s %s: %s\n", yellow.Render("warning"), warning.Op, warning.Path, warning.Message)
	}
}
