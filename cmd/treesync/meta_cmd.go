package main

import (
	"fmt"

	"github.com/openmined/treesync/internal/metaarchive"
	"github.com/openmined/treesync/internal/utils"
	"github.com/spf13/cobra"
)

func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Export and import remote metadata archives",
	}
	cmd.AddCommand(newMetaExportCmd())
	cmd.AddCommand(newMetaImportCmd())
	return cmd
}

func newMetaExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <remote-root> <file>",
		Short: "Write the metadata of a remote tree to a JSON archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, _ := cmd.Flags().GetStringSlice("keys")
			noRecursive, _ := cmd.Flags().GetBool("no-recursive")

			file, err := utils.ResolvePath(args[1])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			root := a.remotePath(args[0])
			if ok, err := root.Exists(ctx); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("%s: %w", root.Path(), metaarchive.ErrPathMissing)
			}

			items, err := metaarchive.CollectItems(ctx, root, !noRecursive)
			if err != nil {
				return err
			}
			doc, err := metaarchive.Export(ctx, root, items, metaarchive.ExportOptions{
				Keys:      keys,
				Recursive: !noRecursive,
			})
			if err != nil {
				return err
			}
			if err := metaarchive.Save(file, doc); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d items from %s to %s\n", green.Render("Exported"), len(doc.Items), root.Path(), file)
			return nil
		},
	}
	cmd.Flags().StringSlice("keys", nil, "only export keys matching these globs")
	cmd.Flags().Bool("no-recursive", false, "export the root item only")
	return cmd
}

func newMetaImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file> <remote-root>",
		Short: "Apply a metadata archive to a remote tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := metaarchive.Load(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			root := a.remotePath(args[1])
			res, err := metaarchive.Import(cmd.Context(), root, doc)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries on %d items (%d already present)\n",
				green.Render("Imported"), res.Added, res.Items, res.Duplicates)
			return nil
		},
	}
}
