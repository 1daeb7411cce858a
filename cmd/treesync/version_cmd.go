package main

import (
	"fmt"

	"github.com/openmined/treesync/internal/utils"
	"github.com/openmined/treesync/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print treesync version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return utils.JSONEncodeIndent(cmd.OutOrStdout(), version.Current())
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.DetailedWithApp())
			return err
		},
	}
	cmd.Flags().Bool("json", false, "print version information as json")
	return cmd
}
