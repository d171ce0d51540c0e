package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// This will be set by goreleaser
	version = "dev"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
		},
	}
}
