package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mqlsp",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mqlsp version %s\n", a.build.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", a.build.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "built: %s\n", a.build.Date)
		},
	}
}
