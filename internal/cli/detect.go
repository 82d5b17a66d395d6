package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/mqlsp/internal/queue"
)

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [dir]",
		Short: "Report which message queue system responds for a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.DetectTimeout())
			defer cancel()

			system := a.registry(queue.ExecRunner{Dir: root}).Detect(ctx, root)
			fmt.Fprintln(cmd.OutOrStdout(), system)
			return nil
		},
	}
}
