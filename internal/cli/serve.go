package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/mqlsp/internal/logging"
	"github.com/dshills/mqlsp/internal/lsp"
	"github.com/dshills/mqlsp/internal/queue"
)

// errNoTransport rejects --stdio=false; stdio is the only transport.
var errNoTransport = errors.New("stdio is the only supported transport")

func newServeCmd(a *app) *cobra.Command {
	var (
		system  string
		noWatch bool
		stdio   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !stdio {
				return errNoTransport
			}
			forced, err := a.system(system)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session := lsp.NewSession(lsp.NewConn(os.Stdin, os.Stdout), a.registry(queue.ExecRunner{}), lsp.Options{
				Version:        a.build.Version,
				System:         forced,
				DetectTimeout:  a.cfg.DetectTimeout(),
				CommandTimeout: a.cfg.CommandTimeout(),
				Watch:          a.cfg.Diagnostics.Watch && !noWatch,
			})

			logging.Info("cli", "mqlsp %s serving on stdio", a.build.Version)
			err = session.Serve(ctx)
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "skip detection and use this system (stream-store, broker, pubsub)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the workspace for configuration changes")
	cmd.Flags().BoolVar(&stdio, "stdio", true, "use stdin and stdout (the only transport)")
	return cmd
}
