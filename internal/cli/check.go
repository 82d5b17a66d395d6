package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/mqlsp/internal/diagnose"
	"github.com/dshills/mqlsp/internal/lsp"
	"github.com/dshills/mqlsp/internal/queue"
)

func newCheckCmd(a *app) *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "check [--system name] file...",
		Short: "Validate configuration files and print diagnostics",
		Long: `check runs the diagnostics engine over each file. Without --system the
system is inferred from each file name; with it, files belonging to other
systems are skipped. The exit status is 1 when any error-severity
diagnostic is reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forced, err := a.system(system)
			if err != nil {
				return err
			}
			failed, err := checkFiles(cmd.OutOrStdout(), diagnose.New(), forced, args)
			if err != nil {
				return err
			}
			if failed {
				return errFindings
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "validate as this system (stream-store, broker, pubsub)")
	return cmd
}

// checkFiles prints file:line:col: severity: message for every finding and
// reports whether any error was found.
func checkFiles(out io.Writer, engine *diagnose.Engine, forced queue.System, paths []string) (bool, error) {
	failed := false
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return failed, err
		}

		uri := string(lsp.FilePathToURI(path))
		system := forced
		if system == queue.SystemNone {
			system = diagnose.Classify(uri).System()
		}

		for _, d := range engine.Run(system, uri, string(data)) {
			fmt.Fprintf(out, "%s:%d:%d: %s: %s (%s)\n", path, d.Line+1, d.StartChar+1, d.Severity, d.Message, d.Source)
			if d.Severity == diagnose.SeverityError {
				failed = true
			}
		}
	}
	return failed, nil
}
