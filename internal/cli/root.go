// Package cli implements the mqlsp command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/mqlsp/internal/config"
	"github.com/dshills/mqlsp/internal/logging"
	"github.com/dshills/mqlsp/internal/queue"
	"github.com/dshills/mqlsp/internal/queue/nats"
	"github.com/dshills/mqlsp/internal/queue/rabbitmq"
	"github.com/dshills/mqlsp/internal/queue/redis"
)

// errFindings ends check with a non-zero status without printing an error.
var errFindings = errors.New("diagnostics reported errors")

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type globalFlags struct {
	configPath string
	logLevel   string
}

// app is the state shared by every subcommand after flags are parsed.
type app struct {
	build  BuildInfo
	flags  globalFlags
	cfg    *config.Config
	stderr io.Writer
}

// NewRootCmd returns the root command. Running it without a subcommand
// starts the language server.
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{build: build, stderr: os.Stderr}

	root := &cobra.Command{
		Use:   "mqlsp",
		Short: "Language server for Redis Streams, RabbitMQ and NATS JetStream",
		Long: `mqlsp serves completion, hover and diagnostics for message queue
configuration and command files over the Language Server Protocol.
It drives redis-cli, rabbitmqctl and the nats CLI for queue commands.`,
		Version:       build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate(`{{printf "mqlsp version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&a.flags.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/mqlsp/config.toml)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	serve := newServeCmd(a)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(newDetectCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(build BuildInfo, args []string) int {
	root := NewRootCmd(build)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errFindings) {
			fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	a.stderr = cmd.ErrOrStderr()

	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	// stdout carries the protocol stream in server mode.
	logging.Init(cfg.LogLevel(), a.stderr)
	return nil
}

// registry builds the adapters in detection priority order.
func (a *app) registry(runner queue.Runner) *queue.Registry {
	cfg := a.cfg
	return queue.NewRegistry(
		redis.New(redis.Config{
			CLI:  cfg.Redis.CLI,
			Host: cfg.Redis.Host,
			Port: cfg.Redis.Port,
			DB:   cfg.Redis.DB,
		}, runner),
		rabbitmq.New(rabbitmq.Config{
			Ctl:   cfg.RabbitMQ.Ctl,
			Admin: cfg.RabbitMQ.Admin,
			Host:  cfg.RabbitMQ.Host,
			Port:  cfg.RabbitMQ.Port,
			VHost: cfg.RabbitMQ.VHost,
			Node:  cfg.RabbitMQ.Node,
		}, runner),
		nats.New(nats.Config{
			CLI:     cfg.NATS.CLI,
			Server:  cfg.NATS.Server,
			Context: cfg.NATS.Context,
		}, runner),
	)
}

// system resolves a --system flag value, falling back to the configured
// system.
func (a *app) system(flag string) (queue.System, error) {
	if flag == "" {
		return a.cfg.ForcedSystem(), nil
	}
	return queue.ParseSystem(flag)
}
