package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tracekit/probeopt/internal/settings"
	"github.com/tracekit/probeopt/pkg/cmd/graph"
	"github.com/tracekit/probeopt/pkg/cmd/options"
	"github.com/tracekit/probeopt/pkg/cmd/postrun"
	"github.com/tracekit/probeopt/pkg/cmd/prerun"
)

func NewRootCmd(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: "probeopt shrinks the instrumentation set of a profiled program",
		Long: `probeopt decides which functions of a profiled program are worth instrumenting,
and how aggressively to sample them, from the call graph structure and the
statistics of previous profiling runs.`,
		DisableAutoGenTag: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.Debug {
				opts.Logger = opts.Logger.Level(log.DebugLevel)
			}
		},
	}
	cmd.AddCommand(graph.NewCommand(opts))
	cmd.AddCommand(prerun.NewCommand(opts))
	cmd.AddCommand(postrun.NewCommand(opts))
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Sets log level to debug")

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger().Level(log.InfoLevel)

	go func() {
		<-ctx.Done()
		cancel()
	}()

	opts := options.NewCommonOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
