package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/macropower/simplerules/api/v1beta1/configs"
	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/log"
	"github.com/macropower/simplerules/pkg/metrics"
	"github.com/macropower/simplerules/pkg/procfs"
	"github.com/macropower/simplerules/pkg/ruleset"
	"github.com/macropower/simplerules/pkg/telemetry"
	"github.com/macropower/simplerules/pkg/version"
)

const (
	cmdExamples = `  # Tag every running process once and print the flags:
  simplerules run --once

  # Run passes every 5 seconds and reload rules when they change:
  simplerules run --interval 5s --watch

  # Serve Prometheus metrics and export traces:
  simplerules run --metrics-addr :9090 --otlp-endpoint localhost:4317

  # Check the rule files for errors:
  simplerules check

  # Show which rules match a command line:
  simplerules match --exe /usr/bin/firefox -- firefox --private-window`

	shutdownTimeout = 5 * time.Second
)

// ErrNoRules is returned when no rule could be loaded.
var ErrNoRules = errors.New("no rules loaded")

type RunArgs struct {
	*RootArgs

	ProcRoot     string
	MetricsAddr  string
	OTLPEndpoint string
	Output       string
	Interval     time.Duration
	Once         bool
	Watch        bool
	OTLPInsecure bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.ProcRoot, "proc-root", "", "Mount point of the proc filesystem, overrides the config")
	cmd.Flags().DurationVar(&ra.Interval, "interval", 0, "Time between passes, overrides the config")
	cmd.Flags().BoolVar(&ra.Once, "once", false, "Run a single pass and exit")
	cmd.Flags().BoolVarP(&ra.Watch, "watch", "w", false, "Watch the rule files and reload on change")
	cmd.Flags().StringVar(&ra.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics at the specified address")
	cmd.Flags().StringVar(&ra.OTLPEndpoint, "otlp-endpoint", "", "Export traces to the OTLP gRPC endpoint")
	cmd.Flags().BoolVar(&ra.OTLPInsecure, "otlp-insecure", false, "Disable TLS for the OTLP exporter")
	cmd.Flags().StringVarP(&ra.Output, "output", "o", OutputText, fmt.Sprintf("Output format, one of: %s", AllOutputs))

	err := cmd.RegisterFlagCompletionFunc("output",
		cobra.FixedCompletions(AllOutputs, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

func NewRunCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run scheduling passes over the live process table",
		Example: cmdExamples,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, ra)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func run(cmd *cobra.Command, ra *RunArgs) error {
	err := validateOutput(ra.Output)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := log.WithContext(ctx)

	cfg, err := ra.LoadConfig()
	if err != nil {
		return err
	}

	ra.applyConfig(cfg)

	logger.DebugContext(ctx, "starting",
		slog.String("version", version.Info()),
		slog.String("build", version.BuildContext()),
	)

	if ra.OTLPEndpoint != "" {
		tp, err := newTracerProvider(ctx, ra)
		if err != nil {
			return err
		}

		defer shutdown(logger, "tracer provider", tp.Shutdown)
	}

	if ra.MetricsAddr != "" {
		srv := serveMetrics(logger, ra.MetricsAddr)

		defer shutdown(logger, "metrics server", srv.Shutdown)
	}

	src := procfs.NewReader(ra.Fs, ra.ProcRoot)
	chain := filter.NewChain(src)
	sr := filter.NewSimpleRules(append(cfg.SimpleRules.FilterOptions(), filter.WithFs(ra.Fs))...)

	if !sr.Init(ctx, chain) {
		return fmt.Errorf("%w from %s or %s", ErrNoRules, sr.RulesDir(), sr.RulesFile())
	}

	if ra.Watch && !ra.Once {
		go watchRules(ctx, logger, sr, chain)
	}

	pass := func() error {
		stats, err := chain.Pass(ctx)
		if err != nil {
			return fmt.Errorf("pass: %w", err)
		}

		return writeReport(cmd.OutOrStdout(), ra.Output, &Report{
			Pass:      newPassReport(stats),
			Processes: newTableReport(chain.Table(), sr.Name()),
		}, time.Now())
	}

	err = pass()
	if err != nil || ra.Once {
		return err
	}

	logger.InfoContext(ctx, "running passes", slog.Duration("interval", ra.Interval))

	ticker := time.NewTicker(ra.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "stopping")

			return nil

		case <-ticker.C:
			err := pass()
			if err != nil {
				return err
			}
		}
	}
}

// applyConfig fills unset flags from cfg.
func (ra *RunArgs) applyConfig(cfg *configs.Config) {
	if ra.ProcRoot == "" {
		ra.ProcRoot = cfg.Daemon.ProcRoot
	}
	if ra.Interval <= 0 {
		ra.Interval = cfg.Daemon.Interval
	}
}

func newTracerProvider(ctx context.Context, ra *RunArgs) (*telemetry.Provider, error) {
	var opts []telemetry.ProviderOpt
	if ra.OTLPInsecure {
		opts = append(opts, telemetry.WithInsecure())
	}

	tp, err := telemetry.NewProvider(ctx, ra.OTLPEndpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	return tp, nil
}

func serveMetrics(logger *slog.Logger, addr string) *http.Server {
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))

		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("err", err))
		}
	}()

	return srv
}

// watchRules reloads rules on change. A successful reload clears the flags
// the previous rules attached so the next pass reapplies them.
func watchRules(ctx context.Context, logger *slog.Logger, sr *filter.SimpleRules, chain *filter.Chain) {
	err := sr.Watch(ctx, filter.DefaultDebounce, func(_ context.Context, _ *ruleset.Set, err error) {
		if err != nil {
			return
		}

		chain.Reset(sr.Name())
	})
	if err != nil {
		logger.Error("watch rules", slog.Any("err", err))
	}
}

func shutdown(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		logger.Error("shutdown "+name, slog.Any("err", err))
	}
}
