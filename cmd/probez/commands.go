package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/internal/config"
	"github.com/zoobzio/probez/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	formatJSON  = "json"
	formatLog   = "log"
	formatBatch = "batch"
)

type runFlags struct {
	configPath  string
	format      string
	metricsAddr string
	contexts    int
	iterations  int
	depth       int
	pause       time.Duration
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "probez",
		Short:         "Span and bounded-sample collector",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the probez version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "probez %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sample instrumented client and print its traces",
		Long: `Run drives the sample client: each execution context opens a "main"
span, records the bounded "stack" variable and a main_event per iteration,
and descends a recursive span chain. Interrupting the run force-closes
every open span and still prints the resulting traces.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("contexts") {
				cfg.Demo.Contexts = f.contexts
			}
			if flags.Changed("iterations") {
				cfg.Demo.Iterations = f.iterations
			}
			if flags.Changed("depth") {
				cfg.Demo.RecursionDepth = f.depth
			}
			if flags.Changed("pause") {
				cfg.Demo.Pause = f.pause
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			switch f.format {
			case formatJSON, formatLog, formatBatch:
			default:
				return fmt.Errorf("invalid format %q, must be %q, %q or %q", f.format, formatJSON, formatLog, formatBatch)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, f, clockz.RealClock, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&f.format, "format", formatJSON, "trace output: json (one per line), log, or batch (one JSON array at exit)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.IntVar(&f.contexts, "contexts", 1, "concurrent execution contexts")
	fs.IntVar(&f.iterations, "iterations", 3, "iterations of the main loop")
	fs.IntVar(&f.depth, "depth", 3, "depth of the recursive span chain")
	fs.DurationVar(&f.pause, "pause", 100*time.Millisecond, "pause between iterations")
	return cmd
}

// run executes the sample client on cfg.Demo.Contexts execution contexts and
// writes every trace to out.
func run(ctx context.Context, cfg *config.Config, f runFlags, clock clockz.Clock, out io.Writer) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	opts := append(cfg.ProbeOptions(),
		probez.WithClock(clock),
		probez.WithLogger(logger),
		probez.WithRegisterer(reg),
		probez.WithNamespace(cfg.Metrics.Namespace),
	)
	p := probez.New(opts...)

	var collector *probez.Collector
	switch f.format {
	case formatLog:
		p.AddSink(probez.LogSink{Logger: logger.Named("traces")})
	case formatBatch:
		collector = probez.NewCollector(cfg.Sink.BufferSize)
		p.AddSink(collector)
	default:
		p.AddSink(newJSONSink(out, logger))
	}

	if cfg.Metrics.Enabled && f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	logger.Info("starting sample client",
		zap.Int("contexts", cfg.Demo.Contexts),
		zap.Int("iterations", cfg.Demo.Iterations),
		zap.Int("recursion_depth", cfg.Demo.RecursionDepth),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Demo.Contexts; i++ {
		name := fmt.Sprintf("client-%d", i)
		g.Go(func() error {
			return runClient(gctx, p, clock, cfg.Demo, name)
		})
	}
	err = g.Wait()

	// Close delivers traces still queued for the sink.
	p.Close()

	if collector != nil {
		if werr := writeBatch(collector, out, logger); werr != nil && err == nil {
			err = werr
		}
	}

	stats := p.Stats()
	logger.Info("sample client finished",
		zap.Uint64("traces", stats.TracesEmitted),
		zap.Uint64("dropped", stats.DroppedTraces),
		zap.Uint64("protocol_errors", stats.ProtocolErrors),
	)

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Warn("interrupted, open spans were force-closed")
		return nil
	}
	return err
}

// writeBatch closes the collector and writes everything it buffered as a
// single JSON array.
func writeBatch(collector *probez.Collector, out io.Writer, logger *zap.Logger) error {
	collector.Close()
	traces := collector.Export()
	if traces == nil {
		traces = []probez.Trace{}
	}
	if dropped := collector.DroppedCount(); dropped > 0 {
		logger.Warn("batch collector dropped traces", zap.Int64("dropped", dropped))
	}
	if err := json.NewEncoder(out).Encode(traces); err != nil {
		return fmt.Errorf("encoding trace batch: %w", err)
	}
	return nil
}

// jsonSink writes each trace as one JSON document per line.
type jsonSink struct {
	enc    *json.Encoder
	logger *zap.Logger
	mu     sync.Mutex
}

func newJSONSink(w io.Writer, logger *zap.Logger) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(w), logger: logger}
}

func (s *jsonSink) Accept(trace probez.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(trace); err != nil {
		s.logger.Warn("trace encoding failed",
			zap.String("trace_id", trace.ID),
			zap.String("context", trace.Context),
			zap.Error(err),
		)
	}
}
