// Command tracereader tails a build-tool trace file and reconstructs a
// per-thread-accurate span tree with computed self-time. The interactive
// viewer that would consume the reconstructed tree is a different
// subsystem and out of scope here — see SPEC_FULL.md §1.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tracereader/internal/config"
	"github.com/nextlevelbuilder/tracereader/internal/reader"
	"github.com/nextlevelbuilder/tracereader/internal/store"
	"github.com/nextlevelbuilder/tracereader/internal/telemetry"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracereader: %v\n", err)
		fmt.Fprintf(os.Stderr, "usage: tracereader [flags] <trace-file>\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("tracereader: exiting with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	container := store.NewContainer()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var exporter reader.Exporter
	if cfg.OTLPEndpoint != "" {
		otlp, err := telemetry.NewOTLPExporter(ctx, telemetry.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			slog.Warn("tracereader: OTLP exporter disabled", "error", err)
		} else {
			exporter = otlp
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = otlp.Shutdown(shutdownCtx)
			}()
		}
	}

	r := reader.New(container, cfg.TracePath,
		reader.WithPollInterval(cfg.PollInterval),
		reader.WithRetryInterval(cfg.RetryInterval),
		reader.WithMetrics(metrics),
		reader.WithExporter(exporter),
	)

	mux := telemetry.NewMux(container, reg)
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)

	// Reader thread (spec §5): the sole writer to the span store. Main
	// awaits its termination.
	g.Go(func() error {
		return r.Run(gctx)
	})

	// Server thread (spec §5 EXPANSION): read-only consumer of the store,
	// serving health/metrics/generation to operators.
	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})

	slog.Info("tracereader: started", "trace_path", cfg.TracePath, "metrics_addr", cfg.MetricsAddr)
	return g.Wait()
}
