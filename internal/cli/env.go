package cli

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/planstate/internal/metrics"
	"github.com/roach88/planstate/internal/store"
	"github.com/roach88/planstate/internal/worker"
)

// env is the worker a command runs on, with its optional store and a
// private metrics registry.
type env struct {
	worker   *worker.Worker
	store    *store.Store
	registry *prometheus.Registry
	logger   *slog.Logger
}

// openEnv creates the command's worker. When dbPath is non-empty the
// worker writes through to it and its registry is restored first.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command, dbPath, workerID string) (*env, error) {
	e := &env{
		registry: prometheus.NewRegistry(),
		logger:   opts.logger(cmd.ErrOrStderr()),
	}
	wopts := []worker.Option{
		worker.WithMetrics(metrics.New(e.registry)),
		worker.WithLogger(e.logger),
	}

	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		e.store = st
		wopts = append(wopts, worker.WithStore(st))
	}

	e.worker = worker.New(workerID, wopts...)
	if e.store != nil {
		n, err := e.worker.Restore(ctx)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.logger.Debug("worker restored", "db", dbPath, "objects", n)
	}
	return e, nil
}

// Close releases the store, if any.
func (e *env) Close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
}

// metrics returns the current counter values.
func (e *env) metrics() []metrics.Sample {
	samples, err := metrics.Snapshot(e.registry)
	if err != nil {
		e.logger.Warn("metrics snapshot failed", "error", err)
		return nil
	}
	return samples
}

// commandContext returns cmd's context or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
