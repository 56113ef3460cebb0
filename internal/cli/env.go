package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/activitylog/internal/config"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/store"
)

// storeEnv is an opened store plus what was built to open it.
type storeEnv struct {
	store    *store.EventStore
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry // nil unless metrics.enabled
}

func (e *storeEnv) Close() error {
	return e.store.Close()
}

// openStore loads configuration, applies the global flags on top of it and
// opens the store.
func openStore(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*storeEnv, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log settings", err)
	}

	hierarchy, err := loadHierarchy(cfg.Ontology.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load ontology", err)
	}

	env := &storeEnv{config: cfg, logger: logger}
	storeOpts := []store.Option{
		store.WithLogger(logger),
		store.WithCacheSize(cfg.Cache.Size),
		store.WithBusyTimeout(cfg.Database.BusyTimeout()),
		store.WithHierarchy(hierarchy),
	}
	if cfg.Metrics.Enabled {
		env.registry = prometheus.NewRegistry()
		storeOpts = append(storeOpts, store.WithMetrics(env.registry))
	}

	env.store, err = store.Open(ctx, cfg.Database.Path, storeOpts...)
	if err != nil {
		return nil, WrapStoreError("failed to open database", err)
	}
	return env, nil
}

// newLogger builds the slog handler selected by cfg. --verbose forces
// debug level.
func newLogger(w io.Writer, cfg config.LogConfig, verbose bool) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

// loadHierarchy returns the built-in hierarchy extended by the YAML file at
// path, if any.
func loadHierarchy(path string) (*ontology.Registry, error) {
	reg, err := ontology.Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return reg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := reg.Load(f); err != nil {
		return nil, err
	}
	return reg, nil
}
