package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/stake-pf-predict-go/internal/api"
	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/config"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
	"github.com/MJE43/stake-pf-predict-go/internal/logging"
	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
	"github.com/MJE43/stake-pf-predict-go/internal/scripting"
	"github.com/MJE43/stake-pf-predict-go/internal/seedvault"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
	"github.com/MJE43/stake-pf-predict-go/internal/telemetry"
)

const serviceName = "stake-pf-predict"

// app holds everything a subcommand may need. Fields are nil when the
// command did not ask for them.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	selector *backend.Selector
	pipeline *pipeline.Pipeline
	db       store.DB

	closers []func(context.Context) error
}

type appOptions struct {
	pipeline bool
	store    bool
	pacing   bool
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		level = lvl
	}
	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger(level, cmd.ErrOrStderr()),
	}
	ctx := cmd.Context()

	if telemetry.Enabled() {
		shutdown, err := telemetry.Setup(ctx, serviceName, api.EngineVersion)
		if err != nil {
			a.logger.Warn("tracing disabled", "error", err)
		} else {
			a.closers = append(a.closers, shutdown)
		}
	}

	if opts.store && !cfg.Store.Disabled {
		if err := a.openStore(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	if opts.pipeline {
		if err := a.buildPipeline(ctx, opts.pacing); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Store.Path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.NewSQLiteDB(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	return nil
}

func (a *app) buildPipeline(ctx context.Context, pacing bool) error {
	hidden := a.cfg.Accelerator.HiddenUnits
	a.selector = backend.NewSelector(
		backend.NewAcceleratedBackend(backend.AcceleratedConfig{
			Disabled:     a.cfg.Accelerator.Disabled,
			HiddenLayers: hidden,
		}),
		backend.NewSimulatedBackend(backend.WithSimulatedHiddenLayers(hidden)),
		a.logger,
	)
	if err := a.selector.Init(ctx); err != nil {
		return fmt.Errorf("initialize backend: %w", err)
	}

	var pacer games.Pacer = games.NoPacer{}
	if pacing {
		pacer = games.NewPacer(a.cfg.CoinflipPacing)
	}
	formatters := games.DefaultFormatters(games.Options{
		SafeProbability: a.cfg.MinesGridSafetyProbability,
		CoinflipLength:  a.cfg.CoinflipSequenceLength,
		Pacer:           pacer,
	})
	if path := a.cfg.Formatter.ScriptPath; path != "" {
		scripted, vm, err := scripting.LoadFile(path, formatters, scripting.Options{
			CoinflipLength: a.cfg.CoinflipSequenceLength,
			Pacer:          pacer,
			CallTimeout:    a.cfg.Formatter.ScriptTimeout,
		})
		if err != nil {
			return fmt.Errorf("load formatter script: %w", err)
		}
		formatters = scripted
		a.closers = append(a.closers, func(context.Context) error {
			for _, entry := range vm.Logs() {
				a.logger.Debug("script log", "message", entry.Message)
			}
			return nil
		})
	}

	var recorder pipeline.Recorder
	if a.db != nil {
		recorder = store.NewRecorder(a.db, api.EngineVersion)
	}

	p, err := pipeline.New(a.selector, pipeline.Options{
		Algorithm:   a.cfg.HashAlgorithm,
		FeatureSize: a.cfg.SeedVectorSize,
		Formatters:  formatters,
		Logger:      a.logger,
		Recorder:    recorder,
	})
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *app) vault() *seedvault.Vault {
	return seedvault.New(a.cfg.Keyring.Service, a.cfg.Keyring.FallbackPath)
}

// close runs closers in reverse order and logs failures.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", "error", err)
	}
}
