package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nathoo/talecore/config"
	"github.com/nathoo/talecore/engine"
	"github.com/nathoo/talecore/engine/generate"
	"github.com/nathoo/talecore/engine/prompt"
	"github.com/nathoo/talecore/engine/rules"
	"github.com/nathoo/talecore/engine/save"
	"github.com/nathoo/talecore/engine/save/filestore"
	"github.com/nathoo/talecore/engine/save/redisstore"
	"github.com/nathoo/talecore/engine/save/sqlstore"
	"github.com/nathoo/talecore/loader"
	"github.com/nathoo/talecore/logging"
	"github.com/nathoo/talecore/provider"
	"github.com/nathoo/talecore/telemetry"
)

// LogFile is the application log written under the log directory when the
// terminal UI owns stdout.
const LogFile = "talecore.log"

// app owns everything a play session needs and closes it afterwards.
type app struct {
	engine  *engine.Engine
	saves   save.Store
	logger  *slog.Logger
	closers []io.Closer
}

// newApp loads config and the game in dir, then wires provider, generation,
// rules, prompts, saves and metrics into an engine. With logToStderr the
// logger writes to stderr; otherwise to a file in the log directory.
func newApp(ctx context.Context, dir string, logToStderr bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{}
	if err := a.setupLogger(cfg, logToStderr); err != nil {
		return nil, err
	}

	defs, warnings, err := loader.LoadWithWarnings(dir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading game: %w", err)
	}
	for _, w := range warnings {
		a.logger.Warn("game definition", "warning", w)
	}

	p, err := provider.New(ctx, cfg.LLM, defs)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("provider: %w", err)
	}
	a.closers = append(a.closers, p)
	a.logger.Info("provider ready", "provider", p.Name(), "game", defs.Game.ID)

	saves, err := openSaves(ctx, cfg.Save, defs.Game.ID)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("save backend: %w", err)
	}
	a.saves = saves
	if c, ok := saves.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	turnLog, err := logging.NewTurnLog(cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	metrics := telemetry.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, a.logger); err != nil {
				a.logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	gen := generate.New(p,
		generate.WithMaxRetries(cfg.LLM.MaxRetries),
		generate.WithLenient(cfg.LLM.Lenient),
		generate.WithLogger(a.logger),
		generate.WithObserver(metrics),
	)
	a.engine = engine.New(defs, gen,
		engine.WithLogger(a.logger),
		engine.WithRules(rules.New(defs, rules.WithLogger(a.logger), rules.WithObserver(metrics))),
		engine.WithPromptBuilder(&prompt.Builder{
			Defs:          defs,
			Compact:       cfg.Prompt.Compact,
			WorldMaxChars: cfg.Prompt.WorldMaxChars,
		}),
		engine.WithTurnLog(turnLog),
		engine.WithObserver(metrics),
	)
	return a, nil
}

func (a *app) setupLogger(cfg *config.Config, toStderr bool) error {
	if toStderr {
		a.logger = logging.New(os.Stderr, cfg.Level())
		return nil
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.LogDir, LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	a.closers = append(a.closers, f)
	a.logger = logging.New(f, cfg.Level())
	return nil
}

// openSaves returns the configured save backend, scoped to gameID.
func openSaves(ctx context.Context, cfg config.Save, gameID string) (save.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := sqlstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := sqlstore.New(ctx, db, gameID)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		return redisstore.New(cfg.RedisAddr, "", 0,
			redisstore.WithPrefix(redisstore.DefaultPrefix+gameID+":"),
		), nil
	default:
		return filestore.New(filepath.Join(cfg.Dir, gameID)), nil
	}
}

// Close releases the provider, save backend and log file.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
