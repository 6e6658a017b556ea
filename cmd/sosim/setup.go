package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/config"
	"github.com/talgya/sosim/internal/engine"
	"github.com/talgya/sosim/internal/entropy"
	"github.com/talgya/sosim/internal/logging"
	"github.com/talgya/sosim/internal/persistence"
	"github.com/talgya/sosim/internal/persistence/eventlog"
	"github.com/talgya/sosim/internal/scenario"
	"github.com/talgya/sosim/internal/world"
)

// loadConfig reads the config named by --config, applies command-line
// overrides and installs the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		if !logging.ValidLevel(lvl) {
			return nil, fmt.Errorf("invalid --log-level %q", lvl)
		}
		cfg.Logging.Level = lvl
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	if cfg.Logging.Format == "json" {
		logger = logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// buildWorld assembles the demo scenario from the sim section.
func buildWorld(cfg *config.Config) (*world.World, error) {
	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = entropy.RandomSeed()
	}
	policy, err := agents.PolicyByName(cfg.Sim.MovePolicy, seed)
	if err != nil {
		return nil, err
	}

	sc := scenario.DefaultConfig()
	sc.Seed = seed
	sc.Width, sc.Height = cfg.Sim.Width, cfg.Sim.Height
	sc.Patrols, sc.Medics = cfg.Sim.Patrols, cfg.Sim.Medics
	sc.AlertLevel = cfg.Sim.AlertLevel
	sc.MovePolicy = policy
	return scenario.Build(sc)
}

func newEngine(cfg *config.Config, w *world.World) *engine.Engine {
	e := engine.NewEngine(w)
	e.Parallel = cfg.Sim.Parallel
	e.ParallelLimit = cfg.Sim.ParallelLimit
	e.ReportEvery = cfg.Sim.ReportEvery
	return e
}

// outputs are the persistent sinks of a run.
type outputs struct {
	db     *persistence.DB
	export *eventlog.Writer
}

// openOutputs attaches the SQLite store and the JSONL export configured in
// the storage section. fresh clears the store first.
func openOutputs(cfg *config.Config, e *engine.Engine, fresh bool) (*outputs, error) {
	out := &outputs{}
	if cfg.Storage.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			return nil, err
		}
		db, err := persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		if fresh {
			if err := db.Reset(); err != nil {
				db.Close()
				return nil, err
			}
		}
		out.db = db
		e.AddSink(db)
		slog.Info("database opened", "path", cfg.Storage.DBPath)
	}
	if cfg.Storage.ExportDir != "" {
		out.export = eventlog.NewWriter(cfg.Storage.ExportDir, e.World.ID(), cfg.Storage.TicksPerFile)
		e.AddSink(out.export)
		slog.Info("event export enabled", "dir", cfg.Storage.ExportDir, "ticks_per_file", cfg.Storage.TicksPerFile)
	}
	if logging.ParseLevel(cfg.Logging.Level) <= logging.LevelTrace {
		e.AddSink(engine.LogSink{})
	}
	return out, nil
}

func (o *outputs) Close() error {
	var err error
	if o.export != nil {
		err = o.export.Close()
	}
	if o.db != nil {
		if cerr := o.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
