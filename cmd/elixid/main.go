package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RajputVikashS5/Elixi-AI/config"
	"github.com/RajputVikashS5/Elixi-AI/events"
	"github.com/RajputVikashS5/Elixi-AI/habits"
	"github.com/RajputVikashS5/Elixi-AI/learning"
	elixilogger "github.com/RajputVikashS5/Elixi-AI/logger"
	"github.com/RajputVikashS5/Elixi-AI/memory"
	"github.com/RajputVikashS5/Elixi-AI/migrations"
	"github.com/RajputVikashS5/Elixi-AI/preferences"
	"github.com/RajputVikashS5/Elixi-AI/retention"
	"github.com/RajputVikashS5/Elixi-AI/runtime"
	"github.com/RajputVikashS5/Elixi-AI/storage"
	"github.com/RajputVikashS5/Elixi-AI/suggestions"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath  = flag.String("db", "", "Path to SQLite database file (overrides config)")
		logFile = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty  = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := elixilogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger.Info().
		Str("db", cfg.Database.Path).
		Msg("elixid starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // nothing to do with close error at shutdown

	if err := migrations.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	memoryStore, err := memory.NewStore(db, cfg.Search.SimilarityThreshold, logger)
	if err != nil {
		return err
	}
	eventStore, err := events.NewStore(db, logger)
	if err != nil {
		return err
	}
	preferenceStore, err := preferences.NewStore(db, logger)
	if err != nil {
		return err
	}
	miner, err := habits.NewMiner(db, eventStore, logger)
	if err != nil {
		return err
	}
	learner, err := learning.NewLearner(eventStore, memoryStore, preferenceStore, logger)
	if err != nil {
		return err
	}
	suggestionStore, err := suggestions.NewStore(db, logger)
	if err != nil {
		return err
	}
	retentionEngine, err := retention.NewEngine(db, memoryStore,
		cfg.Retention.BaseDays, cfg.Retention.EventKeepDays, logger)
	if err != nil {
		return err
	}
	scheduler, err := runtime.NewScheduler(runtime.Config{
		Miner:              miner,
		Learner:            learner,
		Preferences:        preferenceStore,
		Suggestions:        suggestionStore,
		Retention:          retentionEngine,
		MiningSchedule:     cfg.Mining.Schedule,
		RetentionSchedule:  cfg.Retention.Schedule,
		MiningWindowDays:   cfg.Mining.WindowDays,
		BehaviorWindowDays: cfg.Mining.BehaviorWindowDays,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info().Msg("elixid running, press Ctrl+C to stop")
	scheduler.Run(ctx)

	logger.Info().Msg("elixid stopped")
	return nil
}
