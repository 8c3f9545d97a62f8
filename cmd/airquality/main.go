package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codeanster/washington-air-quality/internal/config"
	"github.com/codeanster/washington-air-quality/internal/database"
	"github.com/codeanster/washington-air-quality/internal/feed"
	"github.com/codeanster/washington-air-quality/internal/importsources"
	"github.com/codeanster/washington-air-quality/internal/process"
	"github.com/codeanster/washington-air-quality/internal/server"
	"github.com/codeanster/washington-air-quality/internal/store"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func main() {
	cfg := config.DefaultConfig()

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importCmd.StringVar(&cfg.SourcesCSVPath, "csv", config.GetEnvString("AIRQUALITY_CSV_PATH", config.DefaultSourcesCSVPath),
		"Path to the sources CSV file (env: AIRQUALITY_CSV_PATH)")
	importCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("AIRQUALITY_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: AIRQUALITY_DB_PATH)")

	var logLevelStr string
	importCmd.StringVar(&logLevelStr, "log-level", config.GetEnvString("AIRQUALITY_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: AIRQUALITY_LOG_LEVEL)")

	collectCmd := flag.NewFlagSet("collect", flag.ExitOnError)
	collectCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("AIRQUALITY_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: AIRQUALITY_DB_PATH)")

	var collectLogLevelStr string
	collectCmd.StringVar(&collectLogLevelStr, "log-level", config.GetEnvString("AIRQUALITY_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: AIRQUALITY_LOG_LEVEL)")

	var intervalMinutes int
	collectCmd.IntVar(&intervalMinutes, "interval", config.GetEnvInt("AIRQUALITY_INTERVAL", config.DefaultInterval),
		"Interval in minutes between collection runs, 0 for one-shot mode (env: AIRQUALITY_INTERVAL)")

	collectCmd.IntVar(&cfg.WorkerCount, "workers", config.GetEnvInt("AIRQUALITY_WORKER_COUNT", config.DefaultWorkerCount),
		"Number of worker goroutines for source fetching, 0 for CPU count (env: AIRQUALITY_WORKER_COUNT)")

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("AIRQUALITY_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: AIRQUALITY_DB_PATH)")

	serverCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("AIRQUALITY_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: AIRQUALITY_HOST)")

	serverCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("AIRQUALITY_PORT", config.DefaultServerPort),
		"Port to listen on (env: AIRQUALITY_PORT)")

	var serverLogLevelStr string
	serverCmd.StringVar(&serverLogLevelStr, "log-level", config.GetEnvString("AIRQUALITY_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: AIRQUALITY_LOG_LEVEL)")

	if len(os.Args) < 2 {
		fmt.Println("Usage: airquality [command] [options]")
		fmt.Println("Commands: import, collect, server")
		fmt.Println("\nFor command-specific options, use: airquality [command] -h")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		importCmd.Parse(os.Args[2:])

		// Handle log level parsing separately since it needs conversion
		if level, err := zerolog.ParseLevel(logLevelStr); err == nil {
			cfg.LogLevel = level
		}

		zerolog.SetGlobalLevel(cfg.LogLevel)

		err := runImport(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Import failed")
			os.Exit(1)
		}

	case "collect":
		collectCmd.Parse(os.Args[2:])

		// Handle log level parsing separately
		if level, err := zerolog.ParseLevel(collectLogLevelStr); err == nil {
			cfg.LogLevel = level
		}

		// Convert interval minutes to duration
		cfg.Interval = time.Duration(intervalMinutes) * time.Minute

		zerolog.SetGlobalLevel(cfg.LogLevel)

		err := runCollect(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Collection failed")
			os.Exit(1)
		}

	case "server":
		serverCmd.Parse(os.Args[2:])

		// Handle log level parsing separately
		if level, err := zerolog.ParseLevel(serverLogLevelStr); err == nil {
			cfg.LogLevel = level
		}

		zerolog.SetGlobalLevel(cfg.LogLevel)

		err := runServer(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		fmt.Println("Usage: airquality [command] [options]")
		fmt.Println("Commands: import, collect, server")
		fmt.Println("\nFor command-specific options, use: airquality [command] -h")
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println("Available commands: import, collect, server")
		fmt.Println("\nFor command-specific options, use: airquality [command] -h")
		os.Exit(1)
	}
}

// runImport imports sources from a CSV file into a fresh database.
// It will prompt for confirmation before deleting an existing database.
func runImport(cfg *config.Config) error {
	if _, err := os.Stat(cfg.DBPath); err == nil {
		fmt.Printf("Database %s already exists. All data will be lost as updates are not currently supported.\n", cfg.DBPath)
		fmt.Print("Delete and recreate? (y/N): ")

		var answer string
		fmt.Scanln(&answer)

		if strings.ToLower(answer) != "y" {
			log.Info().Msg("Operation canceled by user")
			return fmt.Errorf("operation canceled by user")
		}

		err := database.DeleteDB(cfg.DBPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to delete existing database")
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
		log.Info().Str("path", cfg.DBPath).Msg("Deleted existing database")
	}

	dbCfg := database.NewConfig(cfg.DBPath)
	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	importer := importsources.NewImporter(db)
	return importer.ImportSources(cfg.SourcesCSVPath)
}

// runCollect executes the collection pipeline either once or periodically
// based on configuration.
func runCollect(cfg *config.Config) error {
	if cfg.Interval <= 0 {
		log.Info().Msg("Running in one-shot mode")
	} else {
		log.Info().Int64("interval_minutes", int64(cfg.Interval.Minutes())).Msg("Running in periodic mode")
	}

	dbCfg := database.NewConfig(cfg.DBPath)
	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel() // Cancel the context to stop processing
	}()

	if err := runCollectionCycle(ctx, db, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Collection cycle canceled by shutdown signal")
			return nil
		}
		return err
	}

	if cfg.Interval == 0 {
		log.Info().Msg("One-shot collection completed, exiting")
		return nil
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", cfg.Interval).
		Time("next_run", time.Now().Add(cfg.Interval)).
		Msg("Waiting for next collection cycle")

	for {
		select {
		case <-ticker.C:
			log.Info().Msg("Starting scheduled collection cycle")

			if err := runCollectionCycle(ctx, db, cfg); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Info().Msg("Collection cycle canceled by shutdown signal")
					return nil
				}
				log.Error().Err(err).Msg("Collection cycle failed")
				// Continue to the next cycle rather than exiting
			}

			log.Info().
				Time("next_run", time.Now().Add(cfg.Interval)).
				Msg("Waiting for next collection cycle")

		case <-ctx.Done():
			log.Info().Msg("Shutting down periodic collection")
			return nil
		}
	}
}

// runCollectionCycle executes a single collection cycle over the active sources.
func runCollectionCycle(ctx context.Context, db *database.DB, cfg *config.Config) error {
	processor, err := process.NewProcessor(feed.NewFetcher(), store.New(db), cfg.WorkerCount)
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	collectCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	sources, err := db.ActiveSources(collectCtx)
	if err != nil {
		return fmt.Errorf("failed to load active sources: %w", err)
	}
	if len(sources) == 0 {
		log.Warn().Msg("No active sources configured, nothing to collect")
		return nil
	}

	log.Info().
		Int("worker_count", processor.WorkerCount).
		Int("source_count", len(sources)).
		Msg("Starting collection cycle")

	startTime := time.Now()
	summary, err := processor.Run(collectCtx, sources)
	endTime := time.Now()

	log.Info().
		Dur("duration", endTime.Sub(startTime)).
		Msg("Collection cycle finished")

	if err != nil {
		if ctxErr := collectCtx.Err(); ctxErr != nil && (errors.Is(ctxErr, err) || err.Error() == ctxErr.Error()) {
			return ctx.Err() // Propagate cancellation
		}
		return fmt.Errorf("collection error: %w", err)
	}

	log.Info().
		Int("sources", summary.Sources).
		Int64("entries", summary.Entries).
		Int64("inserted", summary.Inserted).
		Int64("duplicates", summary.Duplicates).
		Int64("failed", summary.Failed).
		Msg("Collection stats")

	return nil
}

// runServer starts the HTTP API server with the provided configuration.
func runServer(cfg *config.Config) error {
	log.Debug().Msg("Starting server with debug logging enabled")

	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.ReadOnly = true

	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return server.RunServer(db, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}
