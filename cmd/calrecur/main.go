// Command calrecur serves and edits a calendar of recurring events.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/cyp0633/calrecur/calendar"
	"github.com/cyp0633/calrecur/internal/config"
	"github.com/cyp0633/calrecur/storage"
	"github.com/cyp0633/calrecur/storage/jsonfile"
	"github.com/cyp0633/calrecur/storage/memory"
	"github.com/cyp0633/calrecur/storage/postgres"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "calrecur",
		Usage: "Expand and edit recurring calendar events.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "calrecur.yaml",
				EnvVars: []string{"CALRECUR_CONFIG"},
				Usage:   "YAML configuration file; created with defaults when missing",
			},
			&cli.StringFlag{Name: "log-level", Usage: "Override the configured log level."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			agendaCommand(),
			addCommand(),
			editCommand(),
			deleteCommand(),
			upcomingCommand(),
			exportCommand(),
		},
	}
}

// env holds what every command needs once configuration is loaded.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	cal    *calendar.Calendar
	closer io.Closer
}

func (e *env) Close() {
	e.cal.Close()
	if e.closer != nil {
		if err := e.closer.Close(); err != nil {
			e.logger.Warn("failed to close storage", "error", err)
		}
	}
}

// setup loads the configuration, opens the configured store and the calendar.
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	store, closer, err := openStore(c.Context, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	cal, err := calendar.New(c.Context, store, calendar.Config{
		Logger: logger,
		Engine: cfg.EngineConfig(),
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, cal: cal, closer: closer}, nil
}

func openStore(ctx context.Context, sc config.StorageConfig, logger *slog.Logger) (storage.Storage, io.Closer, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil, nil
	case config.DriverJSON:
		return jsonfile.New(sc.Path, logger), nil, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, sc.DSN, postgres.Options{Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
