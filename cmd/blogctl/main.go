package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"

	_ "modernc.org/sqlite"

	"devblog/internal/apiclient"
	"devblog/internal/cli"
	"devblog/internal/config"
	"devblog/internal/logging"
	"devblog/internal/session"
	"devblog/internal/storage"
)

// cliScope keeps blogctl's tokens apart from browser visitors sharing the
// database file.
const cliScope = "cli"

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, "blogctl:", err)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, args, err := config.LoadCommand(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := logging.New(os.Stderr, cfg.LogLevel, "text")

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := storage.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	store, err := storage.NewSealed(storage.NewSQLite(db).Scope(cliScope), []byte(cfg.SessionSecret))
	if err != nil {
		return err
	}

	api := &apiclient.Factory{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.RequestTimeout,
		ReissuePath: cfg.ReissuePath,
	}
	var reissuer session.Reissuer = api
	if cfg.ReissueMode == config.ReissuePromote {
		reissuer = session.PromoteRefresh{}
	}
	sessions := session.NewManager(reissuer, session.WithLogger(logger))

	app := cli.NewApp(api, sessions, store, os.Stdin, os.Stdout)
	return app.Run(ctx, args)
}
