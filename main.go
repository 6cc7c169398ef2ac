package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devblog/internal/config"
	"devblog/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InsecureSecret() {
		logger.Warn(ctx, "DEVBLOG_SESSION_SECRET not set, using the built-in development secret")
	}

	db, err := openDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err = initDB(ctx, db); err != nil {
		log.Fatalf("initializing database: %v", err)
	}

	blog, err := NewBlog(cfg, db, logger)
	if err != nil {
		log.Fatalf("creating blog: %v", err)
	}

	if cfg.TemplateDir != "" {
		if err := blog.templates.watch(ctx, cfg.TemplateDir, logger); err != nil {
			logger.Warn(ctx, "template reload disabled", "error", err)
		}
	}

	go blog.runCleanup(ctx, time.Hour)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           blog.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "shutting down", "error", err)
		}
	}()

	logger.Info(ctx, "server starting", "addr", cfg.Addr, "api", cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
