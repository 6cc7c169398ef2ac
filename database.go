package main

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"devblog/internal/storage"
)

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// one connection keeps :memory: databases alive and serializes writes
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func initDB(ctx context.Context, db *sql.DB) error {
	return storage.Migrate(ctx, db)
}
