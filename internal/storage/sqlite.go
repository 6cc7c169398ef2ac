package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"

	"devblog/internal/storage/migrations"
)

const kvTable = "kv"

// Migrate brings the kv schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// SQLite stores values for many scopes (one per visitor) in a single table.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// Scope returns the Storage view of a single scope.
func (s *SQLite) Scope(scope string) Storage {
	return &scoped{s: s, scope: scope}
}

func (s *SQLite) get(ctx context.Context, scope, key string) (string, bool, error) {
	query, args, err := sq.Select("value").
		From(kvTable).
		Where(sq.Eq{"scope": scope, "key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("building select: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %s[%s]: %w", scope, key, err)
	}
	return value, true, nil
}

func (s *SQLite) set(ctx context.Context, scope, key, value string) error {
	query, args, err := sq.Insert(kvTable).
		Columns("scope", "key", "value", "updated_at").
		Values(scope, key, value, s.now().Unix()).
		Suffix("ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("setting %s[%s]: %w", scope, key, err)
	}
	return nil
}

func (s *SQLite) delete(ctx context.Context, scope, key string) error {
	query, args, err := sq.Delete(kvTable).
		Where(sq.Eq{"scope": scope, "key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting %s[%s]: %w", scope, key, err)
	}
	return nil
}

// Clear removes every key of a scope.
func (s *SQLite) Clear(ctx context.Context, scope string) error {
	query, args, err := sq.Delete(kvTable).Where(sq.Eq{"scope": scope}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing %s: %w", scope, err)
	}
	return nil
}

// PurgeStale drops whole scopes whose newest write is older than before.
func (s *SQLite) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := sq.Delete(kvTable).
		Where(sq.Expr("scope IN (SELECT scope FROM kv GROUP BY scope HAVING MAX(updated_at) < ?)", before.Unix())).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building purge: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purging stale scopes: %w", err)
	}
	return res.RowsAffected()
}

type scoped struct {
	s     *SQLite
	scope string
}

func (c *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return c.s.get(ctx, c.scope, key)
}

func (c *scoped) Set(ctx context.Context, key, value string) error {
	return c.s.set(ctx, c.scope, key, value)
}

func (c *scoped) Delete(ctx context.Context, key string) error {
	return c.s.delete(ctx, c.scope, key)
}
