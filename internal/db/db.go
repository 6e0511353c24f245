// Package db persists conversations, pipeline runs, their stage history and
// artifacts in PostgreSQL.
package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the connection pool shared by Store and the history queries
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for databaseURL and pings it once so a bad
// DATABASE_URL fails at startup rather than on the first run.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate runs every embedded migration in file-name order. Each file uses
// IF NOT EXISTS so reruns are harmless.
func (db *DB) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		ddl, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		if _, err := db.pool.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("applying %s: %w", file, err)
		}
	}
	return nil
}
