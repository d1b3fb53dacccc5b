// Package migrate applies the portal's embedded SQL schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes concurrent migrators (several replicas booting at once).
const advisoryLockKey = 72_201_001

// Run applies all pending migrations in lexical order. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) error {
	if err := ensureTable(ctx, db); err != nil {
		return err
	}
	files, err := migrationFiles()
	if err != nil {
		return err
	}
	logger := slog.Default().With("component", "migrations")
	for _, f := range files {
		if applyErr := applyMigration(ctx, db, logger, f); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Pending lists migration versions that have not been applied yet.
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := migrationFiles()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		exists, existsErr := migrationExists(ctx, db, version(f))
		if existsErr != nil {
			return nil, existsErr
		}
		if !exists {
			out = append(out, version(f))
		}
	}
	return out, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func version(file string) string { return strings.TrimSuffix(file, ".sql") }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func migrationExists(ctx context.Context, q queryer, v string) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, v).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", v, err)
	}
	return exists, nil
}

func applyMigration(ctx context.Context, db *sql.DB, logger *slog.Logger, file string) (err error) {
	v := version(file)
	sqlBytes, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", file)
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	// Re-check under the lock; another replica may have just applied it.
	exists, err := migrationExists(ctx, tx, v)
	if err != nil || exists {
		return err
	}

	logger.InfoContext(ctx, "applying migration", "version", v)
	if _, err = tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("exec migration %s: %w", file, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, v); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}
