package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLEngine is the SQLite-backed implementation of Storage, built on the
// two-table schema of spec §4.3 and the CTE query plan of spec §4.4.
type SQLEngine struct {
	db     *sqlx.DB
	logger *log.Logger
}

// Open connects to the SQLite database at path, applies pending migrations,
// and returns a ready-to-use engine. Spec §4.3's schema lives under
// internal/storage/migrations.
func Open(path string, logger *log.Logger) (*SQLEngine, error) {
	if logger == nil {
		logger = log.Default()
	}

	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}
	// sqlite does not support concurrent writers; serialize through one
	// connection the way the storage pool's "engine-managed" locking (spec
	// §5) is realized here.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLEngine{db: db, logger: logger}, nil
}

func migrateUp(db *sql.DB, logger *log.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("storage: sqlite migrate driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("storage: reading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("storage: constructing migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("storage: applying migrations: %w", err)
	}
	logger.Println("[STORAGE] schema up to date")
	return nil
}

// Close releases the database handle.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}

// Stats reports row counts and the observed time span of stored points.
func (e *SQLEngine) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := e.db.GetContext(ctx, &stats.CounterRows, `SELECT COUNT(*) FROM counter_metrics`); err != nil {
		return Stats{}, fmt.Errorf("storage: counting counter rows: %w", err)
	}
	if err := e.db.GetContext(ctx, &stats.GaugeRows, `SELECT COUNT(*) FROM gauge_metrics`); err != nil {
		return Stats{}, fmt.Errorf("storage: counting gauge rows: %w", err)
	}

	var oldest, newest sql.NullInt64
	if err := e.db.GetContext(ctx, &oldest, `
		SELECT MIN(ts) FROM (
			SELECT MIN(timestamp) AS ts FROM counter_metrics
			UNION ALL SELECT MIN(timestamp) FROM gauge_metrics
		)`); err != nil {
		return Stats{}, fmt.Errorf("storage: finding oldest point: %w", err)
	}
	if err := e.db.GetContext(ctx, &newest, `
		SELECT MAX(ts) FROM (
			SELECT MAX(timestamp) AS ts FROM counter_metrics
			UNION ALL SELECT MAX(timestamp) FROM gauge_metrics
		)`); err != nil {
		return Stats{}, fmt.Errorf("storage: finding newest point: %w", err)
	}
	if oldest.Valid {
		stats.OldestPoint = time.Unix(oldest.Int64, 0).UTC()
	}
	if newest.Valid {
		stats.NewestPoint = time.Unix(newest.Int64, 0).UTC()
	}
	return stats, nil
}

// Cleanup deletes rows older than the cutoff from both tables, used by the
// periodic maintenance job (spec §4.10 equivalent retention sweep).
func (e *SQLEngine) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := olderThan.Unix()
	var removed int64

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: starting cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"counter_metrics", "gauge_metrics"} {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, table), cutoff)
		if err != nil {
			return 0, fmt.Errorf("storage: deleting from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("storage: counting deleted rows in %s: %w", table, err)
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: committing cleanup: %w", err)
	}
	return removed, nil
}
