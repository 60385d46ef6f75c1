package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	model "github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/metrics"
)

type migration struct {
	Version int
	SQL     string
}

var sqliteMigrations = []migration{
	{
		Version: 1,
		SQL: `CREATE TABLE IF NOT EXISTS samples (
			metric   TEXT    NOT NULL,
			start_ns INTEGER NOT NULL,
			end_ns   INTEGER NOT NULL,
			source   TEXT    NOT NULL,
			value    REAL    NOT NULL,
			unit     TEXT    NOT NULL,
			quality  TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (metric, source, start_ns, end_ns)
		)`,
	},
	{
		Version: 2,
		SQL:     `CREATE INDEX IF NOT EXISTS idx_samples_metric_start ON samples (metric, start_ns)`,
	},
}

// SQLite stores samples one row each, keyed by series key.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range sqliteMigrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration version %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration version %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Name() string { return DriverSQLite }

// Save inserts every sample in one transaction; existing rows win.
func (s *SQLite) Save(ctx context.Context, series map[model.MetricType][]model.Sample) error {
	start := time.Now()
	err := s.save(ctx, series)
	metrics.RecordPersistence(DriverSQLite, "save", err, metrics.Since(start))
	return err
}

func (s *SQLite) save(ctx context.Context, series map[model.MetricType][]model.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO samples
		(metric, start_ns, end_ns, source, value, unit, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for t, samples := range series {
		for _, smp := range samples {
			_, err := stmt.ExecContext(ctx,
				string(t),
				smp.Start.UnixNano(),
				smp.End.UnixNano(),
				smp.SourceID,
				smp.Value,
				string(smp.Unit),
				string(smp.Quality),
			)
			if err != nil {
				return fmt.Errorf("failed to insert sample: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads every row ordered by metric and series key.
func (s *SQLite) Load(ctx context.Context) ([]model.Sample, error) {
	start := time.Now()
	out, err := s.load(ctx)
	metrics.RecordPersistence(DriverSQLite, "load", err, metrics.Since(start))
	return out, err
}

func (s *SQLite) load(ctx context.Context) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT metric, start_ns, end_ns, source, value, unit, quality
		FROM samples ORDER BY metric, start_ns, end_ns, source`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		var (
			smp            model.Sample
			metric, unit   string
			quality        string
			startNs, endNs int64
		)
		if err := rows.Scan(&metric, &startNs, &endNs, &smp.SourceID, &smp.Value, &unit, &quality); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		smp.Type = model.MetricType(metric)
		smp.Unit = model.Unit(unit)
		smp.Quality = model.Quality(quality)
		smp.Start = time.Unix(0, startNs).UTC()
		smp.End = time.Unix(0, endNs).UTC()
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
