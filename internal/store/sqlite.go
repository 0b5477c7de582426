package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	mode           TEXT NOT NULL,
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME,
	catalogs_total INTEGER NOT NULL DEFAULT 0,
	catalogs_ok    INTEGER NOT NULL DEFAULT 0,
	products       INTEGER NOT NULL DEFAULT 0,
	report_path    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS catalog_stats (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	total_items   INTEGER NOT NULL DEFAULT 0,
	harvested     INTEGER NOT NULL DEFAULT 0,
	parsed        INTEGER NOT NULL DEFAULT 0,
	harvested_pct REAL NOT NULL DEFAULT 0,
	parsed_pct    REAL NOT NULL DEFAULT 0,
	retried       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_catalog_stats_run_id ON catalog_stats(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Mode, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, catalogs_total = ?, catalogs_ok = ?, products = ?, report_path = ? WHERE id = ?`,
		run.FinishedAt, run.CatalogsTotal, run.CatalogsOK, run.Products, run.ReportPath, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, started_at, COALESCE(finished_at, started_at), catalogs_total, catalogs_ok, products, report_path
		 FROM runs WHERE id = ?`, runID)

	var run Run
	err := row.Scan(&run.ID, &run.Mode, &run.StartedAt, &run.FinishedAt,
		&run.CatalogsTotal, &run.CatalogsOK, &run.Products, &run.ReportPath)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, started_at, COALESCE(finished_at, started_at), catalogs_total, catalogs_ok, products, report_path
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Mode, &run.StartedAt, &run.FinishedAt,
			&run.CatalogsTotal, &run.CatalogsOK, &run.Products, &run.ReportPath); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) RecordCatalogStat(ctx context.Context, stat CatalogStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_stats (run_id, name, status, total_items, harvested, parsed, harvested_pct, parsed_pct, retried)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, name) DO UPDATE SET
			status = excluded.status,
			total_items = excluded.total_items,
			harvested = excluded.harvested,
			parsed = excluded.parsed,
			harvested_pct = excluded.harvested_pct,
			parsed_pct = excluded.parsed_pct,
			retried = excluded.retried`,
		stat.RunID, stat.Name, stat.Status, stat.TotalItems, stat.Harvested,
		stat.Parsed, stat.HarvestedPct, stat.ParsedPct, stat.Retried,
	)
	return eris.Wrapf(err, "sqlite: record catalog stat %s/%s", stat.RunID, stat.Name)
}

func (s *SQLiteStore) ListCatalogStats(ctx context.Context, runID string) ([]CatalogStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, status, total_items, harvested, parsed, harvested_pct, parsed_pct, retried
		 FROM catalog_stats WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list catalog stats %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var stats []CatalogStat
	for rows.Next() {
		var stat CatalogStat
		if err := rows.Scan(&stat.RunID, &stat.Name, &stat.Status, &stat.TotalItems,
			&stat.Harvested, &stat.Parsed, &stat.HarvestedPct, &stat.ParsedPct, &stat.Retried); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog stat")
		}
		stats = append(stats, stat)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate catalog stats")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
