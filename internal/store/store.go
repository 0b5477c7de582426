// Package store persists crawl-run history.
package store

import (
	"context"
	"time"
)

// Run is one crawl execution, full or by-SKU.
type Run struct {
	ID            string    `json:"id"`
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	CatalogsTotal int       `json:"catalogs_total"`
	CatalogsOK    int       `json:"catalogs_ok"`
	Products      int       `json:"products"`
	ReportPath    string    `json:"report_path,omitempty"`
}

// CatalogStat is the per-catalog outcome of a run.
type CatalogStat struct {
	RunID        string  `json:"run_id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	TotalItems   int     `json:"total_items"`
	Harvested    int     `json:"harvested"`
	Parsed       int     `json:"parsed"`
	HarvestedPct float64 `json:"harvested_pct"`
	ParsedPct    float64 `json:"parsed_pct"`
	Retried      bool    `json:"retried"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, mode string) (*Run, error)
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	RecordCatalogStat(ctx context.Context, stat CatalogStat) error
	ListCatalogStats(ctx context.Context, runID string) ([]CatalogStat, error)

	Migrate(ctx context.Context) error
	Close() error
}
