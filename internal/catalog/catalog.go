// Package catalog persists run provenance in a SQLite file next to the
// generated dataset: what was generated, with which parameters, and every
// instance that was skipped or dropped along the way. The composition and
// conversion reports are transient; the catalog is their durable form, so a
// dataset directory always explains itself.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/synthgrove/synthgen/internal/annotate"
	"github.com/synthgrove/synthgen/internal/compose"
)

// schema contains the DDL executed on every open. IF NOT EXISTS makes it
// safe to run against an existing catalog.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    seed              INTEGER NOT NULL,
    count             INTEGER NOT NULL,
    width             INTEGER NOT NULL,
    height            INTEGER NOT NULL,
    overlap_threshold REAL NOT NULL,
    generated         INTEGER NOT NULL,
    abandoned         INTEGER NOT NULL,
    failed            INTEGER NOT NULL,
    placed            INTEGER NOT NULL,
    skipped           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS images (
    run_id         INTEGER NOT NULL REFERENCES runs(id),
    image_id       INTEGER NOT NULL,
    file_name      TEXT NOT NULL,
    mask           TEXT NOT NULL,
    instance_count INTEGER NOT NULL,
    PRIMARY KEY (run_id, image_id)
);

CREATE TABLE IF NOT EXISTS events (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id   INTEGER NOT NULL REFERENCES runs(id),
    image_id INTEGER,
    kind     TEXT NOT NULL,
    detail   TEXT NOT NULL
);
`

// Catalog wraps the SQLite connection. Safe for use from one goroutine; the
// pipeline records into it only after parallel work has finished.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog file and ensures the schema exists.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordGeneration stores one composition run: its parameters, per-image
// rows, and a skip event per instance that could not be placed. Returns the
// catalog's run id.
func (c *Catalog) RecordGeneration(ctx context.Context, info *compose.DatasetInfo, defs *compose.MaskDefinitions, report compose.Report) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (seed, count, width, height, overlap_threshold, generated, abandoned, failed, placed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.Params.Seed, info.Params.Count, info.Params.Width, info.Params.Height,
		info.Params.OverlapThreshold, report.Generated, report.Abandoned, report.Failed, report.Placed, report.Skipped)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, img := range defs.Images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO images (run_id, image_id, file_name, mask, instance_count) VALUES (?, ?, ?, ?, ?)`,
			runID, img.ID, img.FileName, img.MaskFileName, len(img.Instances)); err != nil {
			return 0, fmt.Errorf("failed to record image %d: %w", img.ID, err)
		}
	}

	for _, skip := range report.Skips {
		detail := fmt.Sprintf("%s/%s (%s): %s", skip.SuperCategory, skip.Category, skip.Asset, skip.Reason)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (run_id, image_id, kind, detail) VALUES (?, ?, 'instance_skipped', ?)`,
			runID, skip.ImageID, detail); err != nil {
			return 0, fmt.Errorf("failed to record skip event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit catalog transaction: %w", err)
	}
	return runID, nil
}

// RecordConversion appends conversion outcome events to an existing run.
func (c *Catalog) RecordConversion(ctx context.Context, runID int64, report annotate.Report) error {
	detail := fmt.Sprintf("images=%d annotations=%d occluded_dropped=%d degenerate_dropped=%d",
		report.Images, report.Annotations, report.OccludedDropped, report.DegenerateDrops)
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO events (run_id, kind, detail) VALUES (?, 'converted', ?)`, runID, detail)
	if err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}
	return nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID        int64
	Seed      int64
	Count     int
	Generated int
	Abandoned int
	Failed    int
	Placed    int
	Skipped   int
}

// LastRun returns the most recently recorded run, or sql.ErrNoRows if the
// catalog is empty.
func (c *Catalog) LastRun(ctx context.Context) (*RunSummary, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, seed, count, generated, abandoned, failed, placed, skipped
		 FROM runs ORDER BY id DESC LIMIT 1`)

	var s RunSummary
	if err := row.Scan(&s.ID, &s.Seed, &s.Count, &s.Generated, &s.Abandoned, &s.Failed, &s.Placed, &s.Skipped); err != nil {
		return nil, err
	}
	return &s, nil
}

// Events returns the recorded event details for one run, oldest first.
func (c *Catalog) Events(ctx context.Context, runID int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT kind || ': ' || detail FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
