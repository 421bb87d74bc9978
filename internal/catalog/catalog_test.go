package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/synthgrove/synthgen/internal/annotate"
	"github.com/synthgrove/synthgen/internal/compose"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testRunData() (*compose.DatasetInfo, *compose.MaskDefinitions, compose.Report) {
	info := &compose.DatasetInfo{
		Params: compose.RunParams{
			Count: 3, Width: 256, Height: 256,
			OverlapThreshold: 0.3, Seed: 42,
			MinInstances: 1, MaxInstances: 3,
			OutputType: ".png",
		},
	}
	defs := &compose.MaskDefinitions{
		Images: []compose.ImageRecord{
			{ID: 0, FileName: "images/00000000.png", MaskFileName: "masks/00000000.png",
				Instances: []compose.InstanceRecord{{ColorKey: "#FF0000", Category: "eagle", SuperCategory: "bird"}}},
			{ID: 1, FileName: "images/00000001.png", MaskFileName: "masks/00000001.png"},
		},
	}
	report := compose.Report{
		Generated: 2, Abandoned: 0, Failed: 1, Placed: 1, Skipped: 1,
		Skips: []compose.SkipEvent{
			{ImageID: 1, Category: "horse", SuperCategory: "mammal", Asset: "h.png", Reason: "no placement found"},
		},
	}
	return info, defs, report
}

func TestRecordGenerationAndLastRun(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	info, defs, report := testRunData()

	runID, err := c.RecordGeneration(ctx, info, defs, report)
	if err != nil {
		t.Fatal(err)
	}
	if runID <= 0 {
		t.Fatalf("run id: got %d, want positive", runID)
	}

	last, err := c.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != runID {
		t.Errorf("last run id: got %d, want %d", last.ID, runID)
	}
	if last.Seed != 42 || last.Count != 3 || last.Generated != 2 || last.Failed != 1 || last.Placed != 1 || last.Skipped != 1 {
		t.Errorf("last run summary mismatch: %+v", last)
	}

	// A second run becomes the new last run.
	info2, defs2, report2 := testRunData()
	info2.Params.Seed = 43
	runID2, err := c.RecordGeneration(ctx, info2, defs2, report2)
	if err != nil {
		t.Fatal(err)
	}
	last, err = c.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != runID2 || last.Seed != 43 {
		t.Errorf("after second run: got id=%d seed=%d, want id=%d seed=43", last.ID, last.Seed, runID2)
	}
}

func TestLastRunEmpty(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.LastRun(context.Background())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("got %v, want sql.ErrNoRows", err)
	}
}

func TestEvents(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	info, defs, report := testRunData()

	runID, err := c.RecordGeneration(ctx, info, defs, report)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RecordConversion(ctx, runID, annotate.Report{
		Images: 2, Annotations: 1, OccludedDropped: 1,
	}); err != nil {
		t.Fatal(err)
	}

	events, err := c.Events(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2\n%v", len(events), events)
	}
	if !strings.HasPrefix(events[0], "instance_skipped: ") || !strings.Contains(events[0], "mammal/horse") {
		t.Errorf("skip event malformed: %q", events[0])
	}
	if !strings.HasPrefix(events[1], "converted: ") || !strings.Contains(events[1], "occluded_dropped=1") {
		t.Errorf("conversion event malformed: %q", events[1])
	}

	// Events for an unknown run are empty, not an error.
	none, err := c.Events(ctx, runID+99)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unknown run events: got %v, want none", none)
	}
}

func TestOpenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	info, defs, report := testRunData()
	runID, err := c.RecordGeneration(ctx, info, defs, report)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening must preserve existing rows.
	c2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	last, err := c2.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != runID {
		t.Errorf("reopened catalog last run: got %d, want %d", last.ID, runID)
	}
}
