package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func run(id, path string, outcome models.Outcome, at time.Time) models.Run {
	return models.Run{
		ID:        id,
		Path:      path,
		Kind:      models.Created,
		Outcome:   outcome,
		StartedAt: at,
		Duration:  15 * time.Millisecond,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM runs`).Scan(&count); err != nil {
		t.Fatalf("runs table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM files`).Scan(&count); err != nil {
		t.Fatalf("files table missing: %v", err)
	}
}

func TestRecordAndGet(t *testing.T) {
	db := testDB(t)
	r := run("r1", "/w/a.nc1", models.OutcomeChanged, time.Now())
	r.Steps = []string{models.StepStrip, models.StepTrimHeader}
	r.Checksum = "abc"
	r.Retries = 2
	if err := db.Record(r); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := db.Get("r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Path != r.Path || got.Outcome != r.Outcome || got.Retries != 2 {
		t.Errorf("got %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[0] != models.StepStrip {
		t.Errorf("steps = %v", got.Steps)
	}
	if got.Duration != r.Duration {
		t.Errorf("duration = %v, want %v", got.Duration, r.Duration)
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	if _, err := db.Get("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecentOrderAndFilter(t *testing.T) {
	db := testDB(t)
	base := time.Now().Add(-time.Hour)
	_ = db.Record(run("1", "/w/a.nc1", models.OutcomeChanged, base))
	_ = db.Record(run("2", "/w/b.nc1", models.OutcomeUnchanged, base.Add(time.Minute)))
	_ = db.Record(run("3", "/w/a.nc1", models.OutcomeUnchanged, base.Add(2*time.Minute)))

	all, err := db.Recent(10, "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 || all[0].ID != "3" || all[2].ID != "1" {
		t.Fatalf("unexpected order: %+v", all)
	}

	onlyA, _ := db.Recent(10, "/w/a.nc1")
	if len(onlyA) != 2 {
		t.Errorf("filtered len = %d, want 2", len(onlyA))
	}

	limited, _ := db.Recent(1, "")
	if len(limited) != 1 {
		t.Errorf("limited len = %d, want 1", len(limited))
	}
}

func TestRecentMatchesRenameTarget(t *testing.T) {
	db := testDB(t)
	r := run("1", "/w/0123456789W8722-B012-A007-X.nc1", models.OutcomeChanged, time.Now())
	r.RenamedTo = "/w/W8722-B012-A007-X.nc1"
	_ = db.Record(r)

	got, _ := db.Recent(10, "/w/W8722-B012-A007-X.nc1")
	if len(got) != 1 {
		t.Errorf("expected run found by rename target, got %d", len(got))
	}
}

func TestChecksumFollowsRename(t *testing.T) {
	db := testDB(t)
	first := run("1", "/w/long.nc1", models.OutcomeChanged, time.Now())
	first.Checksum = "c1"
	_ = db.Record(first)

	renamed := run("2", "/w/long.nc1", models.OutcomeChanged, time.Now())
	renamed.RenamedTo = "/w/short.nc1"
	renamed.Checksum = "c2"
	_ = db.Record(renamed)

	if cs, _ := db.LastChecksum("/w/long.nc1"); cs != "" {
		t.Errorf("old path checksum = %q, want empty", cs)
	}
	if cs, _ := db.LastChecksum("/w/short.nc1"); cs != "c2" {
		t.Errorf("new path checksum = %q, want c2", cs)
	}
	all, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("AllChecksums = %v", all)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.Record(run("1", "/w/a", models.OutcomeChanged, now))
	_ = db.Record(run("2", "/w/b", models.OutcomeChanged, now))
	_ = db.Record(run("3", "/w/c", models.OutcomeFailed, now))
	_ = db.Record(run("4", "/w/d", models.OutcomeSkipped, now))

	s, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Total != 4 || s.Changed != 2 || s.Failed != 1 || s.Skipped != 1 || s.Unchanged != 0 {
		t.Errorf("stats = %+v", s)
	}
	if s.LastRunAt.IsZero() {
		t.Error("LastRunAt not set")
	}
}

func TestStatsEmpty(t *testing.T) {
	db := testDB(t)
	s, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Total != 0 || !s.LastRunAt.IsZero() {
		t.Errorf("stats = %+v", s)
	}
}
