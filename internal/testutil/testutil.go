// Package testutil provides shared test helpers for watched folders and journals.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/beamline/internal/journal"
	"github.com/starford/beamline/internal/storage"
)

// RecordName is a 30-character record base name: a 10-character producer
// prefix followed by a 20-character meaningful name.
const RecordName = "0123456789ABCD-1234-5678-X.nc1"

// RecordRenamed is RecordName without its producer prefix.
const RecordRenamed = "ABCD-1234-5678-X.nc1"

// Record is a cutting record with one 3-line annotation block and two
// prefixed header lines.
const Record = "ST\n" +
	"  W8722\n" +
	"  1\n" +
	"  0123456789W8722-B012-A007\n" +
	"  0123456789W8722-B012-A007\n" +
	"  S235JR\n" +
	"SI\n" +
	"  v    10.00o    20.00  10r0 A1\n" +
	"  v    30.00o    20.00  10r0 A2\n" +
	"EN\n"

// RecordProcessed is Record after annotation strip and header trim.
const RecordProcessed = "ST\n" +
	"  W8722\n" +
	"  1\n" +
	"W8722-B012-A007\n" +
	"W8722-B012-A007\n" +
	"  S235JR\n" +
	"EN\n"

// Metadata is a tagged-metadata document that both strategies change.
const Metadata = `<?xml version="1.0" encoding="UTF-8"?>
<Export>
  <ProfileGroup>
    <ProfileType>L</ProfileType>
    <Name>ABC_W_Beam12</Name>
  </ProfileGroup>
  <PieceInfo>
    <Filename>W8722-B012-A007</Filename>
    <Length>120.5</Length>
  </PieceInfo>
  <RemnantLocation>rack 4</RemnantLocation>
</Export>
`

// TestJournal creates a temporary SQLite journal that is automatically closed.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFolder creates a temporary watched folder with a storage provider.
func TestFolder(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
