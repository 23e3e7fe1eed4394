package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/beamline/internal/ident"
	"github.com/starford/beamline/internal/metadata"
	"github.com/starford/beamline/internal/models"
	"github.com/starford/beamline/internal/record"
	"github.com/starford/beamline/internal/retry"
	"github.com/starford/beamline/internal/storage"
	"github.com/starford/beamline/internal/testutil"
)

func fastGuard() *retry.Guard {
	return retry.NewGuard(retry.Policy{
		Interval:    5 * time.Millisecond,
		MaxInterval: 20 * time.Millisecond,
		MaxAttempts: 50,
		MaxElapsed:  5 * time.Second,
	}, testutil.Logger())
}

func newProcessor(t *testing.T, store storage.Provider, cfg Config) *Processor {
	t.Helper()
	p, err := NewProcessor(store, fastGuard(), cfg, testutil.Logger())
	require.NoError(t, err)
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestProcess_RecordCreatedEndToEnd(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, testutil.RecordName, testutil.Record)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	require.Equal(t, models.OutcomeChanged, run.Outcome, run.Error)
	assert.Equal(t, []string{models.StepStrip, models.StepTrimHeader, models.StepRename}, run.Steps)
	renamed := filepath.Join(dir, testutil.RecordRenamed)
	assert.Equal(t, renamed, run.RenamedTo)
	assert.NoFileExists(t, path)
	assert.Equal(t, testutil.RecordProcessed, readFile(t, renamed))
	assert.NotEmpty(t, run.ID)
	assert.NotEmpty(t, run.Checksum)
}

func TestProcess_RecordReplacePolicy(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, testutil.RecordName, testutil.Record)
	p := newProcessor(t, store, Config{RenamePolicy: record.PolicyReplace})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	require.Equal(t, models.OutcomeChanged, run.Outcome, run.Error)
	assert.NoFileExists(t, path)
	assert.Equal(t, testutil.RecordProcessed, readFile(t, filepath.Join(dir, testutil.RecordRenamed)))
}

func TestProcess_RecordShortNameStripsOnly(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "short.nc1", testutil.Record)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	require.Equal(t, models.OutcomeChanged, run.Outcome)
	assert.Equal(t, []string{models.StepStrip}, run.Steps)
	assert.Empty(t, run.RenamedTo)
	got := readFile(t, path)
	assert.NotContains(t, got, "SI\n")
	assert.Contains(t, got, "  0123456789W8722-B012-A007\n")
}

func TestProcess_RecordModifiedSkipsStrip(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, testutil.RecordName, testutil.Record)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Modified})

	require.Equal(t, models.OutcomeChanged, run.Outcome)
	assert.Equal(t, []string{models.StepTrimHeader, models.StepRename}, run.Steps)
	got := readFile(t, filepath.Join(dir, testutil.RecordRenamed))
	assert.Contains(t, got, "SI\n")
	assert.Contains(t, got, "\nW8722-B012-A007\n")
}

func TestProcess_SecondPassIsNoop(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "short.nc1", testutil.Record)
	p := newProcessor(t, store, Config{})

	first := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})
	require.Equal(t, models.OutcomeChanged, first.Outcome)
	after := readFile(t, path)

	second := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})
	assert.Equal(t, models.OutcomeUnchanged, second.Outcome)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, after, readFile(t, path))

	// A fresh processor has no memory of the write; the transforms
	// themselves are idempotent.
	third := newProcessor(t, store, Config{}).Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})
	assert.Equal(t, models.OutcomeUnchanged, third.Outcome)
	assert.Equal(t, after, readFile(t, path))
}

func TestProcess_MissingFileSkipped(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: filepath.Join(dir, "gone.nc1"), Kind: models.Created})
	assert.Equal(t, models.OutcomeSkipped, run.Outcome)
	assert.Empty(t, run.Error)
	assert.NoFileExists(t, filepath.Join(dir, "gone.nc1"))
}

func TestProcess_NotApplicable(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "a.idstv", testutil.Metadata)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Modified})
	assert.Equal(t, models.OutcomeSkipped, run.Outcome)
	assert.Equal(t, testutil.Metadata, readFile(t, path))
}

func TestProcess_MetadataBothStrategies(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "piece.idstv", testutil.Metadata)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	require.Equal(t, models.OutcomeChanged, run.Outcome, run.Error)
	assert.Equal(t, []string{models.StepPattern, models.StepStructural}, run.Steps)
	got := readFile(t, path)
	assert.Contains(t, got, "<Name>Beam12</Name>")
	assert.Contains(t, got, "<RemnantLocation>v</RemnantLocation>")
	assert.Contains(t, got, "<Filename>W8722-B12-A7</Filename>")
	assert.True(t, strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?>`))
}

func TestProcess_MetadataStructuralOnlyLegacy(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "piece.idstv", testutil.Metadata)
	p := newProcessor(t, store, Config{
		Strategy: metadata.StrategyStructural,
		Tree:     metadata.NewTreeRewriter(metadata.TreeConfig{Variant: ident.Legacy}),
	})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	require.Equal(t, models.OutcomeChanged, run.Outcome, run.Error)
	assert.Equal(t, []string{models.StepStructural}, run.Steps)
	got := readFile(t, path)
	assert.Contains(t, got, "<Name>ABC_W_Beam12</Name>")
	assert.Contains(t, got, "<Filename>W8722B012A7</Filename>")
}

func TestProcess_MetadataMalformedAfterPattern(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	broken := "<Export><Name>X_W_Beam</Name><PieceInfo></Export>"
	path := testutil.WriteFile(t, dir, "broken.idstv", broken)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	assert.Equal(t, models.OutcomeChanged, run.Outcome)
	assert.Equal(t, []string{models.StepPattern}, run.Steps)
	assert.NotEmpty(t, run.Error)
	assert.Equal(t, "<Export><Name>Beam</Name><PieceInfo></Export>", readFile(t, path))
}

func TestProcess_MetadataMalformedNothingWritten(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	broken := "<Export><PieceInfo></Export>"
	path := testutil.WriteFile(t, dir, "broken.idstv", broken)
	p := newProcessor(t, store, Config{})

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	assert.Equal(t, models.OutcomeSkipped, run.Outcome)
	assert.NotEmpty(t, run.Error)
	assert.Equal(t, broken, readFile(t, path))
}

func TestProcess_WaitsForProducerLock(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "short.nc1", testutil.Record)

	held := flock.New(path)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = held.Unlock()
	}()

	p := newProcessor(t, store, Config{})
	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})

	require.Equal(t, models.OutcomeChanged, run.Outcome, run.Error)
	assert.Positive(t, run.Retries)
	assert.NotContains(t, readFile(t, path), "SI\n")
}

func TestProcess_LockNeverReleased(t *testing.T) {
	dir, store := testutil.TestFolder(t)
	path := testutil.WriteFile(t, dir, "short.nc1", testutil.Record)

	held := flock.New(path)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	guard := retry.NewGuard(retry.Policy{Interval: time.Millisecond, MaxAttempts: 3, MaxElapsed: time.Second}, testutil.Logger())
	p, err := NewProcessor(store, guard, Config{}, testutil.Logger())
	require.NoError(t, err)

	run := p.Process(context.Background(), models.FileEvent{Path: path, Kind: models.Created})
	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Contains(t, run.Error, "retry budget")
	assert.Equal(t, testutil.Record, readFile(t, path))
}
