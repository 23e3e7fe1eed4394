package registry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/beamline/internal/apperr"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParse(t *testing.T) {
	data := []byte("# shop floor\n/srv/cnc/line1\n\n   \n  /srv/cnc/line2  \r\n#/srv/old\n")
	assert.Equal(t, []string{"/srv/cnc/line1", "/srv/cnc/line2"}, Parse(data))
	assert.Empty(t, Parse(nil))
}

func TestLoadMergesAndDeduplicates(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	file := filepath.Join(t.TempDir(), "folders.txt")
	require.NoError(t, os.WriteFile(file, []byte(a+"\n"+b+"\n"), 0o644))

	got, err := Load(file, []string{a}, discard())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestLoadSkipsInvalid(t *testing.T) {
	good := t.TempDir()
	notDir := filepath.Join(good, "file.txt")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o644))
	missing := filepath.Join(good, "missing")

	got, err := Load("", []string{missing, notDir, good}, discard())
	require.NoError(t, err)
	assert.Equal(t, []string{good}, got)
}

func TestLoadNoFolders(t *testing.T) {
	_, err := Load("", []string{filepath.Join(t.TempDir(), "gone")}, discard())
	assert.ErrorIs(t, err, apperr.ErrNoFolders)

	_, err = Load("", nil, discard())
	assert.ErrorIs(t, err, apperr.ErrNoFolders)
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	got, err := Load(filepath.Join(t.TempDir(), "nope.txt"), []string{dir}, discard())
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, got)
}

func TestLoadMissingFileNoInline(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), nil, discard())
	assert.ErrorIs(t, err, apperr.ErrNoFolders)
}
