package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/testutil"
)

func testConfig(t *testing.T, folder string) *Config {
	t.Helper()
	state := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Enabled = false
	cfg.Watch.FoldersFile = ""
	cfg.Watch.Folders = []string{folder}
	cfg.Watch.LockFile = filepath.Join(state, "beamline.lock")
	cfg.Watch.ShutdownTimeout = 2 * time.Second
	cfg.Watch.Settle = 50 * time.Millisecond
	cfg.Retry.InitialInterval = 5 * time.Millisecond
	cfg.Retry.MaxInterval = 20 * time.Millisecond
	cfg.SQLite.Path = filepath.Join(state, "beamline.db")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRootRouter(t *testing.T) {
	folder := t.TempDir()
	c, err := build(testConfig(t, folder), testutil.Logger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.close()
	h := newRootRouter(testConfig(t, folder), c)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/api/folders"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
		switch path {
		case "/metrics":
			if !strings.Contains(w.Body.String(), "beamline_queue_depth") {
				t.Error("metrics missing beamline collectors")
			}
		case "/api/folders":
			var body struct {
				Folders []string `json:"folders"`
			}
			_ = json.NewDecoder(w.Body).Decode(&body)
			if len(body.Folders) != 1 || body.Folders[0] != folder {
				t.Errorf("folders = %v", body.Folders)
			}
		}
	}
}

func TestBuild_NoFolders(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Watch.Folders = []string{filepath.Join(t.TempDir(), "missing")}
	if _, err := build(cfg, testutil.Logger()); !errors.Is(err, apperr.ErrNoFolders) {
		t.Fatalf("err = %v, want ErrNoFolders", err)
	}
}

func TestRun_SweepsExistingFiles(t *testing.T) {
	folder := t.TempDir()
	testutil.WriteFile(t, folder, testutil.RecordName, testutil.Record)
	cfg := testConfig(t, folder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	}()

	renamed := filepath.Join(folder, testutil.RecordRenamed)
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		data, err := os.ReadFile(renamed)
		return err == nil && string(data) == testutil.RecordProcessed
	}, "record left over from before start was not processed")

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRun_SingleInstance(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	holder := flock.New(cfg.Watch.LockFile)
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("lock: %v %v", ok, err)
	}
	defer holder.Unlock()

	err = Run(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if !errors.Is(err, apperr.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}
