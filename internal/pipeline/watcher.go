package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/beamline/internal/models"
)

// Sink receives events from the watcher.
type Sink interface {
	Submit(ctx context.Context, ev models.FileEvent) error
}

// Watch starts an fsnotify watcher on every root and forwards Create and
// Write events to sink until ctx is cancelled. Remove, Rename and Chmod are
// ignored; the new name of a rename arrives as Create.
//
// Directories created at runtime are added to the watch list, and files
// already inside them are submitted as Created.
func Watch(ctx context.Context, roots []string, sink Sink, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range roots {
		if err := addDirsRecursive(w, root); err != nil {
			return err
		}
		logger.Info("watcher: started", slog.String("root", root))
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					submitNewDir(ctx, sink, ev.Name, logger)
					continue
				}
			}

			var kind models.EventKind
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = models.Created
			case ev.Op&fsnotify.Write != 0:
				kind = models.Modified
			default:
				continue
			}
			if err := sink.Submit(ctx, models.FileEvent{Path: ev.Name, Kind: kind}); err != nil {
				if ctx.Err() != nil {
					logger.Info("watcher: stopped")
					return nil
				}
				logger.Warn("watcher: submit failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// submitNewDir submits every file already present in a newly created
// directory as Created.
func submitNewDir(ctx context.Context, sink Sink, dir string, logger *slog.Logger) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if subErr := sink.Submit(ctx, models.FileEvent{Path: path, Kind: models.Created}); subErr != nil {
			return subErr
		}
		logger.Debug("watcher: submitted from new dir", slog.String("path", path))
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
