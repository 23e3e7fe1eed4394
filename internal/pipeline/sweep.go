package pipeline

import (
	"context"
	"log/slog"

	"github.com/starford/beamline/internal/models"
)

// Lister lists files under a watched root.
type Lister interface {
	List(dir string, exts ...string) ([]models.FileMetadata, error)
}

// ChecksumSource returns the last checksum written for every known path.
type ChecksumSource interface {
	AllChecksums() (map[string]string, error)
}

// Sweep submits a Created event for every record and metadata file under
// roots whose content differs from what the pipeline last wrote there.
// Files the pipeline already produced are left alone, so a restart only
// finishes work that was interrupted or arrived while stopped.
func Sweep(ctx context.Context, roots []string, store Lister, seen ChecksumSource, sink Sink, logger *slog.Logger) (int, error) {
	checksums := map[string]string{}
	if seen != nil {
		var err error
		if checksums, err = seen.AllChecksums(); err != nil {
			return 0, err
		}
	}

	submitted := 0
	for _, root := range roots {
		metas, err := store.List(root, ExtRecord, ExtMetadata)
		if err != nil {
			logger.Warn("sweep: list failed", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		for _, m := range metas {
			if checksums[m.Path] == m.Checksum {
				continue
			}
			if err := sink.Submit(ctx, models.FileEvent{Path: m.Path, Kind: models.Created}); err != nil {
				return submitted, err
			}
			submitted++
			logger.Debug("sweep: submitted", slog.String("path", m.Path))
		}
	}
	logger.Info("sweep: done", slog.Int("submitted", submitted))
	return submitted, nil
}
