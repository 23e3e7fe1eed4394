package internal

import (
	"fmt"
	"log/slog"

	"github.com/starford/beamline/internal/metadata"
	"github.com/starford/beamline/internal/pipeline"
	"github.com/starford/beamline/internal/storage"
)

// RetargetResult summarizes a Retarget call.
type RetargetResult struct {
	Files    int
	Changed  int
	Elements int
}

// Retarget points the Directory element of every metadata file under dir at
// value. Files are rewritten atomically and only when their content changes.
// A file that cannot be decoded is logged and skipped.
func Retarget(dir, value string, logger *slog.Logger) (RetargetResult, error) {
	var res RetargetResult
	store, err := storage.NewFS(dir)
	if err != nil {
		return res, err
	}
	files, err := store.List(dir, pipeline.ExtMetadata)
	if err != nil {
		return res, fmt.Errorf("retarget: list %s: %w", dir, err)
	}

	for _, f := range files {
		res.Files++
		data, err := store.Read(f.Path)
		if err != nil {
			return res, err
		}
		decoded, err := metadata.Decode(data)
		if err != nil {
			logger.Warn("retarget: skipped", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		out, n := metadata.RetargetDirectory(string(decoded), value)
		res.Elements += n
		if out == string(decoded) {
			continue
		}
		if err := store.Write(f.Path, []byte(out)); err != nil {
			return res, err
		}
		res.Changed++
		logger.Debug("retarget: rewrote", slog.String("path", f.Path), slog.Int("elements", n))
	}
	return res, nil
}
