// Package registry loads the list of folders to watch.
package registry

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/beamline/internal/apperr"
)

// Parse reads newline-delimited folder paths. Blank lines and lines starting
// with '#' are skipped; surrounding whitespace is trimmed.
func Parse(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Load merges the folders listed in file (if non-empty) with inline folders,
// keeps only existing directories, and de-duplicates them. An unreadable
// file and invalid entries are logged and skipped. Zero valid folders is an
// error wrapping apperr.ErrNoFolders.
func Load(file string, inline []string, logger *slog.Logger) ([]string, error) {
	candidates := append([]string(nil), inline...)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warn("registry: folders file unreadable, skipping", slog.String("path", file), slog.String("error", err.Error()))
		} else {
			candidates = append(candidates, Parse(data)...)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	var folders []string
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			logger.Warn("registry: bad folder path", slog.String("path", c), slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			logger.Warn("registry: folder not found, skipping", slog.String("path", abs), slog.String("error", err.Error()))
			continue
		}
		if !info.IsDir() {
			logger.Warn("registry: not a directory, skipping", slog.String("path", abs))
			continue
		}
		seen[abs] = struct{}{}
		folders = append(folders, abs)
	}

	if len(folders) == 0 {
		return nil, fmt.Errorf("registry: %w", apperr.ErrNoFolders)
	}
	logger.Info("registry: folders loaded", slog.Int("count", len(folders)))
	return folders, nil
}
