// Package storage performs file operations inside the watched folders.
package storage

import "github.com/starford/beamline/internal/models"

// Provider is the interface for file operations under the watched roots.
// Paths are absolute and must resolve inside one of the roots.
type Provider interface {
	// List returns metadata for every file under dir whose extension is in exts.
	List(dir string, exts ...string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content at path, keeping its permissions.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
