package journal

import "github.com/starford/beamline/internal/models"

// Journal defines the interface for recording and querying processing runs.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Journal interface {
	Record(r models.Run) error
	Recent(limit int, path string) ([]models.Run, error)
	Get(id string) (*models.Run, error)
	LastChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Stats() (models.Stats, error)
	Close() error
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)
