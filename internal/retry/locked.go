package retry

import (
	"errors"

	"github.com/starford/beamline/internal/apperr"
)

// IsLocked reports whether err means another process holds the file.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrLocked) {
		return true
	}
	return isPlatformLockError(err)
}
