//go:build windows

package retry

import (
	"errors"

	"golang.org/x/sys/windows"
)

// The producer's CAM software opens its output without share flags, so
// opening it for write fails with a sharing or lock violation until it closes.
func isPlatformLockError(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) || errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
