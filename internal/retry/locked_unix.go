//go:build unix

package retry

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Unix has no mandatory locks; EAGAIN/EWOULDBLOCK surface from non-blocking
// lock attempts and ETXTBSY from writing a file another process executes.
func isPlatformLockError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.ETXTBSY)
}
