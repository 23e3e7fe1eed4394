//go:build !unix && !windows

package retry

func isPlatformLockError(error) bool { return false }
