//go:build unix

package blobstore

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// tryLockFile takes a non-blocking exclusive flock on path. The lock is
// released when the returned function is called or the process exits.
func tryLockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, err
	}

	var (
		once   sync.Once
		result error
	)
	return func() error {
		once.Do(func() {
			result = errors.Join(unix.Flock(int(f.Fd()), unix.LOCK_UN), f.Close())
		})
		return result
	}, nil
}
