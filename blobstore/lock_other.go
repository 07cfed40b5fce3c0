//go:build !unix

package blobstore

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// tryLockFile uses exclusive creation of path as the lock. A lock file left
// behind by a crashed process must be removed by hand.
func tryLockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
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
			result = errors.Join(f.Close(), os.Remove(path))
		})
		return result
	}, nil
}
