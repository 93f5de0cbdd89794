package main

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

var errLocked = errors.New("another ddnscf process holds the lock")

// acquireLock takes the lock file without blocking.
// An empty path disables locking and returns a no-op release.
func acquireLock(path string) (release func(), err error) {
	if path == "" {
		return func() {}, nil
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errLocked, path)
	}
	return func() { fl.Unlock() }, nil
}
