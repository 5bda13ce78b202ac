package utils

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
)

// ErrRunInProgress is returned when another process already holds the run lock.
var ErrRunInProgress = errors.New("another run is already in progress")

// RunLock is an advisory file lock ensuring only one reconciliation run
// touches a data directory at a time.
type RunLock struct {
	fl *flock.Flock
}

// AcquireRunLock takes the lock file at path without blocking.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "lock: create dir")
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock: %s", path)
	}
	if !ok {
		return nil, errors.WithHintf(ErrRunInProgress,
			"remove %s only if you are sure no other run is active", path)
	}
	return &RunLock{fl: fl}, nil
}

// Release unlocks the lock file. Safe to call on a nil lock.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
