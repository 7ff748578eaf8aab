package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another orchestrator holds the run lock.
var ErrLocked = errors.New("another marquee run is in progress")

type runLock struct {
	path string
	lock *flock.Flock
}

func newRunLock(path string) *runLock {
	return &runLock{path: path, lock: flock.New(path)}
}

func (l *runLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrLocked, l.path)
	}
	return nil
}

func (l *runLock) release() error {
	return l.lock.Unlock()
}
