// Package synclock prevents two syncs from writing into the same folder at once.
package synclock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrBusy is returned when another sync holds the folder.
var ErrBusy = errors.New("a sync into this folder is already running")

var namespace = uuid.MustParse("6f1c2f0e-5f5b-4c8e-9a55-1f3e0d2b7a41")

// Lock is a held folder lock.
type Lock struct {
	Folder string
	Path   string
	fl     *flock.Flock
}

// Path returns the lock file used for folder inside dir. Folder names are
// hashed so any Unicode name maps to a safe file name.
func Path(dir, folder string) string {
	return filepath.Join(dir, uuid.NewSHA1(namespace, []byte(folder)).String()+".lock")
}

// Acquire takes the lock for folder without blocking.
func Acquire(dir, folder string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := Path(dir, folder)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBusy, folder)
	}

	return &Lock{Folder: folder, Path: path, fl: fl}, nil
}

// Release unlocks the folder. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
