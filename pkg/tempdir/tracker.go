// Package tempdir tracks directories created for a single browser launch
// and removes them once the browser process is gone.
package tempdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Tracker owns the directories it created. Paths supplied by the caller are
// never registered and therefore never removed.
type Tracker struct {
	root string

	mu      sync.Mutex
	paths   []string
	removed bool
}

// NewTracker creates a tracker that allocates directories under root.
// An empty root means os.TempDir().
func NewTracker(root string) *Tracker {
	if root == "" {
		root = os.TempDir()
	}
	return &Tracker{root: root}
}

// Name returns a unique directory name for prefix. It has no side effects.
func Name(prefix string) string {
	return prefix + uuid.NewString()
}

// Create makes a fresh uniquely named directory and takes ownership of it.
func (t *Tracker) Create(prefix string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed {
		return "", errors.New("tempdir: tracker already released")
	}
	dir := filepath.Join(t.root, Name(prefix))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	t.paths = append(t.paths, dir)
	return dir, nil
}

// Paths returns a copy of the owned directories in creation order.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.paths...)
}

// RemoveAll deletes every owned directory. Only the first call does any work;
// individual failures are collected but never stop the sweep.
func (t *Tracker) RemoveAll() error {
	t.mu.Lock()
	if t.removed {
		t.mu.Unlock()
		return nil
	}
	t.removed = true
	paths := t.paths
	t.paths = nil
	t.mu.Unlock()

	var errs []error
	for i := len(paths) - 1; i >= 0; i-- {
		if err := os.RemoveAll(paths[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
