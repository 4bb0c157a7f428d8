// Package workspace manages the scratch directory used by pipeline jobs. The
// scratch root is a single critical region: only one job may hold it at a
// time, and it is wiped both before a job receives it and after the job
// releases it, so a failed job can never leak files into the next.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var log = logger.Get("Workspace")

type (
	RemoveAllFunc func(string) error
	MkdirAllFunc  func(string, os.FileMode) error

	Option func(*Manager)

	Manager struct {
		root      string
		sem       chan struct{}
		removeAll RemoveAllFunc
		mkdirAll  MkdirAllFunc
	}

	// Scratch is a job's claim on the workspace. The claim must be
	// released, which wipes the workspace and lets the next job in.
	Scratch struct {
		manager  *Manager
		dir      string
		released atomic.Bool
	}
)

// CleanupError is returned when the workspace cannot be wiped.
type CleanupError struct {
	Path string
	Err  error
}

func (err *CleanupError) Error() string {
	return fmt.Sprintf("failed to clean workspace %s: %v", err.Path, err.Err)
}

func (err *CleanupError) Unwrap() error { return err.Err }

var ErrInvalidName = errors.New("invalid scratch directory name")

// WithFilesystem overrides the filesystem operations used to wipe
// and recreate the workspace.
func WithFilesystem(removeAll RemoveAllFunc, mkdirAll MkdirAllFunc) Option {
	return func(m *Manager) {
		if removeAll != nil {
			m.removeAll = removeAll
		}
		if mkdirAll != nil {
			m.mkdirAll = mkdirAll
		}
	}
}

// New constructs a Manager rooted at the path provided ('~' is expanded).
// The directory is not touched until the first Reset or Acquire.
func New(root string, opts ...Option) (*Manager, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("failed to expand workspace root %s: %w", root, err)
	}
	if expanded == "" || filepath.Clean(expanded) == string(filepath.Separator) {
		return nil, fmt.Errorf("refusing to use %q as a workspace root", root)
	}

	m := &Manager{
		root:      filepath.Clean(expanded),
		sem:       make(chan struct{}, 1),
		removeAll: os.RemoveAll,
		mkdirAll:  os.MkdirAll,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *Manager) Root() string { return m.root }

// Reset deletes the workspace recursively and recreates it empty. A missing
// directory is simply created. Reset waits for any job currently holding
// the workspace to release it.
func (m *Manager) Reset() error {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	return m.reset()
}

// Acquire waits for exclusive use of the workspace, wipes it and creates a
// directory for the job inside it. If the wipe fails the claim is dropped
// and a *CleanupError is returned.
func (m *Manager) Acquire(ctx context.Context, name string) (*Scratch, error) {
	clean := filepath.Base(name)
	if clean != name || name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := m.reset(); err != nil {
		<-m.sem
		return nil, err
	}

	dir := filepath.Join(m.root, name)
	if err := m.mkdirAll(dir, 0o755); err != nil {
		<-m.sem
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
	}

	log.Emit(logger.VERBOSE, "Scratch directory %s acquired\n", dir)
	return &Scratch{manager: m, dir: dir}, nil
}

func (m *Manager) reset() error {
	if err := m.removeAll(m.root); err != nil {
		return &CleanupError{Path: m.root, Err: err}
	}
	if err := m.mkdirAll(m.root, 0o755); err != nil {
		return &CleanupError{Path: m.root, Err: err}
	}

	return nil
}

// Dir returns the job's directory inside the workspace.
func (scratch *Scratch) Dir() string { return scratch.dir }

// Release wipes the workspace and hands it to the next waiting job. The
// claim is released even if the wipe fails. Subsequent calls do nothing.
func (scratch *Scratch) Release() error {
	if !scratch.released.CompareAndSwap(false, true) {
		return nil
	}
	defer func() { <-scratch.manager.sem }()

	if err := scratch.manager.reset(); err != nil {
		return err
	}

	log.Emit(logger.VERBOSE, "Scratch directory %s released\n", scratch.dir)
	return nil
}
