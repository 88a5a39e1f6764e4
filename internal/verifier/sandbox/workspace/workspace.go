// Package workspace allocates, fills and removes per-request working directories.
package workspace

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"codeverifier/pkg/errors"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/mr"
)

const (
	dirPrefix = "verify-"
	dirMode   = 0o777
	fileMode  = 0o644
)

// Manager creates workspaces under a single root.
type Manager struct {
	root    string
	newName func() string
}

// NewManager returns a manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{
		root:    root,
		newName: func() string { return dirPrefix + uuid.NewString() },
	}
}

// Workspace is an exclusively-owned directory plus the artifact paths it is known to contain.
type Workspace struct {
	Dir string

	mu    sync.Mutex
	files []string
}

// Create makes a uniquely named directory that a privilege-dropped child can read and write.
func (m *Manager) Create(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.root == "" {
		return nil, errors.Newf(errors.SetupFailed, "workspace root is not configured")
	}
	info, err := os.Stat(m.root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.SetupFailed, "workspace root %s", m.root)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.SetupFailed, "workspace root %s is not a directory", m.root)
	}

	dir := filepath.Join(m.root, m.newName())
	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, errors.Wrapf(err, errors.SetupFailed, "create workspace")
	}
	// Mkdir is subject to the umask.
	if err := os.Chmod(dir, dirMode); err != nil {
		_ = os.Remove(dir)
		return nil, errors.Wrapf(err, errors.SetupFailed, "chmod workspace")
	}
	return &Workspace{Dir: dir}, nil
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Track records name as an artifact without writing it, for files produced by others.
func (w *Workspace) Track(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	path := w.Path(name)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, known := range w.files {
		if known == path {
			return path, nil
		}
	}
	w.files = append(w.files, path)
	return path, nil
}

// Materialize writes each file. A file is tracked before it is written so a
// partial failure leaves nothing cleanup does not know about.
func (w *Workspace) Materialize(files map[string]string) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path, err := w.Track(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(files[name]), fileMode); err != nil {
			return errors.Wrapf(err, errors.SetupFailed, "write %s", name)
		}
	}
	return nil
}

// Files lists the tracked artifact paths in tracking order.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.files))
	copy(out, w.files)
	return out
}

// Cleanup removes every tracked artifact and then the directory. Missing
// files and a missing directory are not errors, so it is safe to call again.
func (w *Workspace) Cleanup(ctx context.Context) error {
	files := w.Files()
	var fileErr error
	if len(files) > 0 {
		fns := make([]func() error, 0, len(files))
		for _, path := range files {
			path := path
			fns = append(fns, func() error {
				return removeIfExists(path)
			})
		}
		fileErr = mr.Finish(fns...)
	}

	if err := removeIfExists(w.Dir); err != nil {
		return errors.Wrapf(stderrors.Join(err, fileErr), errors.CleanupFailed, "remove workspace %s", w.Dir).
			WithDetail("dir", w.Dir)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.Newf(errors.SetupFailed, "invalid artifact name %q", name)
	}
	return nil
}
