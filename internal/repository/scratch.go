package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// workspacePrefix marks directories owned by the scratch root.
const workspacePrefix = "job-"

// FilesystemScratch allocates one directory per job under a root directory.
type FilesystemScratch struct {
	root   string
	active sync.Map // dir -> struct{}
}

// NewFilesystemScratch creates the root directory if needed.
func NewFilesystemScratch(root string) (*FilesystemScratch, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &FilesystemScratch{root: root}, nil
}

// Root returns the scratch root directory.
func (s *FilesystemScratch) Root() string {
	return s.root
}

// Allocate creates the directory job-<token> under the root.
func (s *FilesystemScratch) Allocate(token string) (*Workspace, error) {
	if token == "" || strings.ContainsAny(token, `/\`) || token == "." || token == ".." {
		return nil, fmt.Errorf("invalid workspace token %q", token)
	}

	dir := filepath.Join(s.root, workspacePrefix+token)
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	s.active.Store(dir, struct{}{})

	return &Workspace{
		dir:     dir,
		release: func() { s.active.Delete(dir) },
	}, nil
}

// FreeBytes returns the space available to unprivileged writers under the root.
func (s *FilesystemScratch) FreeBytes() (int64, error) {
	return freeDiskSpace(s.root)
}

// Writable checks that a file can be created under the root.
func (s *FilesystemScratch) Writable() error {
	f, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Sweep removes workspace directories last modified before now-maxAge that
// no live Workspace owns. It returns the directories removed.
func (s *FilesystemScratch) Sweep(maxAge time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read scratch root: %w", err)
	}

	cutoff := now.Add(-maxAge)
	var removed []string
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		if _, live := s.active.Load(dir); live {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, dir)
	}
	return removed, errors.Join(errs...)
}

// Workspace is one job's scratch directory and the paths registered in it.
// Release removes them exactly once no matter how often or from how many
// goroutines it is called.
type Workspace struct {
	dir     string
	release func()

	mu    sync.Mutex
	paths []string

	once sync.Once
	err  error
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns dir/name and registers it for removal.
func (w *Workspace) Path(name string) string {
	p := filepath.Join(w.dir, name)
	w.Register(p)
	return p
}

// Register adds a path produced inside the workspace for removal.
func (w *Workspace) Register(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)
}

// Paths returns the registered paths.
func (w *Workspace) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

// Release deletes every registered path, then the directory with anything
// the tools left behind. Missing files are not an error.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		var errs []error
		for _, p := range w.Paths() {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := os.RemoveAll(w.dir); err != nil {
			errs = append(errs, err)
		}
		if w.release != nil {
			w.release()
		}
		w.err = errors.Join(errs...)
	})
	return w.err
}

var _ Scratch = (*FilesystemScratch)(nil)
