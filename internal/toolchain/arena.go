package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultRoot is the arena root used when none is configured.
var DefaultRoot = filepath.Join(os.TempDir(), "codejudge")

// Arena owns the directory under which every build gets its own workspace.
type Arena struct {
	fs   afero.Fs
	root string
}

// NewArena creates the root directory if needed. Programs are executed from the
// workspace paths, so production arenas must be backed by the OS filesystem.
func NewArena(fs afero.Fs, root string) (*Arena, error) {
	if root == "" {
		root = DefaultRoot
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("arena: resolve root: %w", err)
	}

	if err = fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("arena: create root %s: %w", root, err)
	}

	return &Arena{fs: fs, root: root}, nil
}

func (a *Arena) Root() string { return a.root }

// Create allocates a fresh workspace named by a random id.
func (a *Arena) Create() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(a.root, id)

	if err := a.fs.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("arena: create workspace %s: %w", id, err)
	}

	return &Workspace{ID: id, Dir: dir, fs: a.fs}, nil
}

// Sweep removes workspaces older than age, left behind by a process that died mid-build.
// It returns the number of removed workspaces.
func (a *Arena) Sweep(age time.Duration) (int, error) {
	infos, err := afero.ReadDir(a.fs, a.root)
	if err != nil {
		return 0, fmt.Errorf("arena: list %s: %w", a.root, err)
	}

	cutoff := time.Now().Add(-age)
	n := 0
	for _, fi := range infos {
		if !fi.IsDir() || fi.ModTime().After(cutoff) {
			continue
		}
		if err := a.fs.RemoveAll(filepath.Join(a.root, fi.Name())); err != nil {
			return n, fmt.Errorf("arena: remove %s: %w", fi.Name(), err)
		}
		n++
	}

	return n, nil
}

// Workspace is the private directory of one build.
type Workspace struct {
	ID  string
	Dir string
	fs  afero.Fs
}

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

func (w *Workspace) WriteFile(name, content string) error {
	if err := afero.WriteFile(w.fs, w.Path(name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("workspace: write %s: %w", name, err)
	}
	return nil
}

// Release removes the workspace and everything compiled into it.
func (w *Workspace) Release() error {
	return w.fs.RemoveAll(w.Dir)
}
