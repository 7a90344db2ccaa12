package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"

	"github.com/cjeanneret/FrameGo/internal/debug"
)

// ErrInvalidName is returned for asset names that are absolute or escape
// the source root.
var ErrInvalidName = errors.New("invalid asset name")

// ErrNotFound is returned when an asset does not exist.
var ErrNotFound = fs.ErrNotExist

// Source defines the abstract interface for reading model assets.
// This allows plugging in a directory on disk
// or an in-memory set for tests.
type Source interface {
	// Open returns the content of the asset called name. Names are
	// slash-separated and relative to the source root.
	Open(name string) (io.ReadCloser, error)
}

// NewSource creates an asset source based on the chosen mode.
// If mem is non-nil, returns a MemSource over it (for tests/embedding).
// Otherwise returns a DirSource rooted at dir.
func NewSource(dir string, mem map[string][]byte) (Source, error) {
	if mem != nil {
		debug.Info("Using in-memory asset source (%d files)", len(mem))
		return NewMemSource(mem), nil
	}
	return NewDirSource(dir)
}

// CleanName validates name and returns it in canonical form.
func CleanName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") || path.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// DirSource reads assets from a directory.
type DirSource struct {
	dir string
}

// NewDirSource returns a DirSource rooted at dir; "~" is expanded.
func NewDirSource(dir string) (*DirSource, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expand asset dir: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("asset dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("asset dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset dir %s is not a directory", abs)
	}
	debug.Verbose("Asset directory: %s", abs)
	return &DirSource{dir: abs}, nil
}

// Dir returns the absolute root directory.
func (s *DirSource) Dir() string { return s.dir }

func (s *DirSource) Open(name string) (io.ReadCloser, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("open asset %s: %w", clean, err)
	}
	debug.Trace("asset open %s", clean)
	return f, nil
}

// MemSource is an in-memory Source. It is safe for concurrent use.
type MemSource struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemSource(files map[string][]byte) *MemSource {
	m := &MemSource{files: make(map[string][]byte, len(files))}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

// Put adds or replaces an asset.
func (m *MemSource) Put(name string, data []byte) {
	m.mu.Lock()
	m.files[name] = data
	m.mu.Unlock()
}

func (m *MemSource) Open(name string) (io.ReadCloser, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.files[clean]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open asset %s: %w", clean, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadFile reads a whole asset from src.
func ReadFile(src Source, name string) ([]byte, error) {
	rc, err := src.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", name, err)
	}
	debug.Asset("read", name, len(data))
	return data, nil
}
