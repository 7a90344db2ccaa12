package model

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/cjeanneret/FrameGo/internal/assets"
	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Loader reads frame models from an asset source and keeps decoded
// documents cached by asset name.
type Loader struct {
	src assets.Source

	mu    sync.Mutex
	cache map[string]*cached
}

type cached struct {
	doc  *Document
	deps []string // sibling assets read while decoding
}

func NewLoader(src assets.Source) *Loader {
	return &Loader{src: src, cache: make(map[string]*cached)}
}

// Load returns a fresh scene graph for the asset called name.
// The returned tree is owned by the caller.
func (l *Loader) Load(ctx context.Context, name string) (*scene.Node, error) {
	doc, err := l.document(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := Build(doc)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return root, nil
}

func (l *Loader) document(ctx context.Context, name string) (*Document, error) {
	clean, err := assets.CleanName(name)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	c, ok := l.cache[clean]
	l.mu.Unlock()
	if ok {
		debug.Trace("model cache hit %s", clean)
		return c.doc, nil
	}

	data, err := assets.ReadFile(l.src, clean)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sib := &siblingFS{ctx: ctx, src: l.src, dir: path.Dir(clean)}
	doc, err := Decode(data, sib)
	if err != nil {
		if sib.err != nil {
			err = sib.err
		}
		return nil, fmt.Errorf("decode %s: %w", clean, err)
	}
	deps := sib.deps

	l.mu.Lock()
	l.cache[clean] = &cached{doc: doc, deps: deps}
	l.mu.Unlock()
	return doc, nil
}

// Evict drops cached documents that were read from the asset called name,
// directly or as a sibling buffer or image. It reports whether anything was
// dropped.
func (l *Loader) Evict(name string) bool {
	clean, err := assets.CleanName(name)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := false
	for k, c := range l.cache {
		if k == clean || slices.Contains(c.deps, clean) {
			delete(l.cache, k)
			dropped = true
			debug.Verbose("Evicted cached model %s", k)
		}
	}
	return dropped
}

// siblingFS serves the files a .gltf references, relative to its own
// directory, and records which assets were read.
type siblingFS struct {
	ctx  context.Context
	src  assets.Source
	dir  string
	deps []string
	err  error // first read failure
}

func (f *siblingFS) ReadFile(name string) ([]byte, error) {
	data, err := f.read(name)
	if err != nil && f.err == nil {
		f.err = err
	}
	return data, err
}

func (f *siblingFS) read(name string) ([]byte, error) {
	if err := f.ctx.Err(); err != nil {
		return nil, err
	}
	dep, err := assets.CleanName(path.Join(f.dir, name))
	if err != nil {
		return nil, err
	}
	f.deps = append(f.deps, dep)
	return assets.ReadFile(f.src, dep)
}

func (f *siblingFS) Open(name string) (fs.File, error) {
	data, err := f.ReadFile(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memFile{Reader: bytes.NewReader(data), name: path.Base(name), size: int64(len(data))}, nil
}

type memFile struct {
	*bytes.Reader
	name string
	size int64
}

func (m *memFile) Stat() (fs.FileInfo, error) { return m, nil }
func (m *memFile) Close() error               { return nil }
func (m *memFile) Name() string               { return m.name }
func (m *memFile) Size() int64                { return m.size }
func (m *memFile) Mode() fs.FileMode          { return 0o444 }
func (m *memFile) ModTime() time.Time         { return time.Time{} }
func (m *memFile) IsDir() bool                { return false }
func (m *memFile) Sys() any                   { return nil }
