package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/FrameGo/internal/camera"
	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Limits accepted for a client viewport.
const (
	MinViewportSize = 16
	MaxViewportSize = 4096
)

// ErrViewportSize is returned for a client size outside the accepted range.
var ErrViewportSize = errors.New("viewport size out of range")

// Viewport tracks the size the client displays the preview at and the size
// the preview is drawn at.
type Viewport struct {
	mu               sync.Mutex
	clientW, clientH int
	width, height    int
}

// NewViewport returns a viewport drawn at w×h until a client reports its size.
func NewViewport(w, h int) *Viewport {
	return &Viewport{clientW: w, clientH: h, width: w, height: h}
}

// SetClientSize records the size the client displays the preview at. It
// takes effect on the next loop tick.
func (v *Viewport) SetClientSize(w, h int) error {
	if w < MinViewportSize || h < MinViewportSize || w > MaxViewportSize || h > MaxViewportSize {
		return fmt.Errorf("%w: %dx%d (allowed %d..%d)", ErrViewportSize, w, h, MinViewportSize, MaxViewportSize)
	}
	v.mu.Lock()
	v.clientW, v.clientH = w, h
	v.mu.Unlock()
	return nil
}

// Resize sets the drawing size and reports whether it changed.
func (v *Viewport) Resize(w, h int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if w == v.width && h == v.height {
		return false
	}
	v.width, v.height = w, h
	return true
}

// Size returns the drawing size.
func (v *Viewport) Size() (w, h int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

func (v *Viewport) client() (w, h int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clientW, v.clientH
}

// Source is the state the loop draws.
type Source interface {
	Version() uint64
	SetAspect(aspect float32)
	View(fn func(*scene.Scene, *camera.Camera))
}

// Loop redraws the preview whenever the source changes.
type Loop struct {
	src      Source
	viewport *Viewport
	preview  *Preview
	interval time.Duration

	drawn   bool
	version uint64
}

// NewLoop creates a loop ticking every interval.
func NewLoop(src Source, viewport *Viewport, interval time.Duration) *Loop {
	return &Loop{
		src:      src,
		viewport: viewport,
		preview:  &Preview{},
		interval: interval,
	}
}

// Preview returns the frame store the loop fills.
func (l *Loop) Preview() *Preview { return l.preview }

// Tick runs one iteration: the resize check, then a redraw when the source
// changed since the last frame. It reports whether a frame was drawn.
func (l *Loop) Tick() (bool, error) {
	if w, h := l.viewport.client(); l.viewport.Resize(w, h) {
		l.src.SetAspect(float32(w) / float32(h))
		debug.Verbose("Viewport resized to %dx%d", w, h)
	}
	v := l.src.Version()
	if l.drawn && v == l.version {
		return false, nil
	}

	w, h := l.viewport.Size()
	var data []byte
	var err error
	l.src.View(func(sc *scene.Scene, cam *camera.Camera) {
		// A change landing between Version and View is drawn again next tick.
		data, err = EncodePNG(Draw(sc, cam, w, h))
	})
	if err != nil {
		return false, fmt.Errorf("encode preview: %w", err)
	}
	l.preview.store(data, v)
	l.drawn, l.version = true, v
	debug.Trace("Preview v%d %dx%d (%d bytes)", v, w, h, len(data))
	return true, nil
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if _, err := l.Tick(); err != nil {
			debug.Error(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
