package configurator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/cjeanneret/FrameGo/internal/camera"
	"github.com/cjeanneret/FrameGo/internal/config"
	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/logic/geometry"
	"github.com/cjeanneret/FrameGo/internal/logic/orbit"
	"github.com/cjeanneret/FrameGo/internal/model"
	"github.com/cjeanneret/FrameGo/internal/scene"
	"github.com/cjeanneret/FrameGo/internal/texture"
)

// Errors returned by Session operations.
var (
	ErrUnknownStyle = errors.New("unknown frame style")
	ErrStaleLoad    = errors.New("style load superseded by a newer request")
	ErrNoModel      = errors.New("no frame model loaded")
)

// suggestThreshold is the minimum similarity for a "did you mean" hint.
const suggestThreshold = 0.6

// Loader loads a fresh model tree for an asset name.
type Loader interface {
	Load(ctx context.Context, name string) (*scene.Node, error)
}

// NotifyFunc receives user-facing notifications ("info" or "error").
type NotifyFunc func(level, msg string)

// Session is the configurator state shared by every client: the scene,
// the camera, the selected color and the uploaded image. All methods are
// safe for concurrent use.
type Session struct {
	cfg    *config.Config
	loader Loader

	mu      sync.Mutex
	scene   *scene.Scene
	cam     *camera.Camera
	orbit   *orbit.Controller
	style   string
	pending string
	request uint64 // latest issued style request
	cancel  context.CancelFunc
	color   *Color
	image   *texture.Image
	base    baseScales
	version uint64 // bumped on every visible change
	notify  NotifyFunc
}

// baseScales holds the Y scale of the sub-objects as loaded, before any
// image ratio was applied.
type baseScales struct {
	frame, image float32
}

// New creates a session with an empty scene and the configured camera.
func New(cfg *config.Config, loader Loader) *Session {
	sc := scene.New()
	if bg, err := ParseColor(cfg.Render.Background); err == nil {
		sc.Background = bg.NRGBA()
	}
	cam := camera.FromConfig(cfg.Camera)
	ctrl := orbit.NewController(cam)
	ctrl.Update()
	return &Session{
		cfg:    cfg,
		loader: loader,
		scene:  sc,
		cam:    cam,
		orbit:  ctrl,
		notify: func(string, string) {},
	}
}

// SetNotifier installs fn as the notification sink.
func (s *Session) SetNotifier(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func(string, string) {}
	}
	s.notify = fn
}

// resolveStyle maps a style name to its asset, suggesting the closest
// known name on a miss.
func (s *Session) resolveStyle(name string) (string, error) {
	if file, ok := s.cfg.StyleFile(name); ok {
		return file, nil
	}
	best, score := "", 0.0
	for _, known := range s.cfg.StyleNames() {
		sim := strutil.Similarity(name, known, metrics.NewJaroWinkler())
		if sim > score {
			best, score = known, sim
		}
	}
	if score >= suggestThreshold {
		return "", fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownStyle, name, best)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, name)
}

// begin issues a request id for name and cancels the load in flight.
func (s *Session) begin(ctx context.Context, name string) (uint64, string, context.Context, error) {
	file, err := s.resolveStyle(name)
	if err != nil {
		return 0, "", nil, err
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.request++
	id := s.request
	s.cancel = cancel
	s.pending = name
	s.mu.Unlock()
	debug.Request(name, id)
	return id, file, loadCtx, nil
}

// finish applies a completed load unless a newer request was issued.
func (s *Session) finish(id uint64, name string, root *scene.Node, loadErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.request {
		debug.Verbose("Discarding style %q (request %d, latest %d)", name, id, s.request)
		return ErrStaleLoad
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = ""
	if loadErr == nil {
		loadErr = model.Validate(root)
	}
	if loadErr != nil {
		err := fmt.Errorf("load style %q: %w", name, loadErr)
		s.notify("error", err.Error())
		return err
	}
	s.attach(root)
	s.style = name
	file, _ := s.cfg.StyleFile(name)
	debug.Loaded(name, file, id)
	s.notify("info", fmt.Sprintf("Loaded style %q", name))
	return nil
}

// SwitchStyle loads the style called name and attaches it, replacing the
// current model only once the new one is fully loaded. It returns the
// request id; ErrStaleLoad means a newer request superseded this one.
func (s *Session) SwitchStyle(ctx context.Context, name string) (uint64, error) {
	id, file, loadCtx, err := s.begin(ctx, name)
	if err != nil {
		return 0, err
	}
	root, err := s.loader.Load(loadCtx, file)
	return id, s.finish(id, name, root, err)
}

// RequestStyle starts SwitchStyle in the background and returns its request
// id at once. done, when non-nil, receives the outcome.
func (s *Session) RequestStyle(ctx context.Context, name string, done func(id uint64, err error)) (uint64, error) {
	id, file, loadCtx, err := s.begin(ctx, name)
	if err != nil {
		return 0, err
	}
	go func() {
		root, err := s.loader.Load(loadCtx, file)
		err = s.finish(id, name, root, err)
		if done != nil {
			done(id, err)
		}
	}()
	return id, nil
}

// attach swaps in root and replays the user's customizations on it.
// s.mu must be held.
func (s *Session) attach(root *scene.Node) {
	frame := root.FindByName(model.FrameNode)
	img := root.FindByName(model.ImageNode)
	s.base = baseScales{frame: frame.Scale.Y(), image: img.Scale.Y()}

	s.scene.Replace(root)
	if s.color != nil {
		s.applyColor()
	}
	if s.image != nil {
		s.applyImage()
	}
	s.reframe()
	s.version++
}

// reframe fits the camera and orbit limits to the attached model.
func (s *Session) reframe() {
	box := geometry.BoxOf(s.scene.Root())
	size, err := geometry.Frame(box, float32(s.cfg.Framing.FitRatio), s.cam)
	if err != nil {
		// The camera keeps its pose; the orbit still recenters.
		debug.Verbose("Framing skipped: %v", err)
		size = box.Size().Len()
	}
	s.orbit.MaxDistance = size * float32(s.cfg.Framing.MaxDistanceFactor)
	s.orbit.SetTarget(box.Center())
	s.orbit.Update()
	debug.Trace("%v", s.cam)
}

// SetColor sets the frame color; it is reapplied on every style switch.
// The color is remembered even before a model is loaded.
func (s *Session) SetColor(hex string) error {
	c, err := ParseColor(hex)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = &c
	if s.scene.Root() != nil {
		s.applyColor()
		s.version++
	}
	debug.Live("Frame color %s", c.Hex)
	return nil
}

func (s *Session) applyColor() {
	root := s.scene.Root()
	frame := root.FindByName(model.FrameNode)
	s.color.apply(ownMaterials(root, model.Surfaces(frame)))
}

// SetImage decodes a photo and shows it inside the frame. The frame and
// the picture are stretched vertically by the photo's height/width ratio.
func (s *Session) SetImage(name string, r io.Reader) (*texture.Image, error) {
	img, err := texture.Load(name, r, texture.Limits{
		MaxSize:   s.cfg.Image.MaxTextureSize,
		MaxPixels: s.cfg.Image.MaxPixels,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	if s.scene.Root() != nil {
		s.applyImage()
		s.version++
	}
	debug.Live("Image %q %dx%d (ratio %.3f)", name, img.Width, img.Height, img.Ratio())
	return img, nil
}

func (s *Session) applyImage() {
	root := s.scene.Root()
	frame := root.FindByName(model.FrameNode)
	img := root.FindByName(model.ImageNode)

	mat := scene.NewMaterial("UserImage")
	mat.Unlit = true
	mat.Metallic = 0
	mat.BaseColorTexture = s.image.Texture()
	for _, p := range model.Surfaces(img) {
		p.Material = mat
	}
	ratio := s.image.Ratio()
	frame.Scale[1] = s.base.frame * ratio
	img.Scale[1] = s.base.image * ratio
}

// Export writes the composed model. It fails with ErrNoModel before the
// first successful load.
func (s *Session) Export(w io.Writer, format model.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	root := s.scene.Root()
	if root == nil {
		return ErrNoModel
	}
	return model.Export(w, root, format)
}

// Orbit rotates the camera around its target and scales its distance.
// zoom <= 0 leaves the distance unchanged.
func (s *Session) Orbit(azimuthDeg, polarDeg, zoom float32) camera.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orbit.Rotate(azimuthDeg, polarDeg)
	if zoom > 0 && zoom != 1 {
		s.orbit.Zoom(zoom)
	}
	s.version++
	return s.cam.State()
}

// SetAspect updates the camera aspect ratio after a viewport resize.
func (s *Session) SetAspect(aspect float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if aspect <= 0 || aspect == s.cam.Aspect {
		return
	}
	s.cam.SetAspect(aspect)
	s.version++
}

// Camera returns a snapshot of the camera.
func (s *Session) Camera() camera.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam.State()
}

// Version changes whenever the rendered picture would.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// View calls fn with the scene and camera while holding the session lock.
// fn must not retain either.
func (s *Session) View(fn func(*scene.Scene, *camera.Camera)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.scene, s.cam)
}

// ImageState describes the uploaded photo.
type ImageState struct {
	Name   string  `json:"name"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Ratio  float32 `json:"ratio"`
}

// State is a JSON-friendly snapshot of the session.
type State struct {
	Style   string      `json:"style,omitempty"`
	Pending string      `json:"pending,omitempty"`
	Request uint64      `json:"request"`
	Color   string      `json:"color,omitempty"`
	Image   *ImageState `json:"image,omitempty"`
	Loaded  bool        `json:"loaded"`
	Version uint64      `json:"version"`
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Style:   s.style,
		Pending: s.pending,
		Request: s.request,
		Loaded:  s.scene.Root() != nil,
		Version: s.version,
	}
	if s.color != nil {
		st.Color = s.color.Hex
	}
	if s.image != nil {
		st.Image = &ImageState{
			Name: s.image.Name, Width: s.image.Width, Height: s.image.Height, Ratio: s.image.Ratio(),
		}
	}
	return st
}

// Style returns the currently attached style, or "".
func (s *Session) Style() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// Close cancels any load in flight. Loads completing afterwards are
// discarded as stale.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request++
	s.pending = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
