package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/FrameGo/internal/camera"
	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/logic/configurator"
	"github.com/cjeanneret/FrameGo/internal/model"
	"github.com/cjeanneret/FrameGo/internal/render"
	"github.com/cjeanneret/FrameGo/internal/texture"
)

const (
	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
	// minUploadInterval is the minimum delay between two image uploads.
	minUploadInterval = time.Second
	// heartbeatInterval keeps idle streams open through proxies.
	heartbeatInterval = 30 * time.Second
)

// Configurator is the session the handlers drive.
type Configurator interface {
	RequestStyle(ctx context.Context, name string, done func(id uint64, err error)) (uint64, error)
	SetColor(hex string) error
	SetImage(name string, r io.Reader) (*texture.Image, error)
	Export(w io.Writer, format model.Format) error
	Orbit(azimuthDeg, polarDeg, zoom float32) camera.State
	Camera() camera.State
	State() configurator.State
}

// Previewer serves the latest rendered frame.
type Previewer interface {
	PNG() (data []byte, version uint64)
}

// ClientViewport receives the size the browser shows the preview at.
type ClientViewport interface {
	SetClientSize(w, h int) error
}

// UIConfig holds the page defaults (from config).
type UIConfig struct {
	Styles       []string `json:"styles"`
	DefaultStyle string   `json:"default_style"`
	DefaultColor string   `json:"default_color"`
	ExportFormat string   `json:"export_format"`
	MaxUploadMB  int      `json:"max_upload_mb"`
}

// configResponse is the GET /config payload.
type configResponse struct {
	UIConfig
	State configurator.State `json:"state"`
}

// StyleRequest is the POST /style body.
type StyleRequest struct {
	Style string `json:"style"`
}

// ColorRequest is the POST /color body.
type ColorRequest struct {
	Color string `json:"color"`
}

// ViewportRequest is the POST /viewport body.
type ViewportRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OrbitRequest is the POST /camera/orbit body. Zoom 0 keeps the distance.
type OrbitRequest struct {
	AzimuthDeg float64 `json:"azimuth_deg"`
	PolarDeg   float64 `json:"polar_deg"`
	Zoom       float64 `json:"zoom"`
}

// Errors reported for rejected requests.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUploadBusy     = errors.New("an image upload is already in progress")
	ErrUploadTooSoon  = errors.New("too many uploads, wait a moment")
)

// ValidateOrbit checks an orbit request. Angles are deltas of at most one
// turn; zoom is a distance factor in [0.01, 100] or 0.
func ValidateOrbit(o OrbitRequest) error {
	for _, f := range []struct {
		name string
		v    float64
		max  float64
	}{
		{"azimuth_deg", o.AzimuthDeg, 360},
		{"polar_deg", o.PolarDeg, 180},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidRequest, f.name)
		}
		if math.Abs(f.v) > f.max {
			return fmt.Errorf("%w: %s must be between -%g and %g", ErrInvalidRequest, f.name, f.max, f.max)
		}
	}
	if math.IsNaN(o.Zoom) || math.IsInf(o.Zoom, 0) {
		return fmt.Errorf("%w: zoom must be a finite number", ErrInvalidRequest)
	}
	if o.Zoom != 0 && (o.Zoom < 0.01 || o.Zoom > 100) {
		return fmt.Errorf("%w: zoom must be 0 or between 0.01 and 100", ErrInvalidRequest)
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster    *StatusBroadcaster
	Session        Configurator
	Preview        Previewer
	Viewport       ClientViewport
	UI             UIConfig
	MaxUploadBytes int64

	uploadMu   sync.Mutex
	uploading  bool
	lastUpload time.Time

	staticFS fs.FS
	upgrader websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
// If session is nil, every configurator route returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, session Configurator, ui UIConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:    broadcaster,
		Session:        session,
		UI:             ui,
		MaxUploadBytes: int64(max(ui.MaxUploadMB, 1)) << 20,
		staticFS:       staticFS,
	}
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, configurator.ErrInvalidColor),
		errors.Is(err, model.ErrUnknownFormat),
		errors.Is(err, render.ErrViewportSize),
		errors.Is(err, texture.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, configurator.ErrUnknownStyle):
		return http.StatusNotFound
	case errors.Is(err, configurator.ErrNoModel), errors.Is(err, ErrUploadBusy):
		return http.StatusConflict
	case errors.Is(err, texture.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUploadTooSoon):
		return http.StatusTooManyRequests
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) || errors.Is(err, texture.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status and, when notify is set, pushes it
// to the connected clients.
func (h *Handlers) fail(w http.ResponseWriter, what string, err error, notify bool) {
	msg := what + ": " + err.Error()
	if notify {
		h.Broadcaster.Broadcast("error", msg)
	}
	debug.Live("%s", msg)
	http.Error(w, msg, statusFor(err))
}

func (h *Handlers) available(w http.ResponseWriter) bool {
	if h.Session == nil {
		http.Error(w, "configurator not ready", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON", ErrInvalidRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// broadcastState pushes the session snapshot to the clients.
func (h *Handlers) broadcastState() {
	h.Broadcaster.BroadcastState("state", h.Session.State())
}

// HandleConfig returns the page defaults and the current session state.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	resp := configResponse{UIConfig: h.UI}
	if h.Session != nil {
		resp.State = h.Session.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStyle handles POST /style: the load runs in the background and the
// response carries its request id.
func (h *Handlers) HandleStyle(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req StyleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "style", err, false)
		return
	}
	// The load outlives the request.
	id, err := h.Session.RequestStyle(context.WithoutCancel(r.Context()), req.Style, func(_ uint64, err error) {
		if err == nil {
			h.broadcastState()
		}
	})
	if err != nil {
		h.fail(w, "style", err, true)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "loading", "request": id})
}

// HandleColor handles POST /color.
func (h *Handlers) HandleColor(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req ColorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "color", err, false)
		return
	}
	if err := h.Session.SetColor(req.Color); err != nil {
		h.fail(w, "color", err, false)
		return
	}
	h.broadcastState()
	writeJSON(w, http.StatusOK, h.Session.State())
}

// HandleImage handles POST /image, a multipart upload in field "file".
// Only one upload is decoded at a time, at most one per minUploadInterval.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.uploadMu.Lock()
	switch {
	case h.uploading:
		h.uploadMu.Unlock()
		h.fail(w, "image", ErrUploadBusy, false)
		return
	case time.Since(h.lastUpload) < minUploadInterval:
		h.uploadMu.Unlock()
		h.fail(w, "image", ErrUploadTooSoon, false)
		return
	}
	h.uploading = true
	h.uploadMu.Unlock()
	defer func() {
		h.uploadMu.Lock()
		h.uploading = false
		h.lastUpload = time.Now()
		h.uploadMu.Unlock()
	}()

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if !errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: missing multipart field \"file\"", ErrInvalidRequest)
		}
		h.fail(w, "image", err, true)
		return
	}
	defer file.Close()

	img, err := h.Session.SetImage(header.Filename, file)
	if err != nil {
		h.fail(w, "image", err, true)
		return
	}
	h.Broadcaster.Broadcast("info", fmt.Sprintf("Image %q applied (%dx%d)", img.Name, img.Width, img.Height))
	h.broadcastState()
	writeJSON(w, http.StatusOK, h.Session.State())
}

// HandleExport handles GET /export?format=gltf|glb and sends the composed
// model as an attachment.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	name := r.URL.Query().Get("format")
	if name == "" {
		name = h.UI.ExportFormat
	}
	format, err := model.ParseFormat(name)
	if err != nil {
		h.fail(w, "export", err, false)
		return
	}
	var buf bytes.Buffer
	if err := h.Session.Export(&buf, format); err != nil {
		h.fail(w, "export", err, true)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// HandlePreview handles GET /preview.png.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if h.Preview == nil {
		http.Error(w, "preview not available", http.StatusServiceUnavailable)
		return
	}
	data, version := h.Preview.PNG()
	if data == nil {
		http.Error(w, "preview not rendered yet", http.StatusServiceUnavailable)
		return
	}
	etag := fmt.Sprintf(`"v%d"`, version)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// HandleViewport handles POST /viewport.
func (h *Handlers) HandleViewport(w http.ResponseWriter, r *http.Request) {
	if h.Viewport == nil {
		http.Error(w, "preview not available", http.StatusServiceUnavailable)
		return
	}
	var req ViewportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "viewport", err, false)
		return
	}
	if err := h.Viewport.SetClientSize(req.Width, req.Height); err != nil {
		h.fail(w, "viewport", err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOrbit handles POST /camera/orbit.
func (h *Handlers) HandleOrbit(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req OrbitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "orbit", err, false)
		return
	}
	if err := ValidateOrbit(req); err != nil {
		h.fail(w, "orbit", err, false)
		return
	}
	st := h.Session.Orbit(float32(req.AzimuthDeg), float32(req.PolarDeg), float32(req.Zoom))
	h.broadcastState()
	writeJSON(w, http.StatusOK, st)
}

// HandleCamera handles GET /camera.
func (h *Handlers) HandleCamera(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.Session.Camera())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusWS handles GET /status/ws: the same events as the SSE stream,
// one websocket text message each.
func (h *Handlers) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Live("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// The client never sends anything meaningful; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
