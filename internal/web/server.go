package web

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/FrameGo/internal/debug"
)

// Deps are the collaborators the web server exposes.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Session     Configurator
	Preview     Previewer
	Viewport    ClientViewport
	UI          UIConfig
}

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, deps Deps) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}

	handlers := NewHandlers(deps.Broadcaster, deps.Session, deps.UI, subFS)
	handlers.Preview = deps.Preview
	handlers.Viewport = deps.Viewport

	return &Server{
		addr:     addr,
		handlers: handlers,
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("POST /style", s.handlers.HandleStyle)
	mux.HandleFunc("POST /color", s.handlers.HandleColor)
	mux.HandleFunc("POST /image", s.handlers.HandleImage)
	mux.HandleFunc("GET /export", s.handlers.HandleExport)
	mux.HandleFunc("GET /preview.png", s.handlers.HandlePreview)
	mux.HandleFunc("POST /viewport", s.handlers.HandleViewport)
	mux.HandleFunc("POST /camera/orbit", s.handlers.HandleOrbit)
	mux.HandleFunc("GET /camera", s.handlers.HandleCamera)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /status/ws", s.handlers.HandleStatusWS)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
