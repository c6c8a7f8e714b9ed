// Package server exposes the published session state over HTTP: a health
// endpoint, JPEG snapshots, an MJPEG stream and a websocket feed of overlay
// placements for remote surfaces.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/dudu/pumpkinface/internal/pipeline"
	"github.com/dudu/pumpkinface/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher is the read side of a session
type Publisher interface {
	ID() string
	Mode() pipeline.Mode
	Active() bool
	Stats() session.Stats
	Render() (*image.RGBA, uint64, bool)
	WaitRender(ctx context.Context, version uint64) (uint64, error)
	WaitOverlay(ctx context.Context, version uint64) (*session.Overlay, uint64, error)
}

// Options configures the HTTP server
type Options struct {
	Addr        string
	JPEGQuality int
	Logger      logrus.FieldLogger
	// WriteTimeout bounds a single websocket or stream write
	WriteTimeout time.Duration
}

// Server serves presentation state to browsers and remote surfaces
type Server struct {
	pub      Publisher
	router   *mux.Router
	addr     string
	quality  int
	timeout  time.Duration
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// New creates a server and registers its routes
func New(pub Publisher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	s := &Server{
		pub:     pub,
		router:  mux.NewRouter(),
		addr:    opts.Addr,
		quality: quality,
		timeout: timeout,
		log:     logger.WithField("component", "http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.RegisterRoute("/healthz", s.handleHealth, []string{"GET"})
	s.RegisterRoute("/snapshot.jpg", s.handleSnapshot, []string{"GET"})
	s.RegisterRoute("/stream.mjpeg", s.handleStream, []string{"GET"})
	s.RegisterRoute("/ws/placements", s.handlePlacements, []string{"GET"})
	return s
}

// RegisterRoute adds a handler for path and methods
func (s *Server) RegisterRoute(path string, handler func(w http.ResponseWriter, r *http.Request), methods []string) {
	s.router.HandleFunc(path, handler).Methods(methods...)
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("http preview listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// JSON writes data with the given status
func (s *Server) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.WithError(err).Debug("json write failed")
		}
	}
}

func (s *Server) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
