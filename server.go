package imremote

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves one upgraded WebSocket connection. Handle blocks for the
// lifetime of the connection.
type Handler interface {
	Handle(ctx context.Context, ws *websocket.Conn)
}

// Server accepts WebSocket clients on "/" and, when a gatherer is set,
// exposes Prometheus metrics on "/metrics".
type Server struct {
	listener        net.Listener
	logger          Logger
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader
	gatherer        prometheus.Gatherer

	mu          sync.Mutex
	shutdown    bool
	httpServer  *http.Server
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server waits up to this duration
// before closing the listener. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// CheckOriginOption sets the origin check of the WebSocket upgrade.
// By default every origin is accepted, since the client page is usually
// opened from a file or another host.
func CheckOriginOption(check func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

// MetricsGathererOption exposes the gatherer on /metrics.
func MetricsGathererOption(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a server bound to addr (host:port).
// Returns an error if the address cannot be bound.
func New(addr string, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener: listener,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections and dispatches upgraded WebSockets to handler.
// It blocks until the context is canceled or the server is closed.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	router := chi.NewRouter()
	router.Get("/", s.upgrade(handler))
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = srv.Close()
	}()

	err := srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("server stopped", "addr", s.listener.Addr())
		return ctx.Err()
	}
	s.logger.Error("serve error", "error", err)
	return err
}

// upgrade turns an HTTP request into a WebSocket and hands it to handler.
func (s *Server) upgrade(handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("websocket upgrade failed", "error", err)
			return
		}

		s.logger.Debug("accepted connection", "remote_addr", ws.RemoteAddr())
		handler.Handle(r.Context(), ws)
	}
}

// Close stops the server. If a shutdown timeout is configured, Close
// bypasses the remaining timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	srv := s.httpServer
	s.mu.Unlock()

	// Signal to bypass any pending shutdown timeout
	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	if srv != nil {
		return srv.Close()
	}
	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
