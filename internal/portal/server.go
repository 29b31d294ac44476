package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

const (
	defaultQueueSize  = 8
	readHeaderTimeout = 10 * time.Second
)

// ErrStopped is returned when starting a server that has been stopped.
var ErrStopped = errors.New("portal server stopped")

// Config holds the server configuration
type Config struct {
	Host string
	Port int

	// QueueSize bounds requests waiting for HandleClient (default 8).
	// Requests beyond it get 503 immediately.
	QueueSize int
}

// job is an accepted request waiting for the owner goroutine.
type job struct {
	req  *request
	done chan struct{}
}

// Server is a cooperative HTTP server.
//
// net/http accepts connections on its own goroutines, but handlers only run
// inside HandleClient, on the caller's goroutine, one request per call.
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	routes   map[string]Handler
	notFound Handler

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	queue    chan *job
	served   chan struct{}
	started  bool
	stopped  bool
	handled  int
}

// New creates a server. Routes must be registered before Start.
func New(config Config) *Server {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			// The portal is reached through the setup network only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		routes: make(map[string]Handler),
		queue:  make(chan *job, config.QueueSize),
	}
}

// On registers handler for an exact path.
func (s *Server) On(path string, handler Handler) {
	s.routes[path] = handler
}

// OnNotFound registers the handler for paths without a route.
func (s *Server) OnNotFound(handler Handler) {
	s.notFound = handler
}

// Start begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.http = &http.Server{
		Handler:           http.HandlerFunc(s.enqueue),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.served = make(chan struct{})
	s.started = true

	go func(srv *http.Server, served chan struct{}) {
		defer close(served)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Portal server failed", zap.Error(err))
		}
	}(s.http, s.served)

	logging.Info("Portal server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// enqueue runs on net/http's goroutine. It parks the request until the owner
// has handled it, then drops the connection if nothing was written.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	j := &job{
		req:  &request{w: w, r: r, upgrader: &s.upgrader},
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		drop(w)
		return
	}
	select {
	case s.queue <- j:
	default:
		s.mu.Unlock()
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	// HandleClient or Stop always closes done
	<-j.done

	if !j.req.answered {
		drop(w)
	}
}

// drop closes the underlying connection without writing a response.
func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// HandleClient runs the handler for at most one queued request without
// blocking. It reports whether a request was handled.
func (s *Server) HandleClient() bool {
	var j *job
	select {
	case j = <-s.queue:
	default:
		return false
	}
	defer close(j.done)

	q := j.req
	logging.LogHTTPRequest(q.RemoteAddr(), q.Method(), q.URI())

	s.mu.Lock()
	s.handled++
	s.mu.Unlock()

	if h, ok := s.routes[q.URI()]; ok {
		h(q)
		return true
	}
	if s.notFound != nil {
		s.notFound(q)
		return true
	}
	q.Send(http.StatusNotFound, "text/plain", "404 Not Found")
	return true
}

// Stop closes the listener and every open connection. Requests still
// queued are dropped. Stop may be called from inside a handler; flush the
// handler's response first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	srv, served, started := s.http, s.served, s.started
	s.mu.Unlock()

	// Nothing can be queued once stopped is set
drain:
	for {
		select {
		case j := <-s.queue:
			close(j.done)
		default:
			break drain
		}
	}

	if !started {
		return nil
	}

	// Close, not Shutdown: Shutdown would wait for the handler calling us
	err := srv.Close()

	select {
	case <-served:
	case <-ctx.Done():
		return fmt.Errorf("waiting for portal server to exit: %w", ctx.Err())
	}

	logging.Info("Portal server stopped")
	if err != nil {
		return fmt.Errorf("failed to close portal server: %w", err)
	}
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handled returns how many requests HandleClient has dispatched.
func (s *Server) Handled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}
