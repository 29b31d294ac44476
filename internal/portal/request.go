package portal

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

// Handler serves one portal request.
type Handler func(Request)

// Request is the ambient request object handed to a Handler.
//
// A handler that neither sends, streams nor upgrades leaves the request
// unanswered; the connection is then closed without a response.
type Request interface {
	// URI returns the request path without the query string
	URI() string
	Method() string
	RemoteAddr() string

	// HasArg reports whether the query string carries name, even empty
	HasArg(name string) bool
	// Arg returns the first value of name, or ""
	Arg(name string) string

	Send(code int, contentType, body string)
	StreamFile(content io.Reader, contentType string) error
	// Flush pushes any buffered response bytes to the client
	Flush()
	// Upgrade switches the connection to a websocket
	Upgrade() (*websocket.Conn, error)
}

type request struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader
	answered bool
}

func (q *request) URI() string        { return q.r.URL.Path }
func (q *request) Method() string     { return q.r.Method }
func (q *request) RemoteAddr() string { return q.r.RemoteAddr }

// form returns query and urlencoded body arguments.
func (q *request) form() map[string][]string {
	if q.r.Form == nil {
		if err := q.r.ParseForm(); err != nil {
			logging.Debug("Failed to parse request arguments", zap.String("path", q.URI()), zap.Error(err))
		}
	}
	return q.r.Form
}

func (q *request) HasArg(name string) bool {
	_, ok := q.form()[name]
	return ok
}

func (q *request) Arg(name string) string {
	if values := q.form()[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func (q *request) Send(code int, contentType, body string) {
	if q.answered {
		logging.Warn("Response already sent", zap.String("path", q.URI()))
		return
	}
	q.answered = true

	h := q.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-store")
	q.w.WriteHeader(code)
	if _, err := io.WriteString(q.w, body); err != nil {
		logging.Debug("Failed to write response", zap.String("path", q.URI()), zap.Error(err))
	}
}

func (q *request) StreamFile(content io.Reader, contentType string) error {
	if q.answered {
		return fmt.Errorf("response for %s already sent", q.URI())
	}
	q.answered = true

	q.w.Header().Set("Content-Type", contentType)
	q.w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(q.w, content); err != nil {
		return fmt.Errorf("failed to stream %s: %w", q.URI(), err)
	}
	return nil
}

func (q *request) Flush() {
	if f, ok := q.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (q *request) Upgrade() (*websocket.Conn, error) {
	if q.answered {
		return nil, fmt.Errorf("response for %s already sent", q.URI())
	}
	conn, err := q.upgrader.Upgrade(q.w, q.r, nil)
	// A failed upgrade has already written an HTTP error
	q.answered = true
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	return conn, nil
}
