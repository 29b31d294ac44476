package redirector

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

const (
	// WildcardPattern matches every name.
	WildcardPattern = "*"

	// DefaultTTL is the TTL of redirect answers, in seconds.
	DefaultTTL = 60

	defaultQueueSize = 16
)

// ErrNotStarted is returned by operations that need a running redirector.
var ErrNotStarted = errors.New("redirector not started")

// Options configures a Redirector.
type Options struct {
	// Host is the address to listen on ("" = all interfaces)
	Host string

	// QueueSize bounds queries waiting to be processed (default 16).
	// Queries arriving on a full queue are dropped and the client retries.
	QueueSize int
}

// query is a DNS request waiting for the owner goroutine.
type query struct {
	w    dns.ResponseWriter
	r    *dns.Msg
	done chan struct{}
}

// Redirector is a DNS server that answers matching A queries with a fixed
// address. The dns library receives packets on its own goroutines, but
// answers are only produced by ProcessNextRequest, one per call.
type Redirector struct {
	opts Options

	mu        sync.Mutex
	rcode     int
	pattern   string
	answer    net.IP
	server    *dns.Server
	conn      net.PacketConn
	queue     chan *query
	quit      chan struct{}
	running   bool
	processed int
}

// New creates a stopped redirector.
func New(opts Options) *Redirector {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Redirector{
		opts:  opts,
		rcode: dns.RcodeNameError,
	}
}

// SetErrorReplyCode sets the response code for names outside the pattern.
func (d *Redirector) SetErrorReplyCode(rcode int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rcode = rcode
}

// Start listens on UDP port and answers names matching pattern with answer.
// Port 0 picks a free port (see Addr).
func (d *Redirector) Start(port int, pattern string, answer net.IP) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("redirector already running on %s", d.conn.LocalAddr())
	}
	if answer.To4() == nil {
		return fmt.Errorf("answer address %v is not IPv4", answer)
	}

	addr := net.JoinHostPort(d.opts.Host, fmt.Sprint(port))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	d.pattern = normalize(pattern)
	d.answer = answer.To4()
	d.conn = conn
	d.queue = make(chan *query, d.opts.QueueSize)
	d.quit = make(chan struct{})

	started := make(chan struct{})
	d.server = &dns.Server{
		PacketConn:        conn,
		Handler:           dns.HandlerFunc(d.enqueue),
		NotifyStartedFunc: func() { close(started) },
	}

	serveErr := make(chan error, 1)
	go func(srv *dns.Server) {
		serveErr <- srv.ActivateAndServe()
	}(d.server)

	select {
	case <-started:
	case err := <-serveErr:
		conn.Close()
		return fmt.Errorf("failed to start DNS server: %w", err)
	}

	d.running = true
	logging.Info("DNS redirector started",
		zap.String("addr", conn.LocalAddr().String()),
		zap.String("pattern", pattern),
		zap.String("answer", answer.String()),
	)
	return nil
}

// enqueue hands a query to the owner and waits until it has been answered.
func (d *Redirector) enqueue(w dns.ResponseWriter, r *dns.Msg) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	q := &query{w: w, r: r, done: make(chan struct{})}
	quit := d.quit
	select {
	case d.queue <- q:
	default:
		d.mu.Unlock()
		logging.Debug("DNS queue full, dropping query", zap.String("remote_addr", w.RemoteAddr().String()))
		return
	}
	d.mu.Unlock()

	select {
	case <-q.done:
	case <-quit:
	}
}

// ProcessNextRequest answers at most one queued query without blocking.
// It reports whether a query was processed.
func (d *Redirector) ProcessNextRequest() bool {
	d.mu.Lock()
	queue := d.queue
	running := d.running
	d.mu.Unlock()

	if !running {
		return false
	}

	select {
	case q := <-queue:
		d.answerQuery(q)
		close(q.done)
		return true
	default:
		return false
	}
}

func (d *Redirector) answerQuery(q *query) {
	d.mu.Lock()
	pattern, answer, rcode := d.pattern, d.answer, d.rcode
	d.processed++
	d.mu.Unlock()

	m := new(dns.Msg)
	m.SetReply(q.r)
	m.Authoritative = true

	answered := false
	name, qtype := "", ""
	if len(q.r.Question) > 0 {
		question := q.r.Question[0]
		name = question.Name
		qtype = dns.TypeToString[question.Qtype]

		switch {
		case !matches(pattern, question.Name):
			m.Rcode = rcode
		case question.Qtype == dns.TypeA || question.Qtype == dns.TypeANY:
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{
					Name:   question.Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    DefaultTTL,
				},
				A: answer,
			})
			answered = true
		default:
			// Name exists, just not with this record type
		}
	} else {
		m.Rcode = dns.RcodeFormatError
	}

	logging.LogDNSQuery(q.w.RemoteAddr().String(), name, qtype, answered)

	if err := q.w.WriteMsg(m); err != nil {
		logging.Debug("Failed to write DNS reply", zap.Error(err))
	}
}

// Stop shuts the server down. Queued queries are dropped unanswered.
// Stopping a stopped redirector is a no-op.
func (d *Redirector) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.quit)
	server := d.server
	d.mu.Unlock()

	err := server.Shutdown()

	// Release anything still queued
drain:
	for {
		select {
		case q := <-d.queue:
			close(q.done)
		default:
			break drain
		}
	}

	logging.Info("DNS redirector stopped")
	if err != nil {
		return fmt.Errorf("failed to stop DNS server: %w", err)
	}
	return nil
}

// Addr returns the listening address.
func (d *Redirector) Addr() (net.Addr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil, ErrNotStarted
	}
	return d.conn.LocalAddr(), nil
}

// Running reports whether the redirector is serving.
func (d *Redirector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Processed returns how many queries have been answered.
func (d *Redirector) Processed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processed
}

func normalize(name string) string {
	if name == WildcardPattern {
		return name
	}
	return dns.Fqdn(strings.ToLower(name))
}

// matches reports whether name falls under pattern. Besides "*", a pattern
// of the form "*.example.com" matches any subdomain.
func matches(pattern, name string) bool {
	if pattern == WildcardPattern {
		return true
	}
	name = strings.ToLower(dns.Fqdn(name))
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(name, pattern[1:])
	}
	return name == pattern
}
