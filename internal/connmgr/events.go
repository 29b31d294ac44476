package connmgr

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

const eventWriteTimeout = 500 * time.Millisecond

// statusEvent is pushed to /events subscribers whenever the status changes.
type statusEvent struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

type subscriber struct {
	conn *websocket.Conn
	gone chan struct{}
}

// events fans status changes out to websocket subscribers. It is owned by
// the manager goroutine; only the per-connection readers run elsewhere.
type events struct {
	subs []*subscriber
	last *statusEvent
}

func newEvents() *events {
	return &events{}
}

// add registers conn and sends it the current status right away.
func (e *events) add(conn *websocket.Conn, current statusEvent) {
	if e.last == nil {
		e.last = &current
	}
	s := &subscriber{conn: conn, gone: make(chan struct{})}

	// Control frames are only processed while reading
	go func() {
		defer close(s.gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !e.send(s, current) {
		return
	}
	e.subs = append(e.subs, s)
	logging.Debug("Status subscriber added", zap.Int("subscribers", len(e.subs)))
}

// publish sends the status to every subscriber if it changed.
func (e *events) publish(status string, connected bool) {
	ev := statusEvent{Status: status, Connected: connected}
	if e.last != nil && *e.last == ev {
		e.prune()
		return
	}
	e.last = &ev

	kept := e.subs[:0]
	for _, s := range e.subs {
		if e.send(s, ev) {
			kept = append(kept, s)
		}
	}
	e.subs = kept
}

// prune drops subscribers whose peer went away.
func (e *events) prune() {
	kept := e.subs[:0]
	for _, s := range e.subs {
		select {
		case <-s.gone:
			s.conn.Close()
		default:
			kept = append(kept, s)
		}
	}
	e.subs = kept
}

func (e *events) send(s *subscriber, ev statusEvent) bool {
	select {
	case <-s.gone:
		s.conn.Close()
		return false
	default:
	}

	s.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	if err := s.conn.WriteJSON(ev); err != nil {
		logging.Debug("Dropping status subscriber", zap.Error(err))
		s.conn.Close()
		return false
	}
	return true
}

// close disconnects every subscriber.
func (e *events) close() {
	for _, s := range e.subs {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "setup finished"),
			time.Now().Add(eventWriteTimeout))
		s.conn.Close()
	}
	e.subs = nil
	e.last = nil
}

// count returns the number of live subscribers.
func (e *events) count() int {
	return len(e.subs)
}
