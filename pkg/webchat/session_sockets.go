package webchat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/travel-agent/pkg/telemetry"
)

const (
	defaultSocketQueue  = 64
	defaultWriteTimeout = 10 * time.Second
)

// wsConn is the part of *websocket.Conn a session socket writes to.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// socketLimits bound how far one websocket may fall behind.
type socketLimits struct {
	queue        int
	writeTimeout time.Duration
}

func (l socketLimits) withDefaults() socketLimits {
	if l.queue <= 0 {
		l.queue = defaultSocketQueue
	}
	if l.writeTimeout <= 0 {
		l.writeTimeout = defaultWriteTimeout
	}
	return l
}

// socketWriter is the only goroutine writing to its conn. Frames wait in a
// bounded queue; halting closes the conn, which also unblocks a pending write.
type socketWriter struct {
	conn  wsConn
	queue chan []byte
	stop  chan struct{}
	once  sync.Once
}

func (w *socketWriter) halt() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.conn.Close()
	})
}

// SessionSockets holds the websockets attached to one chat session. Publishing
// never waits on a socket: a socket whose queue is full is dropped.
type SessionSockets struct {
	sessionID string
	limits    socketLimits
	metrics   *telemetry.Metrics

	mu        sync.Mutex
	writers   map[wsConn]*socketWriter
	idleAfter time.Duration
	idleTimer *time.Timer
	onIdle    func()
}

func newSessionSockets(sessionID string, limits socketLimits, metrics *telemetry.Metrics, idleAfter time.Duration, onIdle func()) *SessionSockets {
	return &SessionSockets{
		sessionID: sessionID,
		limits:    limits.withDefaults(),
		metrics:   metrics,
		writers:   map[wsConn]*socketWriter{},
		idleAfter: idleAfter,
		onIdle:    onIdle,
	}
}

// Attach starts a writer for conn.
func (s *SessionSockets) Attach(conn wsConn) {
	if s == nil || conn == nil {
		return
	}
	w := &socketWriter{
		conn:  conn,
		queue: make(chan []byte, s.limits.queue),
		stop:  make(chan struct{}),
	}
	s.mu.Lock()
	if _, ok := s.writers[conn]; ok {
		s.mu.Unlock()
		return
	}
	s.writers[conn] = w
	s.cancelIdleLocked()
	s.mu.Unlock()
	go s.write(w)
}

// Detach stops the writer and closes conn.
func (s *SessionSockets) Detach(conn wsConn) {
	if conn == nil {
		return
	}
	if !s.drop(conn) {
		_ = conn.Close()
	}
}

// Publish queues data on every socket and reports how many accepted it.
func (s *SessionSockets) Publish(data []byte) int {
	if s == nil || len(data) == 0 {
		return 0
	}
	var slow []*socketWriter
	queued := 0
	s.mu.Lock()
	for conn, w := range s.writers {
		select {
		case w.queue <- data:
			queued++
		default:
			delete(s.writers, conn)
			slow = append(slow, w)
		}
	}
	if len(slow) > 0 {
		s.armIdleLocked()
	}
	s.mu.Unlock()

	for _, w := range slow {
		s.discard(w, telemetry.DropSlowConsumer)
	}
	return queued
}

// SendTo queues data for conn alone.
func (s *SessionSockets) SendTo(conn wsConn, data []byte) bool {
	if s == nil || conn == nil || len(data) == 0 {
		return false
	}
	s.mu.Lock()
	w, ok := s.writers[conn]
	if !ok {
		s.mu.Unlock()
		return false
	}
	select {
	case w.queue <- data:
		s.mu.Unlock()
		return true
	default:
		delete(s.writers, conn)
		s.armIdleLocked()
		s.mu.Unlock()
		s.discard(w, telemetry.DropSlowConsumer)
		return false
	}
}

func (s *SessionSockets) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writers)
}

// Close halts every writer without firing the idle callback.
func (s *SessionSockets) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	writers := make([]*socketWriter, 0, len(s.writers))
	for conn, w := range s.writers {
		writers = append(writers, w)
		delete(s.writers, conn)
	}
	s.cancelIdleLocked()
	s.mu.Unlock()
	for _, w := range writers {
		w.halt()
	}
}

func (s *SessionSockets) write(w *socketWriter) {
	for {
		select {
		case <-w.stop:
			return
		case data := <-w.queue:
			_ = w.conn.SetWriteDeadline(time.Now().Add(s.limits.writeTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if s.drop(w.conn) {
					log.Warn().Err(err).Str("component", "webchat").Str("session_id", s.sessionID).Msg("ws write failed, dropping connection")
					s.metrics.RecordDroppedFrames(context.Background(), telemetry.DropWriteFailed, 1+len(w.queue))
				}
				return
			}
		}
	}
}

// drop removes conn and halts its writer; false when conn was not attached.
func (s *SessionSockets) drop(conn wsConn) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	w, ok := s.writers[conn]
	if ok {
		delete(s.writers, conn)
		s.armIdleLocked()
	}
	s.mu.Unlock()
	if ok {
		w.halt()
	}
	return ok
}

func (s *SessionSockets) discard(w *socketWriter, reason string) {
	lost := 1 + len(w.queue)
	log.Warn().Str("component", "webchat").Str("session_id", s.sessionID).Str("reason", reason).Int("frames", lost).Msg("dropping websocket that fell behind")
	s.metrics.RecordDroppedFrames(context.Background(), reason, lost)
	w.halt()
}

func (s *SessionSockets) cancelIdleLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// armIdleLocked schedules onIdle once the session has no sockets left.
func (s *SessionSockets) armIdleLocked() {
	s.cancelIdleLocked()
	if len(s.writers) > 0 || s.idleAfter <= 0 || s.onIdle == nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(s.idleAfter, func() {
		s.mu.Lock()
		fire := len(s.writers) == 0 && s.idleTimer == t
		if s.idleTimer == t {
			s.idleTimer = nil
		}
		s.mu.Unlock()
		if fire {
			s.onIdle()
		}
	})
	s.idleTimer = t
}
