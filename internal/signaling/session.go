package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dropwire/signalbridge/internal/logging"
	"go.uber.org/zap"
)

// sessionState is the explicit finite state machine a session moves
// through, replacing a temporary-handler-swap: each state accepts a
// declared subset of frame types.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAwaitingJoinReply
	stateJoined
	stateClosed
)

// pendingInboxSize bounds the number of pre-join handshake frames a
// session will hold: generously more than a handshake ever needs (one
// offer plus a handful of ICE candidates).
const pendingInboxSize = 8

// Session is one attached endpoint of a room.
type Session struct {
	id     string
	conn   Transport
	broker *Broker

	send     chan []byte
	closeSnd sync.Once

	mu      sync.Mutex
	state   sessionState
	role    Role
	room    *Room
	pending [][]byte

	lastPingSent time.Time
	awaitingPong bool
}

// closeSend closes the outbound channel exactly once, letting
// writePump drain and exit. Safe to call from multiple goroutines.
func (s *Session) closeSend() {
	s.closeSnd.Do(func() {
		close(s.send)
	})
}

func newSession(id string, conn Transport, broker *Broker) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		broker: broker,
		send:   make(chan []byte, 256),
		state:  stateConnecting,
	}
}

func (s *Session) setRole(r Role) {
	s.mu.Lock()
	s.role = r
	s.mu.Unlock()
}

func (s *Session) getRole() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) setRoom(r *Room) {
	s.mu.Lock()
	s.room = r
	s.mu.Unlock()
}

func (s *Session) getRoom() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setState(st sessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) getState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// markPongReceived clears the outstanding-heartbeat flag.
func (s *Session) markPongReceived() {
	s.mu.Lock()
	s.awaitingPong = false
	s.mu.Unlock()
}

// isAwaitingPong reports whether a ping was sent that has not yet been
// answered.
func (s *Session) isAwaitingPong() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingPong
}

// sendPing records that a ping went out and returns whether the prior
// one was never acknowledged (meaning this session is dead).
func (s *Session) sendPing() (missedPrevious bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	missedPrevious = s.awaitingPong
	s.awaitingPong = true
	s.lastPingSent = time.Now()
	return missedPrevious
}

// enqueuePending buffers a pre-join frame, dropping the oldest entry
// if the bounded inbox is full.
func (s *Session) enqueuePending(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= pendingInboxSize {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, raw)
}

func (s *Session) drainPending() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// writeJSON marshals v and enqueues it on the session's outbound
// channel. Never blocks: when the send buffer is full the session is
// treated as unresponsive and the frame is dropped (with a warning)
// rather than stalling the caller; the session itself stays attached.
func (s *Session) writeJSON(ctx context.Context, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logging.Error(ctx, "failed to marshal outbound frame", zap.Error(err))
		return
	}
	select {
	case s.send <- raw:
	default:
		logging.Warn(ctx, "dropping frame to unresponsive session", zap.String("session_id", s.id))
	}
}

// writeRaw forwards an already-encoded frame verbatim, preserving the
// sender's relative order across frame types.
func (s *Session) writeRaw(ctx context.Context, raw []byte) {
	select {
	case s.send <- raw:
	default:
		logging.Warn(ctx, "dropping frame to unresponsive session", zap.String("session_id", s.id))
	}
}

// readPump owns the transport for reads and dispatches every inbound
// frame into the broker. It exits, and closes the session, when the
// transport read fails.
func (s *Session) readPump() {
	defer s.broker.closeSession(s)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.broker.dispatch(s, raw)
	}
}

// writePump owns the transport for writes, draining the outbound
// channel until it is closed by closeSession.
func (s *Session) writePump() {
	for raw := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := s.conn.WriteMessage(TextMessage, raw); err != nil {
			return
		}
	}
}
