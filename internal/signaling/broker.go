// Package signaling implements the rendezvous broker: a stateful
// message relay that manages short-lived two-peer rooms, enforces
// their capacity and expiry invariants, and orders the connection
// setup handshake correctly even when one peer sends handshake frames
// before the other has attached.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dropwire/signalbridge/internal/logging"
	"github.com/dropwire/signalbridge/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultRoomExpiry matches ROOM_EXPIRY's default of 10 minutes.
	DefaultRoomExpiry = 10 * time.Minute
	// DefaultHeartbeatPeriod matches the 30s heartbeat period.
	DefaultHeartbeatPeriod = 30 * time.Second
	// sweepInterval is the recurring expiry sweep period; spec requires ≤60s.
	sweepInterval = 30 * time.Second
	// maxRoomSize is fixed at 2; the protocol is undefined for any other value.
	maxRoomSize = 2
)

// Broker owns the process-wide room table. All other goroutines
// interact with rooms only through its methods; no code outside this
// package ever reaches into a Room directly.
type Broker struct {
	mu    sync.Mutex
	rooms map[string]*Room

	roomExpiry      time.Duration
	heartbeatPeriod time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker constructs a Broker with the given room-expiry and
// heartbeat-period tunables.
func NewBroker(roomExpiry, heartbeatPeriod time.Duration) *Broker {
	return &Broker{
		rooms:           make(map[string]*Room),
		roomExpiry:      roomExpiry,
		heartbeatPeriod: heartbeatPeriod,
	}
}

// Run starts the expiry sweep and heartbeat goroutines. Cancel ctx, or
// call Stop, to shut them down.
func (b *Broker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(2)
	go b.sweepLoop(ctx)
	go b.heartbeatLoop(ctx)
}

// Stop halts the sweep and heartbeat goroutines and waits for them to
// exit.
func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// RoomCount returns the number of rooms currently held open.
func (b *Broker) RoomCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}

// ConnectionCount returns the total number of attached sessions
// across all rooms.
func (b *Broker) ConnectionCount() int {
	total := 0
	for _, room := range b.snapshotRooms() {
		total += room.peerCount()
	}
	return total
}

// Accept registers conn as a new signaling session and starts its
// read/write pumps. Returns the session so tests can drive it
// directly.
func (b *Broker) Accept(conn Transport) *Session {
	s := newSession(uuid.NewString(), conn, b)
	s.setState(stateAwaitingJoinReply)

	go s.writePump()
	go s.readPump()

	s.writeJSON(context.Background(), newConnected("connected to signaling broker"))
	return s
}

func (b *Broker) sweepLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepExpiredRooms()
		}
	}
}

func (b *Broker) sweepExpiredRooms() {
	ctx := context.Background()
	var expired []*Room

	b.mu.Lock()
	for code, room := range b.rooms {
		if room.age() > b.roomExpiry {
			expired = append(expired, room)
			delete(b.rooms, code)
		}
	}
	b.mu.Unlock()

	for _, room := range expired {
		metrics.RoomExpirationsTotal.Inc()
		metrics.RoomsActive.Dec()
		metrics.PeersConnected.DeleteLabelValues(room.code)

		for _, peer := range room.livePeers() {
			peer.writeJSON(ctx, newTagOnly(TagRoomExpired))
			peer.setState(stateClosed)
			peer.conn.Close()
		}
		logging.Info(logging.WithRoomCode(ctx, room.code), "room expired")
	}
}

func (b *Broker) heartbeatLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.heartbeatTick()
		}
	}
}

func (b *Broker) heartbeatTick() {
	ctx := context.Background()
	for _, room := range b.snapshotRooms() {
		for _, peer := range room.livePeers() {
			if peer.getState() == stateClosed {
				continue
			}
			if missedPrevious := peer.sendPing(); missedPrevious {
				logging.Warn(ctx, "session missed heartbeat, terminating", zap.String("session_id", peer.id))
				b.closeSession(peer)
				continue
			}
			peer.writeJSON(ctx, newTagOnly(TagPing))
		}
	}
}

func (b *Broker) snapshotRooms() []*Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Room, 0, len(b.rooms))
	for _, r := range b.rooms {
		out = append(out, r)
	}
	return out
}

// dispatch routes one inbound frame from s into the join protocol or
// the forwarding rules, depending on the session's current state.
func (b *Broker) dispatch(s *Session, raw []byte) {
	ctx := context.Background()
	start := time.Now()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		kind := newSignalingError(ErrMalformedFrame, "malformed frame")
		logging.Warn(ctx, "malformed frame", zap.String("kind", string(kind.Kind)))
		metrics.SignalingEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		s.writeJSON(ctx, newError(kind.Message))
		return
	}

	switch env.Type {
	case TagJoin:
		b.handleJoin(s, raw)
	case TagPing:
		s.writeJSON(ctx, newTagOnly(TagPong))
	case TagPong:
		s.markPongReceived()
	case TagOffer, TagAnswer, TagICECandidate:
		b.handleHandshakeFrame(s, env.Type, raw)
	default:
		logging.Warn(ctx, "ignoring unknown frame type", zap.String("type", env.Type))
		metrics.SignalingEventsTotal.WithLabelValues(env.Type, "unknown").Inc()
		return
	}

	metrics.SignalingEventsTotal.WithLabelValues(env.Type, "processed").Inc()
	metrics.SignalingMessageDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
}

// handleHandshakeFrame queues offer/answer/ice-candidate frames that
// arrive before the session has joined, per the pending-message
// design note; once joined, it forwards immediately.
func (b *Broker) handleHandshakeFrame(s *Session, tag string, raw []byte) {
	if s.getState() != stateJoined {
		s.enqueuePending(raw)
		return
	}
	b.forward(s, tag, raw)
}

func (b *Broker) handleJoin(s *Session, raw []byte) {
	ctx := context.Background()
	var p joinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		b.rejectJoin(ctx, s, newSignalingError(ErrMalformedFrame, "malformed join frame"))
		return
	}

	if p.CreateNew {
		b.createRoomForSender(s)
		return
	}

	code := normalizeRoomCode(p.RoomID)
	b.mu.Lock()
	room, ok := b.rooms[code]
	b.mu.Unlock()

	if !ok {
		b.rejectJoin(ctx, s, newSignalingError(ErrUnknownRoom, "room not found"))
		return
	}

	b.joinAsReceiver(ctx, s, room)
}

// rejectJoin replies with the error's message and logs its kind. The
// session is left open: a rejected join is recoverable by the caller.
func (b *Broker) rejectJoin(ctx context.Context, s *Session, err *Error) {
	logging.Warn(ctx, "rejecting join", zap.String("kind", string(err.Kind)), zap.String("session_id", s.id))
	s.writeJSON(ctx, newError(err.Message))
}

func (b *Broker) createRoomForSender(s *Session) {
	ctx := context.Background()
	code, room, err := b.createRoom()
	if err != nil {
		s.writeJSON(ctx, newError("failed to allocate room"))
		return
	}

	room.attachSender(s)
	s.setRoom(room)
	s.setState(stateJoined)

	metrics.RoomsActive.Inc()
	metrics.PeersConnected.WithLabelValues(code).Set(1)

	s.writeJSON(logging.WithRoomCode(ctx, code), newJoined(code, RoleSender, 1))
	b.drainPendingFrames(s)
}

// createRoom allocates a fresh room under a unique code, retrying on
// the astronomically unlikely collision.
func (b *Broker) createRoom() (string, *Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for attempt := 0; attempt < 10; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return "", nil, err
		}
		if _, exists := b.rooms[code]; exists {
			continue
		}
		room := newRoom(code)
		b.rooms[code] = room
		return code, room, nil
	}
	return "", nil, fmt.Errorf("signaling: could not allocate a unique room code")
}

// joinAsReceiver attempts to attach s to room as its receiver. The
// capacity check and the attach happen under room's single lock
// (inside attachReceiver), so two concurrent joiners racing on a
// one-peer room can never both succeed.
func (b *Broker) joinAsReceiver(ctx context.Context, s *Session, room *Room) {
	ctx = logging.WithRoomCode(ctx, room.code)

	offer, ok := room.attachReceiver(s)
	if !ok {
		b.rejectJoin(ctx, s, newSignalingError(ErrRoomFull, "room full"))
		return
	}
	s.setRoom(room)
	s.setState(stateJoined)

	metrics.PeersConnected.WithLabelValues(room.code).Set(2)

	sender, receiver := room.snapshotPeers()
	if sender != nil {
		sender.writeJSON(ctx, newJoined(room.code, RoleSender, 2))
	}
	if receiver != nil {
		receiver.writeJSON(ctx, newJoined(room.code, RoleReceiver, 2))
	}

	if offer != nil {
		s.writeRaw(ctx, offer)
	}
	b.drainPendingFrames(s)
}

// drainPendingFrames forwards any handshake frames this session
// queued before it joined, in arrival order.
func (b *Broker) drainPendingFrames(s *Session) {
	for _, raw := range s.drainPending() {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		b.forward(s, env.Type, raw)
	}
}

// forward implements the role-directed forwarding rules: offer flows
// sender→receiver, answer flows receiver→sender, ice-candidate flows
// to the other peer, whatever the sending session's role.
func (b *Broker) forward(s *Session, tag string, raw []byte) {
	room := s.getRoom()
	if room == nil {
		return
	}
	ctx := logging.WithRoomCode(context.Background(), room.code)

	sender, receiver := room.snapshotPeers()

	var target *Session
	switch tag {
	case TagOffer:
		target = receiver
	case TagAnswer:
		target = sender
	case TagICECandidate:
		if s == sender {
			target = receiver
		} else {
			target = sender
		}
	}

	if target != nil {
		target.writeRaw(ctx, raw)
		return
	}

	// Destination peer not yet attached.
	switch tag {
	case TagOffer:
		room.setPendingOffer(raw)
	case TagAnswer:
		room.setPendingAnswer(raw)
	case TagICECandidate:
		peerGone := newSignalingError(ErrPeerGone, "counterpart not attached, dropping ice-candidate")
		logging.Info(ctx, peerGone.Message, zap.String("kind", string(peerGone.Kind)))
	}
}

// closeSession tears down s: detaches it from its room, notifies the
// surviving peer, removes the room if it is now empty, and closes the
// transport. Safe to call more than once.
func (b *Broker) closeSession(s *Session) {
	if s.getState() == stateClosed {
		return
	}
	s.setState(stateClosed)
	s.closeSend()
	s.conn.Close()

	room := s.getRoom()
	if room == nil {
		return
	}
	ctx := logging.WithRoomCode(context.Background(), room.code)
	transportDown := newSignalingError(ErrTransportDown, "transport closed, detaching session")
	logging.Info(ctx, transportDown.Message, zap.String("kind", string(transportDown.Kind)), zap.String("session_id", s.id))

	survivor := room.detach(s)
	if survivor != nil {
		survivor.writeJSON(ctx, newTagOnly(TagPeerDisconnected))
		metrics.PeersConnected.WithLabelValues(room.code).Set(1)
	}

	if room.isEmpty() {
		b.mu.Lock()
		delete(b.rooms, room.code)
		b.mu.Unlock()

		metrics.RoomsActive.Dec()
		metrics.PeersConnected.DeleteLabelValues(room.code)
		logging.Info(ctx, "room removed, no peers remain")
	}
}
