package signaling

import (
	"encoding/json"
	"sync"
	"time"
)

// Room is the shared data-plane record for an ephemeral two-peer
// rendezvous: its code, the at-most-two attached sessions, and any
// handshake frame buffered for a not-yet-ready counterpart.
type Room struct {
	mu sync.Mutex

	code      string
	createdAt time.Time

	peers [maxRoomSize]*Session // index 0: sender (creator), index 1: receiver (joiner)

	pendingOffer  json.RawMessage
	pendingAnswer json.RawMessage
}

func newRoom(code string) *Room {
	return &Room{code: code, createdAt: time.Now()}
}

func (r *Room) peerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerCountLocked()
}

func (r *Room) peerCountLocked() int {
	n := 0
	for _, p := range r.peers {
		if p != nil {
			n++
		}
	}
	return n
}

func (r *Room) isEmpty() bool {
	return r.peerCount() == 0
}

func (r *Room) age() time.Duration {
	return time.Since(r.createdAt)
}

// attachSender installs s as peers[0], the room creator, and drains
// any answer left over from a prior sender occupying this slot.
func (r *Room) attachSender(s *Session) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[0] = s
	s.setRole(RoleSender)
	answer := r.pendingAnswer
	r.pendingAnswer = nil
	return answer
}

// attachReceiver installs s as peers[1], the joiner, unless that slot
// is already occupied — checked and set under the same lock so two
// concurrent joiners can never both attach. Returns the buffered
// offer, if any, clearing the slot, and whether the attach succeeded.
func (r *Room) attachReceiver(s *Session) (offer json.RawMessage, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peers[1] != nil {
		return nil, false
	}
	r.peers[1] = s
	s.setRole(RoleReceiver)
	offer = r.pendingOffer
	r.pendingOffer = nil
	return offer, true
}

// detach removes s from the room and returns the surviving peer, if
// any remains.
func (r *Room) detach(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.peers {
		if p == s {
			r.peers[i] = nil
		}
	}
	for _, p := range r.peers {
		if p != nil {
			return p
		}
	}
	return nil
}

// snapshotPeers returns both peer slots under lock so a caller can
// release the lock before writing to either transport.
func (r *Room) snapshotPeers() (sender, receiver *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[0], r.peers[1]
}

func (r *Room) livePeers() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, p := range r.peers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) setPendingOffer(offer json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingOffer = offer
}

func (r *Room) setPendingAnswer(answer json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingAnswer = answer
}
