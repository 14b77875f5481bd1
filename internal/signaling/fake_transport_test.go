package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport double. outbox captures
// every frame written to it; inbox is drained by ReadMessage in FIFO
// order, blocking until a frame is pushed or the transport is closed.
type fakeTransport struct {
	mu     sync.Mutex
	outbox [][]byte
	inbox  chan []byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan []byte, 32)}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	raw, ok := <-f.inbox
	if !ok {
		return 0, nil, errors.New("fake transport closed")
	}
	return TextMessage, raw, nil
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake transport closed")
	}
	cp := append([]byte(nil), data...)
	f.outbox = append(f.outbox, cp)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbox)
	return nil
}

// push delivers raw to the session's read loop as an inbound frame.
func (f *fakeTransport) push(raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.inbox <- raw
}

func (f *fakeTransport) pushJSON(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.push(raw)
}

// messageTags returns the decoded "type" tag of every frame written so
// far, in order.
func (f *fakeTransport) messageTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	tags := make([]string, 0, len(f.outbox))
	for _, raw := range f.outbox {
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			tags = append(tags, env.Type)
		} else {
			tags = append(tags, "<binary>")
		}
	}
	return tags
}

func (f *fakeTransport) rawMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbox))
	copy(out, f.outbox)
	return out
}
