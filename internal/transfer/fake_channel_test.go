package transfer

import (
	"context"
	"encoding/json"
	"sync"
)

// fakeChannel is an in-memory Channel double. Its buffer grows with
// every SendBinary and empties only when drain is called, letting
// backpressure tests assert the sender never exceeds the watermark.
type fakeChannel struct {
	mu      sync.Mutex
	buffer  uint64
	drainOn uint64 // not read by BufferedAmount; only drain empties the buffer

	textFrames   []json.RawMessage
	binaryFrames [][]byte

	handler func(isBinary bool, data []byte)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{}
}

func (c *fakeChannel) SendText(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.textFrames = append(c.textFrames, raw)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) SendBinary(ctx context.Context, b []byte) error {
	c.mu.Lock()
	cp := append([]byte(nil), b...)
	c.binaryFrames = append(c.binaryFrames, cp)
	c.buffer += uint64(len(b))
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// drain simulates the transport flushing its outbound buffer.
func (c *fakeChannel) drain() {
	c.mu.Lock()
	c.buffer = 0
	c.mu.Unlock()
}

func (c *fakeChannel) OnMessage(handler func(isBinary bool, data []byte)) {
	c.handler = handler
}

// deliverText feeds v to the registered OnMessage handler as a text
// frame, as the sender-side peer would over the real channel.
func (c *fakeChannel) deliverText(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.handler(false, raw)
}

func (c *fakeChannel) deliverBinary(raw []byte) {
	c.handler(true, raw)
}

func (c *fakeChannel) textTags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags := make([]string, 0, len(c.textFrames))
	for _, raw := range c.textFrames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &env) == nil {
			tags = append(tags, env.Type)
		}
	}
	return tags
}
