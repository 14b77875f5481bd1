// Package transfer implements the chunked file transfer protocol that
// runs inside each peer endpoint once the signaling handshake has
// completed: framing outbound chunks with sequence headers, pacing
// sends against the channel's outbound buffer, and on the receive
// side reordering, deduplicating, and reassembling them.
package transfer

import "context"

// Channel is the reliable, ordered, bidirectional byte-stream
// abstraction the engine is built on: it can carry both text and
// binary payloads and exposes an outbound-buffered-bytes counter. In
// production this is backed by a WebRTC data channel; tests use an
// in-memory double.
type Channel interface {
	SendText(ctx context.Context, v any) error
	SendBinary(ctx context.Context, b []byte) error
	BufferedAmount() uint64
	OnMessage(handler func(isBinary bool, data []byte))
}
