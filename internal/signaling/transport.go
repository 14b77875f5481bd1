package signaling

import "time"

// Transport is the bidirectional text-message channel a signaling
// session is built on. Production code satisfies it with
// *websocket.Conn; tests satisfy it with an in-memory fake.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// TextMessage matches gorilla/websocket.TextMessage so production
// Transport implementations need no import of this package to satisfy
// the interface's message-type constant.
const TextMessage = 1
