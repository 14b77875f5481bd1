package signaling

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Room-code possession is this protocol's sole authorization;
		// the HTTP boundary (CORS, origin allow-lists) is an external
		// collaborator's concern, not the broker's.
		return true
	},
	WriteBufferPool: &sync.Pool{
		New: func() any {
			return make([]byte, 4096)
		},
	},
}

// ServeWS upgrades an inbound HTTP request to a WebSocket connection
// and hands it to the broker as a new signaling session.
func (b *Broker) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	b.Accept(conn)
}
