package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds one client write; a client that cannot keep up
// within it is dropped rather than allowed to stall the broadcast
// loop.
const writeTimeout = 5 * time.Second

// conn wraps one WebSocket client. Writes are serialized so the
// broadcast loop and the welcome message never interleave frames.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *conn) close(reason string) {
	if reason == "" {
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
		return
	}
	_ = c.ws.Close(websocket.StatusGoingAway, reason)
}

// handleWebSocket upgrades the connection and registers the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	c := &conn{ws: ws}

	s.clientsMu.Lock()
	s.clients[c] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("client connected (total: %d)", count)

	// Greet with an empty stats frame so clients can validate the
	// stream immediately.
	welcome, _ := encodeMessage(MessageTypeStats, StatsData{ByStatus: map[string]int{}})
	if err := c.write(welcome); err != nil {
		s.removeClient(c)
		return
	}

	go s.readLoop(c)
}

// readLoop drains client frames until disconnect. Client messages are
// not processed; the read keeps ping/pong alive and detects closure.
func (s *Server) readLoop(c *conn) {
	defer s.removeClient(c)
	for {
		if _, _, err := c.ws.Read(s.ctx); err != nil {
			return
		}
	}
}
