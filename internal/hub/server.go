// Package hub provides a real-time WebSocket server for request
// updates.
//
// The hub broadcasts request lifecycle changes, audit note additions,
// and aggregate statistics to connected clients, so dashboards and
// open mechanic portals refresh without polling.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// MessageType defines the type of hub message.
type MessageType string

const (
	// MessageTypeRequestUpdate indicates a request changed state.
	MessageTypeRequestUpdate MessageType = "request_update"

	// MessageTypeNoteAdded indicates an audit note was appended.
	MessageTypeNoteAdded MessageType = "note_added"

	// MessageTypeStats indicates updated request statistics.
	MessageTypeStats MessageType = "stats"
)

// Message is one hub broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RequestUpdateData carries request change information.
type RequestUpdateData struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Status    string `json:"status,omitempty"`
	Assignee  string `json:"assignee,omitempty"`
}

// NoteAddedData carries note addition information.
type NoteAddedData struct {
	RequestID string `json:"request_id"`
}

// StatsData carries aggregate request counts.
type StatsData struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Open     int            `json:"open"`
	Active   int            `json:"active"`
}

// Server manages WebSocket connections and broadcasts hub messages.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8377". ":0" picks a free port.
	Addr string

	// Logger for server activity.
	Logger *log.Logger
}

// NewServer creates a hub server.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8377"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		clients:   make(map[*conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger,
	}
}

// Start begins listening and broadcasting.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("hub listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("hub server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down and closes all client connections.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for c := range s.clients {
		c.close("server shutting down")
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues a message for all connected clients. It never
// blocks; when the queue is full the message is dropped with a log
// line.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("broadcast queue full, dropping %s", msg.Type)
	}
}

// broadcastLoop fans queued messages out to every client.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*conn, 0, len(s.clients))
			for c := range s.clients {
				clients = append(clients, c)
			}
			s.clientsMu.RUnlock()

			for _, c := range clients {
				if err := c.write(data); err != nil {
					s.logger.Printf("write to client failed: %v", err)
					s.removeClient(c)
				}
			}
		}
	}
}

// removeClient drops one connection.
func (s *Server) removeClient(c *conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[c]; exists {
		delete(s.clients, c)
		count := len(s.clients)
		s.clientsMu.Unlock()
		c.close("")
		s.logger.Printf("client disconnected (total: %d)", count)
		return
	}
	s.clientsMu.Unlock()
}

// handleHealth reports server status and client count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	count := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": count,
	})
}

// handleRoot serves a minimal landing page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>RoadSync Updates</title></head>
<body>
<h1>RoadSync Update Hub</h1>
<p>WebSocket endpoint: <code>ws://%s/ws</code></p>
<p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
