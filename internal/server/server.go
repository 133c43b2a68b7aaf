package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/skyjohq/skyjo-server/internal/game"
	"github.com/skyjohq/skyjo-server/internal/sessionid"
)

// Server owns the websocket endpoint, the connection registry and the
// session rooms. It implements game.Transport for the engine.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	httpServer  *http.Server
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	register    chan *Connection
	unregister  chan *Connection
	mu          sync.RWMutex
	connections map[*Connection]struct{}
	sessions    map[string]map[*Connection]struct{}
	service     *GameService
}

// NewServer creates a websocket server bound to addr.
func NewServer(addr string, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients are served from a separate origin.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		connections: make(map[*Connection]struct{}),
		sessions:    make(map[string]map[*Connection]struct{}),
	}
}

// SetService wires the game service in; must happen before Start.
func (s *Server) SetService(service *GameService) {
	s.service = service
}

// Service returns the game service.
func (s *Server) Service() *GameService {
	return s.service
}

// Start runs the websocket endpoint until Stop is called.
func (s *Server) Start() error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down and closes every connection.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(context.Background())
	}
	return nil
}

// run handles connection lifecycle.
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = struct{}{}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "actor", conn.ID(), "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, known := s.connections[conn]
			delete(s.connections, conn)
			total := len(s.connections)
			s.mu.Unlock()
			if !known {
				continue
			}

			if sessionID := conn.Session(); sessionID != "" {
				s.LeaveSession(conn, sessionID)
			}
			_ = conn.Close()
			s.logger.Info("Client disconnected", "actor", conn.ID(), "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket upgrades a client and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, sessionid.New(), s, s.logger)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister <- client
	}()
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// CreateSession allocates a fresh session room id.
func (s *Server) CreateSession() string {
	return sessionid.New()
}

// JoinSession adds the connection to a session room and tells the room
// about its new member count. A connection is in at most one room.
func (s *Server) JoinSession(c *Connection, sessionID string) {
	if current := c.Session(); current != "" && current != sessionID {
		s.LeaveSession(c, current)
	}

	s.mu.Lock()
	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[*Connection]struct{})
	}
	s.sessions[sessionID][c] = struct{}{}
	members := len(s.sessions[sessionID])
	s.mu.Unlock()

	c.setSession(sessionID)
	s.logger.Info("Actor joined session", "actor", c.ID(), "session", sessionID, "members", members)
	s.broadcastMembers(sessionID, members)
}

// LeaveSession removes the connection from the room, tells the service
// (which ends any running game missing a participant) and updates the
// remaining members.
func (s *Server) LeaveSession(c *Connection, sessionID string) {
	s.mu.Lock()
	delete(s.sessions[sessionID], c)
	members := len(s.sessions[sessionID])
	if members == 0 {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	c.setSession("")
	s.logger.Info("Actor left session", "actor", c.ID(), "session", sessionID, "members", members)

	if s.service != nil {
		s.service.OnActorGone(sessionID, c.ID())
	}
	if members > 0 {
		s.broadcastMembers(sessionID, members)
	}
}

func (s *Server) broadcastMembers(sessionID string, members int) {
	msg, err := NewMessage(MessageTypeSessionMembers, SessionMembersData{
		SessionID: sessionID,
		Members:   members,
	})
	if err != nil {
		s.logger.Error("Failed to create members message", "error", err)
		return
	}
	s.BroadcastToSession(sessionID, msg)
}

// BroadcastToSession sends a message to every connection in the room.
func (s *Server) BroadcastToSession(sessionID string, msg *Message) {
	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.sessions[sessionID]))
	for conn := range s.sessions[sessionID] {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Error("Failed to send message to client", "error", err, "actor", conn.ID())
		}
	}
	s.logger.Debug("Broadcast to session", "session", sessionID, "type", msg.Type, "recipients", len(conns))
}

func (s *Server) findConnection(actorID string) *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.ID() == actorID {
			return conn
		}
	}
	return nil
}

// game.Transport implementation.

// Members returns the actor ids currently joined to the session.
func (s *Server) Members(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]string, 0, len(s.sessions[sessionID]))
	for conn := range s.sessions[sessionID] {
		members = append(members, conn.ID())
	}
	return members
}

// Subscribe registers fn for the named action from one actor. ok is false
// when the actor has no live connection.
func (s *Server) Subscribe(actorID string, action game.ActionName, fn func(json.RawMessage)) (game.CancelFunc, bool) {
	conn := s.findConnection(actorID)
	if conn == nil {
		return nil, false
	}
	return conn.Subscribe(action, fn), true
}

// BroadcastView sends a redacted game snapshot to the whole session.
func (s *Server) BroadcastView(sessionID string, view *game.RedactedView) {
	msg, err := NewMessage(MessageTypeGameUpdate, view)
	if err != nil {
		s.logger.Error("Failed to encode game update", "error", err, "session", sessionID)
		return
	}
	s.BroadcastToSession(sessionID, msg)
}

// BroadcastNotice sends a human-readable message to the whole session.
func (s *Server) BroadcastNotice(sessionID string, text string) {
	msg, err := NewMessage(MessageTypeNotice, NoticeData{SessionID: sessionID, Text: text})
	if err != nil {
		s.logger.Error("Failed to encode notice", "error", err, "session", sessionID)
		return
	}
	s.BroadcastToSession(sessionID, msg)
}
