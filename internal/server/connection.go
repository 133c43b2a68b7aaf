package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/skyjohq/skyjo-server/internal/game"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one websocket client. The connection id doubles as the
// actor id the game engine sees.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	id        string
	sessionID string // room currently joined, empty outside any session
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once

	// Per-actor action listener registry; brokers subscribe here.
	listenerMu     sync.Mutex
	nextListenerID uint64
	listeners      map[game.ActionName]map[uint64]func(json.RawMessage)
}

// NewConnection creates a connection wrapper around an upgraded socket.
func NewConnection(conn *websocket.Conn, id string, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:      conn,
		send:      make(chan *Message, 256),
		id:        id,
		server:    server,
		logger:    logger.WithPrefix("conn").With("actor", id),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[game.ActionName]map[uint64]func(json.RawMessage)),
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// ID returns the actor id of this connection.
func (c *Connection) ID() string { return c.id }

// Session returns the session the connection has joined, if any.
func (c *Connection) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) setSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// SendMessage queues a message for the client.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// The send channel closed mid-select; expected during shutdown.
			c.logger.Debug("Attempted to send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// Subscribe registers fn for incoming occurrences of the named action on
// this connection. The returned cancel removes exactly this registration.
func (c *Connection) Subscribe(action game.ActionName, fn func(json.RawMessage)) game.CancelFunc {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	c.nextListenerID++
	id := c.nextListenerID
	if c.listeners[action] == nil {
		c.listeners[action] = make(map[uint64]func(json.RawMessage))
	}
	c.listeners[action][id] = fn

	return func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		delete(c.listeners[action], id)
	}
}

// dispatchAction fans an incoming game action out to the registered
// listeners. A snapshot is taken so listeners may cancel themselves.
func (c *Connection) dispatchAction(action game.ActionName, raw json.RawMessage) {
	c.listenerMu.Lock()
	fns := make([]func(json.RawMessage), 0, len(c.listeners[action]))
	for _, fn := range c.listeners[action] {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	if len(fns) == 0 {
		c.logger.Debug("No listener for action", "action", action)
		return
	}
	for _, fn := range fns {
		fn(raw)
	}
}

// readPump handles incoming messages from the client.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage routes an incoming frame: lobby commands go to the server
// and service, game actions go to the listener registry.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	if isGameAction(msg.Type) {
		c.dispatchAction(game.ActionName(msg.Type), msg.Data)
		return
	}

	switch msg.Type {
	case MessageTypeCreateSession:
		c.handleCreateSession()

	case MessageTypeJoinSession:
		var data JoinSessionData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.SessionID == "" {
			c.sendError("invalid_message", "Failed to parse join session data")
			return
		}
		c.handleJoinSession(data)

	case MessageTypeLeaveSession:
		var data LeaveSessionData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.SessionID == "" {
			c.sendError("invalid_message", "Failed to parse leave session data")
			return
		}
		c.handleLeaveSession(data)

	case MessageTypeNewGame:
		var data NewGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.SessionID == "" {
			c.sendError("invalid_message", "Failed to parse new game data")
			return
		}
		c.handleNewGame(data)

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleCreateSession() {
	sessionID := c.server.CreateSession()
	c.logger.Info("Session created", "session", sessionID)

	c.server.JoinSession(c, sessionID)
	response, _ := NewMessage(MessageTypeSessionCreated, SessionCreatedData{SessionID: sessionID})
	_ = c.SendMessage(response)
}

func (c *Connection) handleJoinSession(data JoinSessionData) {
	c.logger.Info("Join session request", "session", data.SessionID)
	c.server.JoinSession(c, data.SessionID)
}

func (c *Connection) handleLeaveSession(data LeaveSessionData) {
	c.logger.Info("Leave session request", "session", data.SessionID)
	if c.Session() != data.SessionID {
		c.sendError("not_in_session", "Not joined to session "+data.SessionID)
		return
	}
	c.server.LeaveSession(c, data.SessionID)
}

func (c *Connection) handleNewGame(data NewGameData) {
	c.logger.Info("New game request", "session", data.SessionID)

	service := c.server.Service()
	if service == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}
	if err := service.StartGame(data.SessionID); err != nil {
		c.sendError("start_failed", err.Error())
	}
}

// sendError sends an error message to the client.
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}
	_ = c.SendMessage(errorMsg)
}
