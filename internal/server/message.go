package server

import (
	"encoding/json"
	"time"

	"github.com/skyjohq/skyjo-server/internal/game"
)

// MessageType identifies a websocket frame. Game actions reuse the action
// names from the game package directly.
type MessageType string

const (
	// Client → server
	MessageTypeCreateSession MessageType = "create-session"
	MessageTypeJoinSession   MessageType = "join-session"
	MessageTypeLeaveSession  MessageType = "leave-session"
	MessageTypeNewGame       MessageType = "new-game"

	// Server → client
	MessageTypeSessionCreated MessageType = "session-created"
	MessageTypeSessionMembers MessageType = "clients-in-session"
	MessageTypeGameUpdate     MessageType = "game-update"
	MessageTypeNotice         MessageType = "message"
	MessageTypeGameEnded      MessageType = "game-ended"
	MessageTypeError          MessageType = "error"
)

func (t MessageType) String() string { return string(t) }

// isGameAction reports whether the frame is a game action to route into a
// broker wait rather than a lobby command.
func isGameAction(t MessageType) bool {
	switch game.ActionName(t) {
	case game.ActionClickCard, game.ActionDrawFromStack, game.ActionClickDiscardPile,
		game.ActionPlaceCard, game.ActionNextRound:
		return true
	}
	return false
}

// Message is the wire envelope for every websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload into an envelope with the current timestamp.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: messageType, Data: raw, Timestamp: time.Now()}, nil
}

// Client → server payloads.

type JoinSessionData struct {
	SessionID string `json:"sessionId"`
}

type LeaveSessionData struct {
	SessionID string `json:"sessionId"`
}

type NewGameData struct {
	SessionID string `json:"sessionId"`
}

// Server → client payloads.

type SessionCreatedData struct {
	SessionID string `json:"sessionId"`
}

type SessionMembersData struct {
	SessionID string `json:"sessionId"`
	Members   int    `json:"members"`
}

type NoticeData struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type GameEndedData struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
