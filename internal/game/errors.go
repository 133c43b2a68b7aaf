package game

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDeck indicates a draw from an exhausted stack. The phase
	// machine keeps the stack non-empty in every reachable state, so
	// seeing this means the card bookkeeping is broken.
	ErrEmptyDeck = errors.New("game: draw from empty deck")

	// ErrInsufficientPlayers is returned when a session is created with
	// fewer than two actors.
	ErrInsufficientPlayers = errors.New("game: at least two players required")

	// ErrAwaitTimeout is returned by the broker when a bounded wait
	// elapses before any eligible actor acts.
	ErrAwaitTimeout = errors.New("game: timed out waiting for player action")
)

// UnknownPhaseError reports a phase value the session loop does not
// recognise. It is a programming error and aborts the session.
type UnknownPhaseError struct {
	Phase Phase
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("game: unknown phase %d", int(e.Phase))
}

// MalformedPayloadError reports an action payload that does not decode
// against the action's expected shape. The action is dropped without
// touching game state and the wait continues.
type MalformedPayloadError struct {
	Action ActionName
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("game: malformed %s payload: %v", e.Action, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }
