package game

import "encoding/json"

// CancelFunc removes a listener registered with Subscribe.
type CancelFunc func()

// Transport is the narrow seam to the connection layer. The engine
// consumes session membership, per-actor action subscription and
// broadcast; everything else about connections stays on the other side.
type Transport interface {
	// Members returns the actor ids currently joined to the session.
	Members(sessionID string) []string

	// Subscribe registers fn for the named action from one actor. fn
	// fires once per occurrence until cancelled. ok is false when the
	// actor is not currently reachable; callers skip such actors.
	Subscribe(actorID string, action ActionName, fn func(raw json.RawMessage)) (cancel CancelFunc, ok bool)

	// BroadcastView delivers a redacted state snapshot to every actor
	// joined to the session.
	BroadcastView(sessionID string, view *RedactedView)

	// BroadcastNotice delivers a human-readable message to every actor
	// joined to the session.
	BroadcastNotice(sessionID string, text string)
}
