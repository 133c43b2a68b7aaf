package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// stubTransport is an in-process Transport for tests: listeners live in a
// map and tests deliver actions by calling fire directly.
type stubTransport struct {
	mu        sync.Mutex
	actors    []string
	reachable map[string]bool
	nextID    uint64
	listeners map[string]map[ActionName]map[uint64]func(json.RawMessage)
	notices   []string
	views     chan *RedactedView
}

func newStubTransport(actors ...string) *stubTransport {
	st := &stubTransport{
		actors:    actors,
		reachable: make(map[string]bool, len(actors)),
		listeners: make(map[string]map[ActionName]map[uint64]func(json.RawMessage)),
		views:     make(chan *RedactedView, 4096),
	}
	for _, a := range actors {
		st.reachable[a] = true
	}
	return st
}

func (st *stubTransport) Members(string) []string {
	return st.actors
}

func (st *stubTransport) Subscribe(actorID string, action ActionName, fn func(json.RawMessage)) (CancelFunc, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.reachable[actorID] {
		return nil, false
	}
	if st.listeners[actorID] == nil {
		st.listeners[actorID] = make(map[ActionName]map[uint64]func(json.RawMessage))
	}
	if st.listeners[actorID][action] == nil {
		st.listeners[actorID][action] = make(map[uint64]func(json.RawMessage))
	}
	st.nextID++
	id := st.nextID
	st.listeners[actorID][action][id] = fn

	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		delete(st.listeners[actorID][action], id)
	}, true
}

func (st *stubTransport) BroadcastView(_ string, view *RedactedView) {
	select {
	case st.views <- view:
	default:
	}
}

func (st *stubTransport) BroadcastNotice(_ string, text string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.notices = append(st.notices, text)
}

func (st *stubTransport) noticeLog() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.notices...)
}

func (st *stubTransport) listenerCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, actions := range st.listeners {
		for _, fns := range actions {
			n += len(fns)
		}
	}
	return n
}

// fire delivers an action to the listeners registered right now. Returns
// false when nobody is listening.
func (st *stubTransport) fire(actorID string, action ActionName, raw json.RawMessage) bool {
	st.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(st.listeners[actorID][action]))
	for _, fn := range st.listeners[actorID][action] {
		fns = append(fns, fn)
	}
	st.mu.Unlock()

	for _, fn := range fns {
		fn(raw)
	}
	return len(fns) > 0
}

// fireWait polls until a listener picks the action up; tests use it to
// deliver an action while the session goroutine is between waits.
func (st *stubTransport) fireWait(t *testing.T, actorID string, action ActionName, raw json.RawMessage) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st.fire(actorID, action, raw) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no listener accepted %s from %s", action, actorID)
}
