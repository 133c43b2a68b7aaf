package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Handler processes a resolved action. It runs on the goroutine that
// called Await, so handlers mutate session state without locking.
type Handler func(actorID string, payload Payload)

// ActionHandler pairs an action name with its handler for one wait.
type ActionHandler struct {
	Name   ActionName
	Handle Handler
}

// Broker implements the single suspension point of the session loop: wait
// until exactly one eligible actor fires exactly one of the named actions,
// run its handler, and retract every listener of the wait in one batch.
type Broker struct {
	transport Transport
	clock     quartz.Clock
	timeout   time.Duration // 0 waits forever
	logger    *log.Logger
}

// NewBroker creates a broker over the given transport. A non-zero timeout
// bounds every wait; zero preserves the wait-forever behaviour.
func NewBroker(transport Transport, clock quartz.Clock, timeout time.Duration, logger *log.Logger) *Broker {
	return &Broker{
		transport: transport,
		clock:     clock,
		timeout:   timeout,
		logger:    logger.WithPrefix("broker"),
	}
}

type firedAction struct {
	actorID string
	name    ActionName
	payload Payload
}

// Await blocks until one eligible actor performs one of the given actions,
// runs the matching handler on the calling goroutine and returns the actor
// and action. Exactly one handler runs per call, and every listener
// registered for the wait is deregistered before Await returns.
//
// Actors without a live connection are skipped at registration.
// Undecodable payloads are dropped and the wait continues with all
// listeners still armed. A configured timeout resolves the wait with
// ErrAwaitTimeout; context cancellation resolves it with ctx.Err().
func (b *Broker) Await(ctx context.Context, actions []ActionHandler, actorIDs []string) (string, ActionName, error) {
	fired := make(chan firedAction, 1)
	var once sync.Once

	cancels := make([]CancelFunc, 0, len(actions)*len(actorIDs))
	for _, actorID := range actorIDs {
		for _, action := range actions {
			actorID, name := actorID, action.Name
			cancel, ok := b.transport.Subscribe(actorID, name, func(raw json.RawMessage) {
				payload, err := DecodePayload(name, raw)
				if err != nil {
					b.logger.Warn("Dropping malformed action payload",
						"actor", actorID, "action", name, "error", err)
					return
				}
				once.Do(func() {
					fired <- firedAction{actorID: actorID, name: name, payload: payload}
				})
			})
			if !ok {
				// The actor is gone; skip it rather than fail the wait.
				b.logger.Debug("Skipping unreachable actor", "actor", actorID, "action", name)
				continue
			}
			cancels = append(cancels, cancel)
		}
	}

	retract := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}

	var timeoutC <-chan time.Time
	if b.timeout > 0 {
		timer := b.clock.NewTimer(b.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case f := <-fired:
		retract()
		for _, action := range actions {
			if action.Name == f.name {
				action.Handle(f.actorID, f.payload)
				break
			}
		}
		return f.actorID, f.name, nil
	case <-timeoutC:
		retract()
		return "", "", ErrAwaitTimeout
	case <-ctx.Done():
		retract()
		return "", "", ctx.Err()
	}
}
