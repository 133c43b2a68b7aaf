// Package game implements the Skyjo game engine: the per-session phase
// state machine, card and hand bookkeeping, round scoring and the redacted
// state projection that is broadcast to clients.
//
// The main type is Session, which owns the face-down stack, every player's
// hand, the discard pile and the current phase. Session.Run drives the
// phase loop on a single goroutine; the loop suspends only inside
// Broker.Await calls, and all state mutation happens on the resuming call
// stack, so the engine needs no locking.
//
// The transport layer is consumed through the narrow Transport interface:
// session membership, per-actor action subscription and broadcast. The
// websocket implementation lives in internal/server.
//
// # Deterministic Testing
//
// Sessions take an injected *rand.Rand, so a fixed seed reproduces the
// shuffle and every tie-break:
//
//	rng := randutil.New(42)
//	s, err := game.NewSession(id, actors, cfg, broker, transport, rng, logger)
package game
