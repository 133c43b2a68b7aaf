package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/skyjohq/skyjo-server/internal/game"
	"github.com/skyjohq/skyjo-server/internal/randutil"
)

// GameService starts game sessions over the server's rooms and tracks
// which sessions are running.
type GameService struct {
	server   *Server
	logger   *log.Logger
	clock    quartz.Clock
	settings GameSettings

	mu      sync.Mutex
	running map[string]*runningGame
}

type runningGame struct {
	session *game.Session
	cancel  context.CancelFunc
	actors  map[string]struct{}
}

// NewGameService creates a service running games over the given server.
func NewGameService(server *Server, settings GameSettings, clock quartz.Clock, logger *log.Logger) *GameService {
	return &GameService{
		server:   server,
		logger:   logger.WithPrefix("service"),
		clock:    clock,
		settings: settings,
		running:  make(map[string]*runningGame),
	}
}

// StartGame deals a new game for the session's current members and runs
// it on its own goroutine. The session must not already have a game
// running.
func (gs *GameService) StartGame(sessionID string) error {
	members := gs.server.Members(sessionID)
	// Connection ids sort by creation time, so seats follow arrival order.
	sort.Strings(members)
	if len(members) < gs.settings.MinPlayers {
		return fmt.Errorf("session %s has %d players, need at least %d",
			sessionID, len(members), gs.settings.MinPlayers)
	}

	gs.mu.Lock()
	if _, exists := gs.running[sessionID]; exists {
		gs.mu.Unlock()
		return fmt.Errorf("session %s already has a game running", sessionID)
	}

	rng := randutil.FromEntropy()
	if gs.settings.Seed != 0 {
		rng = randutil.New(gs.settings.Seed)
	}

	timeout := time.Duration(gs.settings.TurnTimeoutSeconds) * time.Second
	broker := game.NewBroker(gs.server, gs.clock, timeout, gs.logger)

	session, err := game.NewSession(sessionID, members, game.Config{
		PointThreshold: gs.settings.PointThreshold,
	}, broker, gs.server, rng, gs.logger)
	if err != nil {
		gs.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rg := &runningGame{
		session: session,
		cancel:  cancel,
		actors:  make(map[string]struct{}, len(members)),
	}
	for _, actorID := range members {
		rg.actors[actorID] = struct{}{}
	}
	gs.running[sessionID] = rg
	gs.mu.Unlock()

	gs.logger.Info("Starting game", "session", sessionID, "players", len(members))
	go gs.run(ctx, sessionID, session)
	return nil
}

// run drives one session to completion and reports the outcome to the
// room.
func (gs *GameService) run(ctx context.Context, sessionID string, session *game.Session) {
	err := session.Run(ctx)

	gs.mu.Lock()
	if rg, ok := gs.running[sessionID]; ok {
		rg.cancel()
		delete(gs.running, sessionID)
	}
	gs.mu.Unlock()

	switch {
	case err == nil:
		gs.logger.Info("Game finished", "session", sessionID)
		gs.notifyGameEnded(sessionID, "game over")
	case errors.Is(err, context.Canceled):
		gs.logger.Info("Game cancelled", "session", sessionID)
	case errors.Is(err, game.ErrAwaitTimeout):
		gs.logger.Warn("Game abandoned, turn timed out", "session", sessionID)
		gs.server.BroadcastNotice(sessionID, "Game abandoned: a player took too long")
		gs.notifyGameEnded(sessionID, "turn timeout")
	default:
		gs.logger.Error("Game aborted", "session", sessionID, "error", err)
		gs.notifyGameEnded(sessionID, "internal error")
	}
}

// OnActorGone ends any running game that counted the departed actor as a
// participant. The remaining members are told why.
func (gs *GameService) OnActorGone(sessionID, actorID string) {
	gs.mu.Lock()
	rg, ok := gs.running[sessionID]
	if ok {
		_, ok = rg.actors[actorID]
	}
	gs.mu.Unlock()
	if !ok {
		return
	}

	gs.logger.Info("Ending game, participant left", "session", sessionID, "actor", actorID)
	rg.cancel()
	gs.server.BroadcastNotice(sessionID, "Game ended: a player left the session")
	gs.notifyGameEnded(sessionID, "player left")
}

// Running reports whether a game is in progress for the session.
func (gs *GameService) Running(sessionID string) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	_, ok := gs.running[sessionID]
	return ok
}

func (gs *GameService) notifyGameEnded(sessionID, reason string) {
	msg, err := NewMessage(MessageTypeGameEnded, GameEndedData{SessionID: sessionID, Reason: reason})
	if err != nil {
		gs.logger.Error("Failed to encode game ended message", "error", err)
		return
	}
	gs.server.BroadcastToSession(sessionID, msg)
}
