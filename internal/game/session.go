package game

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"

	"github.com/charmbracelet/log"
)

// Phase is the session state machine position. The string forms are part
// of the wire protocol.
type Phase int

const (
	PhaseRevealTwoCards Phase = iota
	PhasePickUpCard
	PhasePlaceCard
	PhaseRevealCard
	PhaseRevealedLastCard
	PhaseNewRound
	PhaseGameEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseRevealTwoCards:
		return "reveal two cards"
	case PhasePickUpCard:
		return "pick up card"
	case PhasePlaceCard:
		return "place card"
	case PhaseRevealCard:
		return "reveal card"
	case PhaseRevealedLastCard:
		return "revealed last card"
	case PhaseNewRound:
		return "new round"
	case PhaseGameEnded:
		return "game ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Config carries the tunables a session needs from the outside.
type Config struct {
	// PointThreshold ends the game once any total reaches it.
	// Defaults to DefaultPointThreshold.
	PointThreshold int
}

// Session runs one game among a fixed set of participants. All state
// mutation happens on the Run goroutine; the loop suspends only inside
// broker waits, so the session needs no locking.
type Session struct {
	id        string
	players   []*Player
	deck      *Deck
	discard   []Card // top is the last element
	phase     Phase
	round     int
	turnIndex int // -1 during the simultaneous initial reveal

	broker    *Broker
	transport Transport
	rng       *rand.Rand
	logger    *log.Logger
	threshold int
	failure   error // set by a handler that hit a fatal invariant
}

// NewSession deals a fresh game for the given actors, in order. At least
// two actors are required.
func NewSession(id string, actorIDs []string, cfg Config, broker *Broker, transport Transport, rng *rand.Rand, logger *log.Logger) (*Session, error) {
	if len(actorIDs) < 2 {
		return nil, ErrInsufficientPlayers
	}
	threshold := cfg.PointThreshold
	if threshold <= 0 {
		threshold = DefaultPointThreshold
	}
	s := &Session{
		id:        id,
		phase:     PhaseRevealTwoCards,
		round:     1,
		turnIndex: -1,
		broker:    broker,
		transport: transport,
		rng:       rng,
		logger:    logger.WithPrefix("session").With("session", id),
		threshold: threshold,
	}
	for i, actorID := range actorIDs {
		s.players = append(s.players, &Player{
			Index:   i + 1,
			ActorID: actorID,
			Name:    fmt.Sprintf("Player %d", i+1),
		})
	}
	if err := s.dealRound(); err != nil {
		return nil, err
	}
	s.logger.Info("New game created", "players", len(s.players))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// dealRound rebuilds the stack, every hand and the discard pile. Player
// identity and totals survive; everything else resets.
func (s *Session) dealRound() error {
	s.deck = NewDeck(s.rng)
	s.deck.Shuffle()
	for _, p := range s.players {
		hand, err := NewHand(s.deck)
		if err != nil {
			return err
		}
		p.Hand = hand
		p.Cache = nil
		p.TookFromDiscard = false
		p.RoundPoints = 0
		p.ClosedRound = false
	}
	first, err := s.deck.Draw()
	if err != nil {
		return err
	}
	s.discard = []Card{first}
	s.turnIndex = -1
	return nil
}

// Run drives the phase loop until the game ends or the context is
// cancelled. An unknown phase is a programming error and aborts the
// session.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("Game started")
	s.broadcast()
	for s.phase != PhaseGameEnded {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.applyTableRules()
		s.logger.Debug("Entering phase", "phase", s.phase, "round", s.round)

		var err error
		switch s.phase {
		case PhaseRevealTwoCards:
			err = s.revealInitialCards(ctx)
		case PhasePickUpCard:
			err = s.pickUpCard(ctx)
		case PhasePlaceCard:
			err = s.placeCard(ctx)
		case PhaseRevealCard:
			err = s.revealCard(ctx)
		case PhaseRevealedLastCard:
			err = s.revealedLastCard()
		case PhaseNewRound:
			err = s.nextRound(ctx)
		default:
			err = &UnknownPhaseError{Phase: s.phase}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// applyTableRules enforces the cross-cutting rules on every loop tick:
// fully-known equal columns leave the game immediately, and the first
// player whose whole hand is known closes the round.
func (s *Session) applyTableRules() {
	s.removeMatchedTriples()
	s.detectRoundClosure()
}

func (s *Session) removeMatchedTriples() {
	for _, p := range s.players {
		// Rescan after every removal: indices shift when a column goes.
		for {
			triples := p.Hand.MatchedTriples()
			if len(triples) == 0 {
				break
			}
			t := triples[0]
			s.discard = append(s.discard, p.Hand.RemoveColumn(t.Column)...)
			s.logger.Info("Removed matched column", "player", p.Name, "value", t.Value)
			s.broadcastNotice(fmt.Sprintf("%s discarded three cards of value %s!", p.Name, t.Value))
			s.broadcast()
		}
	}
}

func (s *Session) detectRoundClosure() {
	for _, p := range s.players {
		if p.ClosedRound {
			return // at most one closer per round
		}
	}
	for _, p := range s.players {
		if p.Hand.IsFullyKnown() {
			p.ClosedRound = true
			s.logger.Info("Round closed", "player", p.Name)
			s.broadcastNotice(fmt.Sprintf("%s revealed all cards and closed the round!", p.Name))
			return
		}
	}
}

// Game phases.

func (s *Session) revealInitialCards(ctx context.Context) error {
	s.broadcastNotice("Reveal two cards")
	for {
		var pending []string
		for _, p := range s.players {
			if !p.Hand.HasInitialReveals() {
				pending = append(pending, p.ActorID)
			}
		}
		if len(pending) == 0 {
			break
		}
		_, _, err := s.broker.Await(ctx, []ActionHandler{
			{Name: ActionClickCard, Handle: s.revealCardAction},
		}, pending)
		if err != nil {
			return err
		}
	}
	s.chooseFirstTurn()
	s.phase = PhasePickUpCard
	s.broadcast()
	return nil
}

func (s *Session) pickUpCard(ctx context.Context) error {
	onTurn := s.playerOnTurn()
	if onTurn.ClosedRound {
		// The closer's hand is fully known; drawing is meaningless.
		s.phase = PhaseRevealedLastCard
		s.broadcast()
		return nil
	}
	s.broadcastNotice(fmt.Sprintf("Waiting for %s to pick up a card", onTurn.Name))
	for onTurn.Cache == nil {
		_, _, err := s.broker.Await(ctx, []ActionHandler{
			{Name: ActionDrawFromStack, Handle: s.drawCardAction},
			{Name: ActionClickDiscardPile, Handle: s.takeDiscardAction},
		}, []string{onTurn.ActorID})
		if err != nil {
			return err
		}
		if s.failure != nil {
			return s.failure
		}
	}
	s.phase = PhasePlaceCard
	s.broadcast()
	return nil
}

func (s *Session) placeCard(ctx context.Context) error {
	onTurn := s.playerOnTurn()
	s.broadcastNotice(fmt.Sprintf("Waiting for %s to place a card", onTurn.Name))

	actions := []ActionHandler{{Name: ActionPlaceCard, Handle: s.placeCardAction}}
	if !onTurn.TookFromDiscard {
		// A card taken from the discard pile must be placed; only a
		// stack draw may be thrown back.
		actions = append(actions, ActionHandler{Name: ActionClickDiscardPile, Handle: s.discardCacheAction})
	}
	onTurn.TookFromDiscard = false

	// Handlers leave the phase unchanged on invalid placement, so the
	// wait repeats until the turn actually resolves.
	for s.phase == PhasePlaceCard {
		_, _, err := s.broker.Await(ctx, actions, []string{onTurn.ActorID})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) revealCard(ctx context.Context) error {
	onTurn := s.playerOnTurn()
	s.broadcastNotice(fmt.Sprintf("Waiting for %s to reveal a card", onTurn.Name))

	// One additional cell must come up; clicking an already-known cell
	// does not count.
	before := onTurn.Hand.RevealedCount()
	for onTurn.Hand.RevealedCount() <= before {
		_, _, err := s.broker.Await(ctx, []ActionHandler{
			{Name: ActionClickCard, Handle: s.revealCardAction},
		}, []string{onTurn.ActorID})
		if err != nil {
			return err
		}
	}
	s.advanceTurn()
	s.phase = PhasePickUpCard
	s.broadcast()
	return nil
}

func (s *Session) revealedLastCard() error {
	for _, p := range s.players {
		p.Hand.RevealAll()
	}
	// Columns completed by the final reveal still leave the game before
	// scoring.
	s.removeMatchedTriples()

	closer := s.closerOfRound()
	if closer == nil {
		return errors.New("game: no closer found at round end")
	}
	for _, notice := range settleRound(s.players, closer) {
		s.broadcastNotice(notice)
	}
	s.phase = PhaseNewRound
	s.broadcast()
	s.broadcastNotice("Waiting for next round")
	return nil
}

func (s *Session) nextRound(ctx context.Context) error {
	if gameOver(s.players, s.threshold) {
		assignPlaces(s.players)
		s.phase = PhaseGameEnded
		s.broadcast()
		s.broadcastNotice("Game over!")
		s.logger.Info("Game ended", "rounds", s.round)
		return nil
	}

	// Every player confirms before the cards are dealt again.
	ready := make(map[string]bool, len(s.players))
	for len(ready) < len(s.players) {
		var pending []string
		for _, p := range s.players {
			if !ready[p.ActorID] {
				pending = append(pending, p.ActorID)
			}
		}
		actorID, _, err := s.broker.Await(ctx, []ActionHandler{
			{Name: ActionNextRound, Handle: func(string, Payload) {}},
		}, pending)
		if err != nil {
			return err
		}
		ready[actorID] = true
	}

	if err := s.dealRound(); err != nil {
		return err
	}
	s.round++
	s.phase = PhaseRevealTwoCards
	s.broadcast()
	return nil
}

// Action handlers. Each runs on the Run goroutine inside a broker wait.
// Handlers validate against the live grid and leave state untouched on
// invalid input; the surrounding phase loop re-awaits.

// revealCardAction marks one of the acting player's cells as known.
func (s *Session) revealCardAction(actorID string, payload Payload) {
	p := s.playerByActor(actorID)
	if p == nil {
		s.logger.Warn("Ignoring action from actor outside the session", "actor", actorID)
		return
	}
	click, ok := payload.(ClickCard)
	if !ok || !p.Hand.InBounds(click.Column, click.Row) {
		s.logger.Warn("Ignoring reveal outside the grid",
			"player", p.Name, "column", click.Column, "row", click.Row)
		return
	}
	p.Hand.Reveal(click.Column, click.Row)
	s.logger.Debug("Card revealed", "player", p.Name, "column", click.Column, "row", click.Row)
	s.broadcast()
}

// drawCardAction caches a fresh card from the stack.
func (s *Session) drawCardAction(actorID string, _ Payload) {
	p := s.playerByActor(actorID)
	if p == nil {
		s.logger.Warn("Ignoring action from actor outside the session", "actor", actorID)
		return
	}
	c, err := s.deck.Draw()
	if err != nil {
		// Bookkeeping bug: the stack must never run dry in a reachable
		// state. Abort the session.
		s.failure = err
		return
	}
	p.Cache = &c
	s.logger.Debug("Player drew from stack", "player", p.Name)
	s.broadcast()
}

// takeDiscardAction caches the top of the discard pile.
func (s *Session) takeDiscardAction(actorID string, _ Payload) {
	p := s.playerByActor(actorID)
	if p == nil {
		s.logger.Warn("Ignoring action from actor outside the session", "actor", actorID)
		return
	}
	if len(s.discard) == 0 {
		s.logger.Warn("Ignoring take from empty discard pile", "player", p.Name)
		return
	}
	top := s.discard[len(s.discard)-1]
	s.discard = s.discard[:len(s.discard)-1]
	p.Cache = &top
	p.TookFromDiscard = true
	s.logger.Debug("Player took discard top", "player", p.Name)
	s.broadcast()
}

// placeCardAction swaps the cached card into the grid; the old occupant
// goes to the discard pile and the turn moves on.
func (s *Session) placeCardAction(actorID string, payload Payload) {
	p := s.playerByActor(actorID)
	if p == nil || p.Cache == nil {
		return
	}
	place, ok := payload.(PlaceCard)
	if !ok || !p.Hand.InBounds(place.Column, place.Row) {
		s.logger.Warn("Ignoring placement outside the grid",
			"player", p.Name, "column", place.Column, "row", place.Row)
		return
	}
	replaced := p.Hand.Replace(place.Column, place.Row, *p.Cache)
	p.Cache = nil
	s.discard = append(s.discard, replaced)
	s.logger.Debug("Card placed", "player", p.Name, "column", place.Column, "row", place.Row)
	s.advanceTurn()
	s.phase = PhasePickUpCard
	s.broadcast()
}

// discardCacheAction throws a stack-drawn card onto the pile; the player
// must reveal a cell instead.
func (s *Session) discardCacheAction(actorID string, _ Payload) {
	p := s.playerByActor(actorID)
	if p == nil || p.Cache == nil {
		return
	}
	s.discard = append(s.discard, *p.Cache)
	p.Cache = nil
	s.logger.Debug("Cached card discarded", "player", p.Name)
	s.phase = PhaseRevealCard
	s.broadcast()
}

// Helpers.

// chooseFirstTurn gives the first turn to the highest revealed sum, then
// the highest single revealed card, then a uniform random pick.
func (s *Session) chooseFirstTurn() {
	candidates := []*Player{s.players[0]}
	for _, p := range s.players[1:] {
		best := candidates[0]
		switch {
		case p.Hand.RevealedSum() > best.Hand.RevealedSum():
			candidates = []*Player{p}
		case p.Hand.RevealedSum() == best.Hand.RevealedSum():
			switch {
			case p.Hand.HighestRevealedValue() > best.Hand.HighestRevealedValue():
				candidates = []*Player{p}
			case p.Hand.HighestRevealedValue() == best.Hand.HighestRevealedValue():
				candidates = append(candidates, p)
			}
		}
	}
	chosen := candidates[s.rng.IntN(len(candidates))]
	for i, p := range s.players {
		if p == chosen {
			s.turnIndex = i
			break
		}
	}
	s.logger.Info("First turn assigned", "player", chosen.Name)
}

func (s *Session) playerOnTurn() *Player {
	return s.players[s.turnIndex]
}

func (s *Session) advanceTurn() {
	s.turnIndex = (s.turnIndex + 1) % len(s.players)
}

func (s *Session) playerByActor(actorID string) *Player {
	for _, p := range s.players {
		if p.ActorID == actorID {
			return p
		}
	}
	return nil
}

func (s *Session) closerOfRound() *Player {
	for _, p := range s.players {
		if p.ClosedRound {
			return p
		}
	}
	return nil
}

func (s *Session) broadcast() {
	s.transport.BroadcastView(s.id, s.Snapshot())
}

func (s *Session) broadcastNotice(text string) {
	s.logger.Debug("Notice", "text", text)
	s.transport.BroadcastNotice(s.id, text)
}
