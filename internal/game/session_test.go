package game

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyjohq/skyjo-server/internal/randutil"
)

// newBareSession builds a session around pre-made players, bypassing the
// dealer, so handler and rule tests control the exact grid contents.
func newBareSession(st *stubTransport, players ...*Player) *Session {
	return &Session{
		id:        "test-session",
		players:   players,
		deck:      &Deck{},
		phase:     PhasePickUpCard,
		round:     1,
		turnIndex: 0,
		transport: st,
		rng:       randutil.New(1),
		logger:    testLogger(),
		threshold: DefaultPointThreshold,
	}
}

func TestNewSessionRequiresTwoActors(t *testing.T) {
	st := newStubTransport("alice")
	b := newTestBroker(st, 0, nil)

	_, err := NewSession("s", []string{"alice"}, Config{}, b, st, randutil.New(1), testLogger())
	require.ErrorIs(t, err, ErrInsufficientPlayers)
}

func TestNewSessionDealsRound(t *testing.T) {
	st := newStubTransport("alice", "bob")
	b := newTestBroker(st, 0, nil)

	s, err := NewSession("s", []string{"alice", "bob"}, Config{}, b, st, randutil.New(1), testLogger())
	require.NoError(t, err)

	assert.Equal(t, PhaseRevealTwoCards, s.phase)
	assert.Equal(t, 1, s.round)
	assert.Equal(t, -1, s.turnIndex)
	assert.Equal(t, DefaultPointThreshold, s.threshold)

	require.Len(t, s.players, 2)
	assert.Equal(t, "Player 1", s.players[0].Name)
	assert.Equal(t, "Player 2", s.players[1].Name)
	for _, p := range s.players {
		assert.Equal(t, HandColumns, p.Hand.Columns())
		assert.Equal(t, 0, p.Hand.RevealedCount())
	}

	assert.Len(t, s.discard, 1)
	assert.Equal(t, DeckSize-2*HandColumns*HandRows-1, s.deck.Size())
}

func TestDealRoundResetsRoundState(t *testing.T) {
	st := newStubTransport("alice", "bob")
	b := newTestBroker(st, 0, nil)

	s, err := NewSession("s", []string{"alice", "bob"}, Config{}, b, st, randutil.New(1), testLogger())
	require.NoError(t, err)

	cached := Card(7)
	p := s.players[0]
	p.Cache = &cached
	p.TookFromDiscard = true
	p.ClosedRound = true
	p.RoundPoints = 33
	p.TotalPoints = 42
	s.turnIndex = 1

	require.NoError(t, s.dealRound())

	assert.Nil(t, p.Cache)
	assert.False(t, p.TookFromDiscard)
	assert.False(t, p.ClosedRound)
	assert.Equal(t, 0, p.RoundPoints)
	assert.Equal(t, 42, p.TotalPoints, "totals survive the deal")
	assert.Equal(t, -1, s.turnIndex)
	assert.Len(t, s.discard, 1)
}

func TestRemoveMatchedTriples(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf(
		[]Card{5, 5, 5},
		[]Card{1, 2, 3},
		[]Card{9, 9, 9},
	)
	h.RevealAll()
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)

	s.removeMatchedTriples()

	assert.Equal(t, 1, h.Columns())
	assert.Equal(t, Card(1), h.CardAt(0, 0))
	assert.Len(t, s.discard, 6, "both matched columns move to the discard pile")

	notices := st.noticeLog()
	require.Len(t, notices, 2)
	assert.Equal(t, "Player 1 discarded three cards of value 5!", notices[0])
	assert.Equal(t, "Player 1 discarded three cards of value 9!", notices[1])
}

func TestRemoveMatchedTriplesSkipsConcealed(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{5, 5, 5})
	h.Reveal(0, 0)
	h.Reveal(0, 1)
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)

	s.removeMatchedTriples()

	assert.Equal(t, 1, h.Columns(), "a concealed cell keeps the column in play")
	assert.Empty(t, s.discard)
}

func TestDetectRoundClosureSingleCloser(t *testing.T) {
	st := newStubTransport("alice", "bob")
	h1 := handOf([]Card{1, 2, 3})
	h1.RevealAll()
	h2 := handOf([]Card{4, 5, 6})
	h2.RevealAll()
	p1 := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h1}
	p2 := &Player{Index: 2, ActorID: "bob", Name: "Player 2", Hand: h2}
	s := newBareSession(st, p1, p2)

	s.detectRoundClosure()
	assert.True(t, p1.ClosedRound)
	assert.False(t, p2.ClosedRound, "only one player closes a round")

	// A second pass must not promote another closer.
	s.detectRoundClosure()
	assert.False(t, p2.ClosedRound)
}

func TestChooseFirstTurnHighestSum(t *testing.T) {
	st := newStubTransport("alice", "bob")
	h1 := handOf([]Card{2, 3, 0})
	h1.Reveal(0, 0)
	h1.Reveal(0, 1) // sum 5
	h2 := handOf([]Card{11, 1, 0})
	h2.Reveal(0, 0)
	h2.Reveal(0, 1) // sum 12
	p1 := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h1}
	p2 := &Player{Index: 2, ActorID: "bob", Name: "Player 2", Hand: h2}
	s := newBareSession(st, p1, p2)

	s.chooseFirstTurn()
	assert.Equal(t, 1, s.turnIndex)
}

func TestChooseFirstTurnHighestSingleBreaksTie(t *testing.T) {
	st := newStubTransport("alice", "bob")
	h1 := handOf([]Card{6, 6, 0})
	h1.Reveal(0, 0)
	h1.Reveal(0, 1) // sum 12, highest 6
	h2 := handOf([]Card{11, 1, 0})
	h2.Reveal(0, 0)
	h2.Reveal(0, 1) // sum 12, highest 11
	p1 := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h1}
	p2 := &Player{Index: 2, ActorID: "bob", Name: "Player 2", Hand: h2}
	s := newBareSession(st, p1, p2)

	s.chooseFirstTurn()
	assert.Equal(t, 1, s.turnIndex)
}

func TestChooseFirstTurnFullTiePicksRandomCandidate(t *testing.T) {
	st := newStubTransport("alice", "bob", "carol")
	mk := func(idx int, actor string) *Player {
		h := handOf([]Card{4, 8, 0})
		h.Reveal(0, 0)
		h.Reveal(0, 1)
		return &Player{Index: idx, ActorID: actor, Name: fmt.Sprintf("Player %d", idx), Hand: h}
	}
	p1, p2 := mk(1, "alice"), mk(2, "bob")
	h3 := handOf([]Card{1, 1, 0})
	h3.Reveal(0, 0)
	h3.Reveal(0, 1) // sum 2, out of the running
	p3 := &Player{Index: 3, ActorID: "carol", Name: "Player 3", Hand: h3}
	s := newBareSession(st, p1, p2, p3)

	s.chooseFirstTurn()
	assert.Contains(t, []int{0, 1}, s.turnIndex)
}

func TestRevealCardActionIgnoresUnknownActor(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)

	s.revealCardAction("mallory", ClickCard{Column: 0, Row: 0})
	assert.Equal(t, 0, h.RevealedCount())
}

func TestRevealCardActionOutOfBounds(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)

	s.revealCardAction("alice", ClickCard{Column: 5, Row: 0})
	assert.Equal(t, 0, h.RevealedCount())
}

func TestTakeDiscardActionEmptyPile(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)

	s.takeDiscardAction("alice", ClickDiscardPile{})
	assert.Nil(t, p.Cache)
	assert.False(t, p.TookFromDiscard)
}

func TestTakeDiscardActionCachesTop(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)
	s.discard = []Card{4, 9}

	s.takeDiscardAction("alice", ClickDiscardPile{})
	require.NotNil(t, p.Cache)
	assert.Equal(t, Card(9), *p.Cache)
	assert.True(t, p.TookFromDiscard)
	assert.Equal(t, []Card{4}, s.discard)
}

func TestDiscardCacheActionMovesToRevealPhase(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	cached := Card(12)
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h, Cache: &cached}
	s := newBareSession(st, p)
	s.phase = PhasePlaceCard

	s.discardCacheAction("alice", ClickDiscardPile{})
	assert.Nil(t, p.Cache)
	assert.Equal(t, []Card{12}, s.discard)
	assert.Equal(t, PhaseRevealCard, s.phase)
}

func TestPlaceCardActionSwapsAndAdvancesTurn(t *testing.T) {
	st := newStubTransport("alice", "bob")
	h1 := handOf([]Card{1, 2, 3})
	h2 := handOf([]Card{4, 5, 6})
	cached := Card(-2)
	p1 := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h1, Cache: &cached}
	p2 := &Player{Index: 2, ActorID: "bob", Name: "Player 2", Hand: h2}
	s := newBareSession(st, p1, p2)
	s.phase = PhasePlaceCard

	s.placeCardAction("alice", PlaceCard{Column: 0, Row: 1})

	assert.Nil(t, p1.Cache)
	assert.Equal(t, Card(-2), h1.CardAt(0, 1))
	assert.True(t, h1.Known(0, 1))
	assert.Equal(t, []Card{2}, s.discard, "the replaced card goes to the pile")
	assert.Equal(t, 1, s.turnIndex)
	assert.Equal(t, PhasePickUpCard, s.phase)
}

func TestPlaceCardActionOutOfBoundsKeepsPhase(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	cached := Card(-2)
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h, Cache: &cached}
	s := newBareSession(st, p)
	s.phase = PhasePlaceCard

	s.placeCardAction("alice", PlaceCard{Column: 3, Row: 0})

	assert.NotNil(t, p.Cache)
	assert.Equal(t, PhasePlaceCard, s.phase)
	assert.Empty(t, s.discard)
}

func TestDrawCardActionEmptyDeckSetsFailure(t *testing.T) {
	st := newStubTransport("alice")
	h := handOf([]Card{1, 2, 3})
	p := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h}
	s := newBareSession(st, p)

	s.drawCardAction("alice", DrawFromStack{})
	require.ErrorIs(t, s.failure, ErrEmptyDeck)
	assert.Nil(t, p.Cache)
}

func TestRunAbortsOnUnknownPhase(t *testing.T) {
	st := newStubTransport("alice", "bob")
	h1 := handOf([]Card{1, 2, 3})
	h2 := handOf([]Card{4, 5, 6})
	p1 := &Player{Index: 1, ActorID: "alice", Name: "Player 1", Hand: h1}
	p2 := &Player{Index: 2, ActorID: "bob", Name: "Player 2", Hand: h2}
	s := newBareSession(st, p1, p2)
	s.phase = Phase(42)

	err := s.Run(context.Background())
	var unknown *UnknownPhaseError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, Phase(42), unknown.Phase)
}

// TestSessionPlaysFullGame drives a complete game through the public
// surface only: a scripted client reacts to broadcast views exactly like a
// browser would, and the session runs on its own goroutine.
func TestSessionPlaysFullGame(t *testing.T) {
	actors := []string{"alice", "bob"}
	st := newStubTransport(actors...)
	b := newTestBroker(st, 0, nil)

	const threshold = 1 // settle the game after very few rounds
	s, err := NewSession("full-game", actors, Config{PointThreshold: threshold}, b, st, randutil.New(2024), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	cellPayload := func(col, row int) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{"column":%d,"row":%d}`, col, row))
	}
	firstHidden := func(pv PlayerView) (int, int, bool) {
		for col := range pv.Hand {
			for row := range pv.Hand[col] {
				if pv.Hand[col][row].Hidden {
					return col, row, true
				}
			}
		}
		return 0, 0, false
	}
	revealed := func(pv PlayerView) int {
		n := 0
		for col := range pv.Hand {
			for row := range pv.Hand[col] {
				if !pv.Hand[col][row].Hidden {
					n++
				}
			}
		}
		return n
	}
	turnPlayer := func(view *RedactedView) (int, bool) {
		for i, pv := range view.Players {
			if pv.Turn {
				return i, true
			}
		}
		return 0, false
	}

	lastDecision := ""
	fireOnce := func(decision, actor string, action ActionName, raw json.RawMessage) {
		if decision == lastDecision {
			return
		}
		lastDecision = decision
		st.fireWait(t, actor, action, raw)
	}

	pendingReveal := false
	drive := func(view *RedactedView) {
		switch view.Phase {
		case PhaseRevealTwoCards.String():
			for i, pv := range view.Players {
				if revealed(pv) < 2 {
					col, row, ok := firstHidden(pv)
					require.True(t, ok)
					fireOnce(fmt.Sprintf("initial:%s:%d:%d", actors[i], col, row),
						actors[i], ActionClickCard, cellPayload(col, row))
					return
				}
			}

		case PhasePickUpCard.String():
			i, ok := turnPlayer(view)
			if !ok {
				return
			}
			pv := view.Players[i]
			if pv.Cache == nil && !pv.ClosedRound {
				fireOnce("draw:"+actors[i], actors[i], ActionDrawFromStack, nil)
			}

		case PhasePlaceCard.String():
			i, ok := turnPlayer(view)
			require.True(t, ok)
			if view.Players[i].Cache != nil {
				fireOnce("toss:"+actors[i], actors[i], ActionClickDiscardPile, nil)
				pendingReveal = true
			}

		case PhaseRevealCard.String():
			if !pendingReveal {
				return
			}
			pendingReveal = false
			i, ok := turnPlayer(view)
			require.True(t, ok)
			col, row, ok := firstHidden(view.Players[i])
			require.True(t, ok, "reveal demanded with no concealed cell")
			st.fireWait(t, actors[i], ActionClickCard, cellPayload(col, row))
			lastDecision = "reveal:" + actors[i]

		case PhaseNewRound.String():
			for _, pv := range view.Players {
				if pv.TotalPoints >= threshold {
					return // the session ends the game instead of dealing
				}
			}
			for _, actor := range actors {
				st.fireWait(t, actor, ActionNextRound, nil)
			}
			lastDecision = ""
		}
	}

	var final *RedactedView
loop:
	for {
		select {
		case view := <-st.views:
			if view.Phase == PhaseGameEnded.String() {
				final = view
				break loop
			}
			drive(view)
		case err := <-runErr:
			t.Fatalf("session ended prematurely: %v", err)
		case <-ctx.Done():
			t.Fatal("game did not finish in time")
		}
	}

	require.NoError(t, <-runErr)
	require.NotNil(t, final)

	winners := 0
	for _, pv := range final.Players {
		if pv.Place == 1 {
			winners++
		}
	}
	assert.GreaterOrEqual(t, winners, 1, "at least one player takes first place")

	// Every one of the 150 cards is accounted for at the end.
	total := s.deck.Size() + len(s.discard)
	for _, p := range s.players {
		total += p.Hand.Columns() * HandRows
	}
	assert.Equal(t, DeckSize, total)
	assert.Equal(t, PhaseGameEnded, s.phase)
}
