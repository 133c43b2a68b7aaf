package game

// Cell is one grid position in the broadcast view. Concealed cells carry
// no value. The same projection goes to every viewer, including the cell's
// owner: a player learns their own cards only through their local record
// of which cells they clicked.
type Cell struct {
	Hidden bool   `json:"hidden,omitempty"`
	Value  *int   `json:"value,omitempty"`
	Color  string `json:"color"`
}

// CardView renders an always-visible card (discard pile, cache).
type CardView struct {
	Value int    `json:"value"`
	Color string `json:"color"`
}

// PlayerView is one player's slice of the broadcast.
type PlayerView struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Turn            bool      `json:"turn"`
	Cache           *CardView `json:"cache,omitempty"`
	TookFromDiscard bool      `json:"tookFromDiscard"`
	ClosedRound     bool      `json:"closedRound"`
	RoundPoints     int       `json:"roundPoints"`
	TotalPoints     int       `json:"totalPoints"`
	Place           int       `json:"place,omitempty"`
	Hand            [][]Cell  `json:"hand"`
}

// RedactedView is the state snapshot broadcast to the whole session.
// Every unrevealed hand cell and the whole face-down stack are concealed
// unconditionally, regardless of viewer.
type RedactedView struct {
	SessionID   string       `json:"sessionId"`
	Round       int          `json:"round"`
	Phase       string       `json:"phase"`
	DiscardPile []CardView   `json:"discardPile"`
	StackSize   int          `json:"stackSize"`
	Players     []PlayerView `json:"players"`
}

func cardView(c Card) CardView {
	return CardView{Value: int(c), Color: c.Color()}
}

// Snapshot builds the redacted view of the current session state. Round
// points are recomputed first so the view never lags a reveal.
func (s *Session) Snapshot() *RedactedView {
	recomputeRoundPoints(s.players)
	view := &RedactedView{
		SessionID:   s.id,
		Round:       s.round,
		Phase:       s.phase.String(),
		DiscardPile: make([]CardView, 0, len(s.discard)),
		StackSize:   s.deck.Size(),
		Players:     make([]PlayerView, 0, len(s.players)),
	}
	for _, c := range s.discard {
		view.DiscardPile = append(view.DiscardPile, cardView(c))
	}
	for i, p := range s.players {
		pv := PlayerView{
			ID:              p.Index,
			Name:            p.Name,
			Turn:            i == s.turnIndex,
			TookFromDiscard: p.TookFromDiscard,
			ClosedRound:     p.ClosedRound,
			RoundPoints:     p.RoundPoints,
			TotalPoints:     p.TotalPoints,
			Place:           p.Place,
			Hand:            make([][]Cell, p.Hand.Columns()),
		}
		if p.Cache != nil {
			cv := cardView(*p.Cache)
			pv.Cache = &cv
		}
		for col := 0; col < p.Hand.Columns(); col++ {
			cells := make([]Cell, HandRows)
			for row := 0; row < HandRows; row++ {
				if p.Hand.Known(col, row) {
					v := int(p.Hand.CardAt(col, row))
					cells[row] = Cell{Value: &v, Color: p.Hand.CardAt(col, row).Color()}
				} else {
					cells[row] = Cell{Hidden: true, Color: ColorConcealed}
				}
			}
			pv.Hand[col] = cells
		}
		view.Players = append(view.Players, pv)
	}
	return view
}
