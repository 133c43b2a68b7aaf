package game

// A hand starts as 4 columns of 3 cards. Columns leave the grid when a
// matched triple is removed; rows never change.
const (
	HandColumns = 4
	HandRows    = 3
)

// Triple identifies a column whose three cells are all known to the owner
// and hold the same value.
type Triple struct {
	Column int
	Value  Card
}

// Hand is one player's card grid together with the player's own knowledge
// of which cells have been revealed. The two grids always have the same
// shape; RemoveColumn shrinks them in lockstep.
type Hand struct {
	cards [][]Card // cards[column][row]
	known [][]bool
}

// NewHand deals 12 cards from the deck into a fresh, fully concealed grid.
func NewHand(d *Deck) (*Hand, error) {
	h := &Hand{
		cards: make([][]Card, HandColumns),
		known: make([][]bool, HandColumns),
	}
	for col := 0; col < HandColumns; col++ {
		h.cards[col] = make([]Card, HandRows)
		h.known[col] = make([]bool, HandRows)
		for row := 0; row < HandRows; row++ {
			c, err := d.Draw()
			if err != nil {
				return nil, err
			}
			h.cards[col][row] = c
		}
	}
	return h, nil
}

// Columns returns the current number of columns.
func (h *Hand) Columns() int {
	return len(h.cards)
}

// InBounds reports whether the cell address exists in the current grid.
func (h *Hand) InBounds(col, row int) bool {
	return col >= 0 && col < len(h.cards) && row >= 0 && row < HandRows
}

// CardAt returns the card in the cell, revealed or not.
func (h *Hand) CardAt(col, row int) Card {
	return h.cards[col][row]
}

// Known reports whether the owner has revealed the cell.
func (h *Hand) Known(col, row int) bool {
	return h.known[col][row]
}

// Reveal marks a cell as known to the owner. Revealing an already-known
// cell is a no-op; the caller decides whether that consumes an action.
func (h *Hand) Reveal(col, row int) {
	h.known[col][row] = true
}

// Replace swaps a new card into the cell, marks it known and returns the
// previous occupant.
func (h *Hand) Replace(col, row int, c Card) Card {
	old := h.cards[col][row]
	h.cards[col][row] = c
	h.known[col][row] = true
	return old
}

// RevealAll marks every cell known; used when the round is settled.
func (h *Hand) RevealAll() {
	for col := range h.known {
		for row := range h.known[col] {
			h.known[col][row] = true
		}
	}
}

// RevealedCount returns the number of known cells.
func (h *Hand) RevealedCount() int {
	n := 0
	for col := range h.known {
		for row := range h.known[col] {
			if h.known[col][row] {
				n++
			}
		}
	}
	return n
}

// RevealedSum returns the value sum over known cells only.
func (h *Hand) RevealedSum() int {
	sum := 0
	for col := range h.cards {
		for row := range h.cards[col] {
			if h.known[col][row] {
				sum += int(h.cards[col][row])
			}
		}
	}
	return sum
}

// HighestRevealedValue returns the highest known card value, or one below
// MinCardValue when nothing is revealed yet.
func (h *Hand) HighestRevealedValue() Card {
	best := MinCardValue - 1
	for col := range h.cards {
		for row := range h.cards[col] {
			if h.known[col][row] && h.cards[col][row] > best {
				best = h.cards[col][row]
			}
		}
	}
	return best
}

// HasInitialReveals reports whether the player finished the simultaneous
// reveal at round start. Only the count is checked, not which cells.
func (h *Hand) HasInitialReveals() bool {
	return h.RevealedCount() >= 2
}

// MatchedTriples scans columns independently and returns every column
// whose three cells are all known and equal. Callers must rescan after
// each RemoveColumn since indices shift.
func (h *Hand) MatchedTriples() []Triple {
	var triples []Triple
	for col := range h.cards {
		if !h.known[col][0] || !h.known[col][1] || !h.known[col][2] {
			continue
		}
		v := h.cards[col][0]
		if h.cards[col][1] == v && h.cards[col][2] == v {
			triples = append(triples, Triple{Column: col, Value: v})
		}
	}
	return triples
}

// RemoveColumn deletes the column from both grids, preserving the order of
// the remaining columns, and returns the three removed cards.
func (h *Hand) RemoveColumn(col int) []Card {
	removed := make([]Card, HandRows)
	copy(removed, h.cards[col])
	h.cards = append(h.cards[:col], h.cards[col+1:]...)
	h.known = append(h.known[:col], h.known[col+1:]...)
	return removed
}

// IsFullyKnown reports whether every remaining cell is revealed.
func (h *Hand) IsFullyKnown() bool {
	for col := range h.known {
		for row := range h.known[col] {
			if !h.known[col][row] {
				return false
			}
		}
	}
	return true
}
