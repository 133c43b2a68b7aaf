package game

import rand "math/rand/v2"

// DeckSize is the fixed population: 5x(-2), 10x(-1), 15x0 and 10x each of
// 1 through 12.
const DeckSize = 150

// Deck holds the face-down stack for a round.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck returns the full population in ascending value runs. Generation
// is deterministic; call Shuffle before dealing.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, 0, DeckSize), rng: rng}
	run := func(v Card, n int) {
		for i := 0; i < n; i++ {
			d.cards = append(d.cards, v)
		}
	}
	run(-2, 5)
	run(-1, 10)
	run(0, 15)
	for v := Card(1); v <= MaxCardValue; v++ {
		run(v, 10)
	}
	return d
}

// Shuffle applies a Fisher-Yates permutation over the whole stack.
func (d *Deck) Shuffle() {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the top (last) card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return 0, ErrEmptyDeck
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

// Size returns the number of cards left in the stack.
func (d *Deck) Size() int {
	return len(d.cards)
}
