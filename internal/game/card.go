package game

import "strconv"

// Card is a single Skyjo card. Only the value matters for gameplay; the
// colour is a pure function of the value and exists for client rendering.
type Card int

const (
	MinCardValue Card = -2
	MaxCardValue Card = 12
)

// Rendering buckets, monotonic by value. Black is reserved for concealed
// cells and never appears on a face-up card.
const (
	ColorConcealed = "black"
	ColorDarkBlue  = "darkblue"
	ColorLightBlue = "lightblue"
	ColorGreen     = "green"
	ColorYellow    = "yellow"
	ColorRed       = "red"
)

// Valid reports whether the card holds a value that exists in the game.
func (c Card) Valid() bool {
	return c >= MinCardValue && c <= MaxCardValue
}

// Color returns the rendering bucket for the card value.
func (c Card) Color() string {
	switch {
	case c < 0:
		return ColorDarkBlue
	case c == 0:
		return ColorLightBlue
	case c <= 4:
		return ColorGreen
	case c <= 8:
		return ColorYellow
	default:
		return ColorRed
	}
}

func (c Card) String() string {
	return strconv.Itoa(int(c))
}
