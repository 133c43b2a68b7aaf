package game

// Player is one participant in a session. Identity and TotalPoints persist
// across rounds; everything else is rebuilt when a round is dealt.
type Player struct {
	Index   int    // stable per-session seat, 1-based
	ActorID string // transport identity
	Name    string

	Hand            *Hand
	Cache           *Card // held between pick-up and place, never more than one
	TookFromDiscard bool  // restricts placement options for this turn
	RoundPoints     int
	TotalPoints     int
	ClosedRound     bool
	Place           int // final standing, 0 until the game ends
}
