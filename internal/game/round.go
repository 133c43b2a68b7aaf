package game

import (
	"fmt"
	"strings"
)

// DefaultPointThreshold ends the game once any player's total reaches it.
const DefaultPointThreshold = 100

// recomputeRoundPoints sets every player's round points to the sum of
// their revealed cards. Pure and idempotent; runs on every broadcast.
func recomputeRoundPoints(players []*Player) {
	for _, p := range players {
		p.RoundPoints = p.Hand.RevealedSum()
	}
}

// lowestScorers returns all players tied at the minimum round points.
func lowestScorers(players []*Player) []*Player {
	lowest := players[0].RoundPoints
	for _, p := range players[1:] {
		if p.RoundPoints < lowest {
			lowest = p.RoundPoints
		}
	}
	var result []*Player
	for _, p := range players {
		if p.RoundPoints == lowest {
			result = append(result, p)
		}
	}
	return result
}

// settleRound folds round points into the totals. The closer escapes the
// penalty only as the unique lowest scorer; otherwise their round points
// count double. Returns the outcome notices to broadcast.
func settleRound(players []*Player, closer *Player) []string {
	recomputeRoundPoints(players)
	lowest := lowestScorers(players)
	soleLowestCloser := len(lowest) == 1 && lowest[0] == closer

	var notices []string
	switch {
	case soleLowestCloser:
		notices = append(notices, fmt.Sprintf("%s won the round!", closer.Name))
	case len(lowest) == 1:
		notices = append(notices, fmt.Sprintf("%s won the round!", lowest[0].Name))
	default:
		names := make([]string, len(lowest))
		for i, p := range lowest {
			names[i] = p.Name
		}
		notices = append(notices, fmt.Sprintf("%s scored equally the lowest points!", strings.Join(names, ", ")))
	}

	for _, p := range players {
		if p == closer && !soleLowestCloser {
			p.TotalPoints += p.RoundPoints * 2
		} else {
			p.TotalPoints += p.RoundPoints
		}
	}
	if !soleLowestCloser {
		notices = append(notices, fmt.Sprintf("%s failed to close the round, points are doubled!", closer.Name))
	}
	return notices
}

// gameOver reports whether any player's total reached the threshold.
func gameOver(players []*Player, threshold int) bool {
	for _, p := range players {
		if p.TotalPoints >= threshold {
			return true
		}
	}
	return false
}

// assignPlaces marks the players with the lowest total as winners. Only
// first place is ever recorded.
func assignPlaces(players []*Player) {
	lowest := players[0].TotalPoints
	for _, p := range players[1:] {
		if p.TotalPoints < lowest {
			lowest = p.TotalPoints
		}
	}
	for _, p := range players {
		if p.TotalPoints == lowest {
			p.Place = 1
		}
	}
}
