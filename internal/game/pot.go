package game

import "sort"

// Pot is a portion of the total wager with a specific eligibility set.
// Index 0 in a pot list is the main pot; higher indices are side pots
// created by all-ins.
type Pot struct {
	Amount   int
	Eligible []PlayerID
}

// clonePots deep-copies a pot list so snapshots stay immutable.
func clonePots(pots []Pot) []Pot {
	out := make([]Pot, len(pots))
	for i, p := range pots {
		out[i] = Pot{Amount: p.Amount, Eligible: append([]PlayerID(nil), p.Eligible...)}
	}
	return out
}

// DerivePots computes the pot structure from per-player contributions and
// the fold set. It is a pure function, called after every applied action so
// the external view is always current.
//
// The derivation walks the distinct positive contribution levels in
// ascending order. Each level slice is funded by every player who reached
// it (folded players included, so chips are conserved), but only non-folded
// players are eligible to win it.
func DerivePots(contributions map[PlayerID]int, folded map[PlayerID]bool) []Pot {
	levels := make([]int, 0, len(contributions))
	seen := make(map[int]bool, len(contributions))
	for _, amount := range contributions {
		if amount > 0 && !seen[amount] {
			seen[amount] = true
			levels = append(levels, amount)
		}
	}
	sort.Ints(levels)

	if len(levels) == 0 {
		// No chips in yet: a single empty pot covering all non-folded players.
		return []Pot{{Amount: 0, Eligible: sortedPlayers(contributions, folded, 0)}}
	}

	pots := make([]Pot, 0, len(levels))
	prev := 0
	for _, level := range levels {
		funders := 0
		for _, amount := range contributions {
			if amount >= level {
				funders++
			}
		}

		pot := Pot{
			Amount:   (level - prev) * funders,
			Eligible: sortedPlayers(contributions, folded, level),
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}

	if len(pots) == 0 {
		return []Pot{{Amount: 0, Eligible: sortedPlayers(contributions, folded, 0)}}
	}
	return pots
}

// sortedPlayers returns the non-folded players whose contribution is at
// least threshold, in ascending id order for deterministic output.
func sortedPlayers(contributions map[PlayerID]int, folded map[PlayerID]bool, threshold int) []PlayerID {
	var out []PlayerID
	for player, amount := range contributions {
		if folded[player] {
			continue
		}
		if amount >= threshold {
			out = append(out, player)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// potTotal sums the amounts across a pot list.
func potTotal(pots []Pot) int {
	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	return total
}
