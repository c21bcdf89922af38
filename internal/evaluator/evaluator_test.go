package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ATC-UW/pokerden-engine/internal/deck"
)

func cards(tags ...string) []deck.Card {
	out := make([]deck.Card, len(tags))
	for i, tag := range tags {
		out[i] = deck.MustParse(tag)
	}
	return out
}

func TestRankOrdering(t *testing.T) {
	ev := New()

	straightFlush := ev.Rank(cards("As", "Ks", "Qs", "Js", "Ts"))
	quads := ev.Rank(cards("Ah", "Ad", "Ac", "As", "2d"))
	pair := ev.Rank(cards("Ah", "Ad", "7c", "5s", "2d"))
	highCard := ev.Rank(cards("7h", "5d", "4c", "3s", "2d"))

	assert.Greater(t, straightFlush, quads)
	assert.Greater(t, quads, pair)
	assert.Greater(t, pair, highCard)
	assert.Zero(t, highCard, "worst possible hand ranks zero")
}

func TestRankSevenCards(t *testing.T) {
	ev := New()

	// Board 2h 3s 4d 7c 9h: aces beat kings beat queen-high.
	board := cards("2h", "3s", "4d", "7c", "9h")
	aces := ev.Rank(append(cards("As", "Ad"), board...))
	kings := ev.Rank(append(cards("Ks", "Kd"), board...))
	queenHigh := ev.Rank(append(cards("Qh", "Jc"), board...))

	assert.Greater(t, aces, kings)
	assert.Greater(t, kings, queenHigh)
}

func TestRankTieIsExact(t *testing.T) {
	ev := New()

	// Same hand class and kickers from disjoint suits must tie exactly.
	a := ev.Rank(cards("Ah", "Kh", "Qd", "Js", "9c"))
	b := ev.Rank(cards("Ad", "Kc", "Qs", "Jh", "9d"))
	assert.Equal(t, a, b)
}
