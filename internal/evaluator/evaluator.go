// Package evaluator wraps hand-strength evaluation behind a small
// interface so the game engine can be tested with deterministic fakes.
package evaluator

import (
	"github.com/chehsunliu/poker"

	"github.com/ATC-UW/pokerden-engine/internal/deck"
)

// Evaluator totally orders 5-7 card combinations by poker strength.
// Higher return values are stronger hands.
type Evaluator interface {
	Rank(cards []deck.Card) int
}

// HandDescriber is optionally implemented by evaluators that can name the
// best hand class, for showdown log output.
type HandDescriber interface {
	Describe(cards []deck.Card) string
}

// worstRank is the weakest score chehsunliu/poker produces (7-5-4-3-2
// offsuit). Its scale is lower-is-better, so we invert against it.
const worstRank = 7462

// Chehsunliu evaluates hands with the chehsunliu/poker lookup tables.
type Chehsunliu struct{}

// New returns the production evaluator.
func New() Chehsunliu {
	return Chehsunliu{}
}

// Rank implements Evaluator. It panics on cards that cannot be converted;
// every card reaching here comes from our own deck, so a failure is a
// programmer error rather than an input condition.
func (Chehsunliu) Rank(cards []deck.Card) int {
	converted := make([]poker.Card, len(cards))
	for i, c := range cards {
		converted[i] = poker.NewCard(c.String())
	}
	return worstRank - int(poker.Evaluate(converted))
}

// Describe returns the human-readable class of the best hand, e.g.
// "Straight Flush". Used for log output only.
func (Chehsunliu) Describe(cards []deck.Card) string {
	converted := make([]poker.Card, len(cards))
	for i, c := range cards {
		converted[i] = poker.NewCard(c.String())
	}
	return poker.RankString(poker.Evaluate(converted))
}
