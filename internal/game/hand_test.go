package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ATC-UW/pokerden-engine/internal/deck"
	"github.com/ATC-UW/pokerden-engine/internal/evaluator"
	"github.com/ATC-UW/pokerden-engine/internal/randutil"
)

// stack builds a stacked deck from card tags.
func stack(tags ...string) *deck.Deck {
	cards := make([]deck.Card, len(tags))
	for i, tag := range tags {
		cards[i] = deck.MustParse(tag)
	}
	return deck.Stacked(cards)
}

// startedHand creates and starts a hand over players 1..n.
func startedHand(t *testing.T, n int, blind int, opts ...HandOption) *Hand {
	t.Helper()
	h := NewHand(evaluator.New(), randutil.New(1), blind, opts...)
	for i := 1; i <= n; i++ {
		h.AddPlayer(PlayerID(i))
	}
	require.NoError(t, h.Start())
	return h
}

// checkDown has every remaining actor check the current round out.
func checkDown(t *testing.T, h *Hand) {
	t.Helper()
	for !h.RoundComplete() {
		queue := h.ActorQueue()
		require.NotEmpty(t, queue)
		require.NoError(t, h.Apply(queue[0], Action{Kind: Check}))
	}
}

// nextRound archives the completed round and deals the next street.
func nextRound(t *testing.T, h *Hand) {
	t.Helper()
	require.NoError(t, h.EndRound())
	require.NoError(t, h.StartRound())
}

func finish(t *testing.T, h *Hand) {
	t.Helper()
	require.NoError(t, h.EndRound())
	require.NoError(t, h.EndHand())
}

func assertZeroSum(t *testing.T, scores map[PlayerID]int) {
	t.Helper()
	total := 0
	for _, s := range scores {
		total += s
	}
	assert.Zero(t, total, "scores must be zero-sum: %v", scores)
}

func TestBlindAssignment(t *testing.T) {
	t.Run("three players", func(t *testing.T) {
		h := startedHand(t, 3, 10)
		assert.Equal(t, PlayerID(2), h.SmallBlind())
		assert.Equal(t, PlayerID(3), h.BigBlind())
	})

	t.Run("three players button 2", func(t *testing.T) {
		h := NewHand(evaluator.New(), randutil.New(1), 10)
		for i := 1; i <= 3; i++ {
			h.AddPlayer(PlayerID(i))
		}
		h.SetDealerButton(2)
		require.NoError(t, h.Start())
		assert.Equal(t, PlayerID(1), h.SmallBlind())
		assert.Equal(t, PlayerID(2), h.BigBlind())
	})

	t.Run("heads-up button is small blind", func(t *testing.T) {
		h := startedHand(t, 2, 10)
		assert.Equal(t, PlayerID(1), h.SmallBlind())
		assert.Equal(t, PlayerID(2), h.BigBlind())
	})
}

func TestActorQueueOrder(t *testing.T) {
	h := startedHand(t, 3, 10)

	// Preflop with button at seat 0: action starts left of the button.
	assert.Equal(t, []PlayerID{2, 3, 1}, h.ActorQueue())

	checkDown(t, h)
	nextRound(t, h)

	// Postflop: same starting seat.
	assert.Equal(t, []PlayerID{2, 3, 1}, h.ActorQueue())
}

func TestActorQueueHeadsUpPreflop(t *testing.T) {
	h := startedHand(t, 2, 10)
	// Heads-up preflop the button (small blind) acts first.
	assert.Equal(t, []PlayerID{1, 2}, h.ActorQueue())
}

func TestBoardProgression(t *testing.T) {
	h := startedHand(t, 2, 10)
	assert.Empty(t, h.Board())

	checkDown(t, h)
	nextRound(t, h)
	assert.Len(t, h.Board(), 3)
	assert.Equal(t, Flop, h.CurrentRound())

	checkDown(t, h)
	nextRound(t, h)
	assert.Len(t, h.Board(), 4)

	checkDown(t, h)
	nextRound(t, h)
	assert.Len(t, h.Board(), 5)
	assert.Equal(t, River, h.CurrentRound())
}

func TestStateTransitionErrors(t *testing.T) {
	h := startedHand(t, 2, 10)

	require.Error(t, h.EndRound(), "round not complete")
	require.Error(t, h.StartRound(), "round not complete")

	checkDown(t, h)
	require.Error(t, h.StartRound(), "round must be ended first")
	require.NoError(t, h.EndRound())
	require.Error(t, h.EndRound(), "round already ended")

	for i := 0; i < 3; i++ {
		require.NoError(t, h.StartRound())
		checkDown(t, h)
		require.NoError(t, h.EndRound())
	}
	require.Error(t, h.StartRound(), "no rounds past the river")
}

// Scenario: three players check every street; nobody wins or loses.
func TestHandAllChecks(t *testing.T) {
	h := startedHand(t, 3, 10)

	for round := 0; round < 4; round++ {
		checkDown(t, h)
		if round < 3 {
			nextRound(t, h)
		}
	}
	require.True(t, h.Over())
	finish(t, h)

	assert.Equal(t, map[PlayerID]int{1: 0, 2: 0, 3: 0}, h.Scores())
	assert.Len(t, h.Board(), 5)
}

// Scenario: heads-up, p1 folds preflop with nothing contributed.
func TestHandHeadsUpFoldNoBlinds(t *testing.T) {
	h := startedHand(t, 2, 10)

	require.NoError(t, h.Apply(1, Action{Kind: Fold}))
	require.True(t, h.Over())
	require.NoError(t, h.EndHand())

	assert.Equal(t, map[PlayerID]int{1: 0, 2: 0}, h.Scores())
	assertZeroSum(t, h.Scores())
}

// Scenario: heads-up with posted blinds, p1 folds; p2 collects the small
// blind.
func TestHandHeadsUpFoldWithBlinds(t *testing.T) {
	h := startedHand(t, 2, 10)

	// Button (p1) posts the small blind, p2 the big blind.
	require.NoError(t, h.PostBlinds())
	require.NoError(t, h.Apply(1, Action{Kind: Fold}))
	require.True(t, h.Over())
	require.NoError(t, h.EndHand())

	assert.Equal(t, map[PlayerID]int{1: -5, 2: 5}, h.Scores())
	assertZeroSum(t, h.Scores())
}

// Scenario: simple side pot. p1 is all-in short with aces and wins only the
// main pot.
func TestHandSimpleSidePot(t *testing.T) {
	d := stack(
		"As", "Ad", // p1
		"Ks", "Kd", // p2
		"Qh", "Jc", // p3
		"5c", "2h", "3s", "4d", // burn + flop
		"6c", "7c", // burn + turn
		"8s", "9h", // burn + river
	)
	h := startedHand(t, 3, 10, WithStackedDeck(d))

	require.NoError(t, h.Apply(1, Action{Kind: AllIn, Amount: 50}))
	require.NoError(t, h.Apply(2, Action{Kind: Raise, Amount: 100}))
	require.NoError(t, h.Apply(3, Action{Kind: Call}))
	require.True(t, h.RoundComplete())

	pots := h.GameState().SidePots
	require.Len(t, pots, 2)
	assert.Equal(t, Pot{Amount: 150, Eligible: []PlayerID{1, 2, 3}}, pots[0])
	assert.Equal(t, Pot{Amount: 100, Eligible: []PlayerID{2, 3}}, pots[1])

	for round := 1; round < 4; round++ {
		nextRound(t, h)
		checkDown(t, h)
	}
	finish(t, h)

	assert.Equal(t, map[PlayerID]int{1: 100, 2: 0, 3: -100}, h.Scores())
	assertZeroSum(t, h.Scores())
}

// Scenario: multi-level side pots with four all-in tiers.
func TestHandMultiLevelSidePots(t *testing.T) {
	d := stack(
		"As", "Ah", // p1
		"Ks", "Kh", // p2
		"Qs", "Qc", // p3
		"Jh", "Td", // p4
		"5c", "2h", "3s", "4d", // burn + flop
		"6c", "7c", // burn + turn
		"8s", "9h", // burn + river
	)
	h := startedHand(t, 4, 10, WithStackedDeck(d))

	require.NoError(t, h.Apply(1, Action{Kind: AllIn, Amount: 30}))
	require.NoError(t, h.Apply(2, Action{Kind: AllIn, Amount: 60}))
	require.NoError(t, h.Apply(3, Action{Kind: AllIn, Amount: 90}))
	require.NoError(t, h.Apply(4, Action{Kind: Call}))
	require.True(t, h.RoundComplete())

	pots := h.GameState().SidePots
	require.Len(t, pots, 3)
	assert.Equal(t, 120, pots[0].Amount)
	assert.Equal(t, 90, pots[1].Amount)
	assert.Equal(t, 60, pots[2].Amount)

	// Only p4 can still act; the all-ins carry across streets.
	for round := 1; round < 4; round++ {
		nextRound(t, h)
		assert.Equal(t, []PlayerID{4}, h.ActorQueue())
		checkDown(t, h)
	}
	finish(t, h)

	assert.Equal(t, map[PlayerID]int{1: 90, 2: 30, 3: -30, 4: -90}, h.Scores())
	assertZeroSum(t, h.Scores())
}

// Scenario: equal bets form a single pot; the best hand takes it all.
func TestHandEqualBetsSinglePot(t *testing.T) {
	d := stack(
		"Kh", "Qd", // p1
		"As", "Ah", // p2
		"Tc", "8d", // p3
		"5c", "2h", "3s", "4d", // burn + flop
		"6c", "7c", // burn + turn
		"8s", "9h", // burn + river
	)
	h := startedHand(t, 3, 10, WithStackedDeck(d))

	require.NoError(t, h.Apply(1, Action{Kind: Raise, Amount: 50}))
	require.NoError(t, h.Apply(2, Action{Kind: Call}))
	require.NoError(t, h.Apply(3, Action{Kind: Call}))
	require.True(t, h.RoundComplete())

	pots := h.GameState().SidePots
	require.Len(t, pots, 1)
	assert.Equal(t, Pot{Amount: 150, Eligible: []PlayerID{1, 2, 3}}, pots[0])

	for round := 1; round < 4; round++ {
		nextRound(t, h)
		checkDown(t, h)
	}
	finish(t, h)

	assert.Equal(t, map[PlayerID]int{1: -50, 2: 100, 3: -50}, h.Scores())
	assertZeroSum(t, h.Scores())
}

func TestHandTieSplitsWithRemainder(t *testing.T) {
	// p1 and p2 both play the board's broadway straight. p3's single chip
	// makes the lower pot odd, so the tie split leaves a remainder that
	// goes to the first tied winner in seat order.
	d := stack(
		"2c", "2d", // p1
		"3c", "3d", // p2
		"2h", "2s", // p3
		"5c", "Ah", "Ks", "Qd", // burn + flop
		"6c", "Jc", // burn + turn
		"8s", "Th", // burn + river
	)
	h := startedHand(t, 3, 10, WithStackedDeck(d))

	require.NoError(t, h.Apply(3, Action{Kind: Raise, Amount: 1}))
	require.NoError(t, h.Apply(1, Action{Kind: Raise, Amount: 75}))
	require.NoError(t, h.Apply(2, Action{Kind: Call}))
	require.NoError(t, h.Apply(3, Action{Kind: Fold}))
	require.True(t, h.RoundComplete())

	for round := 1; round < 4; round++ {
		nextRound(t, h)
		checkDown(t, h)
	}
	finish(t, h)

	// Pot of 3 (with p3's dead chip) splits 2/1, pot of 148 splits 74/74.
	scores := h.Scores()
	assertZeroSum(t, scores)
	assert.Equal(t, 1, scores[1], "first tied winner receives the remainder")
	assert.Equal(t, 0, scores[2])
	assert.Equal(t, -1, scores[3])
}

func TestAllInCarriesAcrossRounds(t *testing.T) {
	h := startedHand(t, 3, 10)

	require.NoError(t, h.Apply(1, Action{Kind: AllIn, Amount: 20}))
	require.NoError(t, h.Apply(2, Action{Kind: Call}))
	require.NoError(t, h.Apply(3, Action{Kind: Call}))
	nextRound(t, h)

	// p1 owes nothing on later streets and any stray action is absorbed.
	assert.NotContains(t, h.ActorQueue(), PlayerID(1))
	require.NoError(t, h.Apply(1, Action{Kind: Raise, Amount: 500}))
	assert.Equal(t, 0, h.GameState().PlayerBets[1])
	assert.Equal(t, "allin", h.GameState().PlayerActions[1])
}

func TestAllRemainingAllIn(t *testing.T) {
	h := startedHand(t, 2, 10)
	assert.False(t, h.AllRemainingAllIn())

	require.NoError(t, h.Apply(1, Action{Kind: AllIn, Amount: 100}))
	assert.False(t, h.AllRemainingAllIn(), "player 2 can still act")

	require.NoError(t, h.Apply(2, Action{Kind: AllIn, Amount: 100}))
	require.True(t, h.RoundComplete())
	assert.True(t, h.AllRemainingAllIn())

	// The remaining streets deal without anyone owing an action.
	for round := 1; round < 4; round++ {
		nextRound(t, h)
		assert.True(t, h.RoundComplete())
		assert.Empty(t, h.ActorQueue())
	}
	require.True(t, h.Over())
	finish(t, h)
	assertZeroSum(t, h.Scores())
}

func TestHandDeterminism(t *testing.T) {
	play := func() *Hand {
		h := NewHand(evaluator.New(), randutil.New(1234), 10)
		for i := 1; i <= 3; i++ {
			h.AddPlayer(PlayerID(i))
		}
		require.NoError(t, h.Start())

		require.NoError(t, h.Apply(2, Action{Kind: Raise, Amount: 40}))
		require.NoError(t, h.Apply(3, Action{Kind: Call}))
		require.NoError(t, h.Apply(1, Action{Kind: Call}))
		for round := 1; round < 4; round++ {
			nextRound(t, h)
			checkDown(t, h)
		}
		finish(t, h)
		return h
	}

	a, b := play(), play()
	assert.Equal(t, a.Board(), b.Board())
	assert.Equal(t, a.Scores(), b.Scores())
	assert.Equal(t, a.GameState().SidePots, b.GameState().SidePots)
}

func TestGameStateView(t *testing.T) {
	h := startedHand(t, 3, 10)

	require.NoError(t, h.Apply(2, Action{Kind: Raise, Amount: 30}))

	st := h.GameState()
	assert.Equal(t, 0, st.RoundNum)
	assert.Equal(t, "Preflop", st.Round)
	assert.Empty(t, st.CommunityCards)
	assert.Equal(t, 30, st.Pot)
	assert.Equal(t, 30, st.CurrentBet)
	assert.Equal(t, 30, st.MinRaise)
	assert.Equal(t, 60, st.MaxRaise)
	assert.Equal(t, "raise", st.PlayerActions[2])
	assert.ElementsMatch(t, []PlayerID{1, 3}, st.CurrentPlayers)
	assert.Equal(t, 30, st.PlayerBets[2])
}
