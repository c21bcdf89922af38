package game

import (
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/ATC-UW/pokerden-engine/internal/deck"
	"github.com/ATC-UW/pokerden-engine/internal/evaluator"
)

// Round enumerates the four betting rounds in order.
type Round int

const (
	Preflop Round = iota
	Flop
	Turn
	River
)

// numRounds is the number of betting rounds in a hand.
const numRounds = 4

// String returns the wire name of the round.
func (r Round) String() string {
	switch r {
	case Preflop:
		return "Preflop"
	case Flop:
		return "Flop"
	case Turn:
		return "Turn"
	case River:
		return "River"
	default:
		return "Unstarted"
	}
}

// roundArchive is the completed-round snapshot kept for log output and
// cumulative pot accounting.
type roundArchive struct {
	pot           int
	contributions map[PlayerID]int
	actions       map[PlayerID]ActionKind
	actionTimes   map[PlayerID]int64
	history       []ActionRecord
	finalPots     []Pot
	folded        map[PlayerID]bool
}

// State is the read-only view of a hand broadcast to every client.
type State struct {
	RoundNum       int
	Round          string
	CommunityCards []string
	Pot            int
	CurrentPlayers []PlayerID
	CurrentBet     int
	PlayerBets     map[PlayerID]int
	PlayerActions  map[PlayerID]string
	MinRaise       int
	MaxRaise       int
	SidePots       []Pot
}

// Hand composes four betting rounds into a single poker hand: hole cards,
// community board, blind assignment, and showdown payout.
type Hand struct {
	eval  evaluator.Evaluator
	rng   *rand.Rand
	clock quartz.Clock

	players []PlayerID
	active  []PlayerID
	hole    map[PlayerID][]deck.Card
	board   []deck.Card

	deck       *deck.Deck
	roundIndex int
	current    *RoundState
	archives   map[int]*roundArchive

	button      int
	blindAmount int
	smallBlind  PlayerID
	bigBlind    PlayerID

	score     map[PlayerID]int
	stacked   *deck.Deck
	running   bool
	id        string
	sequence  int
	startTime time.Time
}

// HandOption configures hand construction.
type HandOption func(*Hand)

// WithClock injects a clock for deterministic action timestamps.
func WithClock(clock quartz.Clock) HandOption {
	return func(h *Hand) { h.clock = clock }
}

// WithID pins the hand id instead of generating a fresh UUID. Used when a
// simulation shares one id across its hand logs.
func WithID(id string) HandOption {
	return func(h *Hand) { h.id = id }
}

// WithSequence records the hand's position within a session, used in the
// log filename.
func WithSequence(n int) HandOption {
	return func(h *Hand) { h.sequence = n }
}

// WithStackedDeck makes Start use the given deck as-is instead of
// shuffling a fresh one. For deterministic tests.
func WithStackedDeck(d *deck.Deck) HandOption {
	return func(h *Hand) { h.stacked = d }
}

// NewHand creates a hand bound to an evaluator, a deck RNG, and the blind
// amount. Players are added before Start.
func NewHand(eval evaluator.Evaluator, rng *rand.Rand, blindAmount int, opts ...HandOption) *Hand {
	h := &Hand{
		eval:        eval,
		rng:         rng,
		clock:       quartz.NewReal(),
		hole:        make(map[PlayerID][]deck.Card),
		archives:    make(map[int]*roundArchive),
		roundIndex:  -1,
		blindAmount: blindAmount,
		score:       make(map[PlayerID]int),
		sequence:    -1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddPlayer appends a player to the hand. Must be called before Start.
func (h *Hand) AddPlayer(p PlayerID) {
	h.players = append(h.players, p)
	h.active = append(h.active, p)
}

// SetDealerButton positions the dealer button as an index into the player
// list. Must be called before Start.
func (h *Hand) SetDealerButton(i int) {
	h.button = i
}

// ID returns the hand id, assigned at Start when not pinned.
func (h *Hand) ID() string { return h.id }

// Sequence returns the hand's position within the session, or -1.
func (h *Hand) Sequence() int { return h.sequence }

// Players returns the fixed player list in seat order.
func (h *Hand) Players() []PlayerID {
	return append([]PlayerID(nil), h.players...)
}

// Active returns the players who have not folded.
func (h *Hand) Active() []PlayerID {
	return append([]PlayerID(nil), h.active...)
}

// SmallBlind returns the small-blind player for this hand.
func (h *Hand) SmallBlind() PlayerID { return h.smallBlind }

// BigBlind returns the big-blind player for this hand.
func (h *Hand) BigBlind() PlayerID { return h.bigBlind }

// BlindAmount returns the big-blind size; the small blind is half.
func (h *Hand) BlindAmount() int { return h.blindAmount }

// Board returns the community cards dealt so far.
func (h *Hand) Board() []deck.Card {
	return append([]deck.Card(nil), h.board...)
}

// HoleCards returns the player's two private cards.
func (h *Hand) HoleCards(p PlayerID) []deck.Card {
	return append([]deck.Card(nil), h.hole[p]...)
}

// CurrentRound returns the round currently being bet.
func (h *Hand) CurrentRound() Round { return Round(h.roundIndex) }

// RoundIndex returns the 0-based round index, -1 before Start.
func (h *Hand) RoundIndex() int { return h.roundIndex }

// Start shuffles a fresh deck, deals two hole cards to every player,
// assigns the blinds from the dealer button, and opens the preflop round.
func (h *Hand) Start() error {
	if h.running {
		return fmt.Errorf("hand already started")
	}
	if len(h.players) < 2 {
		return fmt.Errorf("need at least 2 players, have %d", len(h.players))
	}

	h.startTime = h.clock.Now()
	if h.id == "" {
		h.id = uuid.NewString()
	}

	if h.stacked != nil {
		h.deck = h.stacked
	} else {
		h.deck = deck.New()
		h.deck.Shuffle(h.rng)
	}

	for _, p := range h.active {
		cards, err := h.deck.Deal(2)
		if err != nil {
			return fmt.Errorf("dealing hole cards: %w", err)
		}
		h.hole[p] = cards
	}

	h.assignBlinds()

	for _, p := range h.players {
		h.score[p] = 0
	}

	h.roundIndex = 0
	h.current = NewRoundState(h.active)
	h.running = true
	return nil
}

// assignBlinds picks the small and big blind from the button position.
// Heads-up the button posts the small blind; otherwise the two seats after
// the button post.
func (h *Hand) assignBlinds() {
	n := len(h.active)
	if n < 2 {
		return
	}
	if n == 2 {
		h.smallBlind = h.active[h.button%n]
		h.bigBlind = h.active[(h.button+1)%n]
	} else {
		h.smallBlind = h.active[(h.button+1)%n]
		h.bigBlind = h.active[(h.button+2)%n]
	}
}

// PostBlinds applies the forced blind contributions as raises on behalf of
// the blind players. Only used when the session is configured for
// server-side posting; the default leaves blinds to the clients.
func (h *Hand) PostBlinds() error {
	if err := h.Apply(h.smallBlind, Action{Kind: Raise, Amount: h.blindAmount / 2}); err != nil {
		return fmt.Errorf("posting small blind: %w", err)
	}
	if err := h.Apply(h.bigBlind, Action{Kind: Raise, Amount: h.blindAmount}); err != nil {
		return fmt.Errorf("posting big blind: %w", err)
	}
	return nil
}

// carriedAllIn reports whether the player's recorded action in the previous
// round was an all-in.
func (h *Hand) carriedAllIn(p PlayerID) bool {
	if h.roundIndex <= 0 {
		return false
	}
	prev, ok := h.archives[h.roundIndex-1]
	if !ok {
		return false
	}
	return prev.actions[p] == AllIn
}

// Apply validates and applies a player action to the current round. A
// player who went all-in in a previous round has any received action
// replaced with a zero-amount all-in so their state propagates without a
// protocol error.
func (h *Hand) Apply(p PlayerID, act Action) error {
	if !h.running {
		return fmt.Errorf("hand is not running")
	}
	if !h.isActive(p) {
		return fmt.Errorf("player %d is not active in the game", p)
	}

	if h.carriedAllIn(p) {
		if h.current.IsAllIn(p) && !h.current.toAct[p] {
			// Already carried into this round; nothing further owed.
			return nil
		}
		act = Action{Kind: AllIn, Amount: 0}
	}

	elapsed := h.clock.Now().Sub(h.startTime).Milliseconds()
	if err := h.current.Apply(p, act, elapsed); err != nil {
		return err
	}

	if act.Kind == Fold {
		h.removeActive(p)
	}
	return nil
}

func (h *Hand) isActive(p PlayerID) bool {
	for _, q := range h.active {
		if q == p {
			return true
		}
	}
	return false
}

func (h *Hand) removeActive(p PlayerID) {
	for i, q := range h.active {
		if q == p {
			h.active = append(h.active[:i], h.active[i+1:]...)
			return
		}
	}
}

// RoundComplete reports whether every actor in the current round has
// resolved their action.
func (h *Hand) RoundComplete() bool {
	return h.current != nil && h.current.IsComplete()
}

// CurrentActors returns the players still owing an action this round.
func (h *Hand) CurrentActors() map[PlayerID]bool {
	if h.current == nil {
		return nil
	}
	return h.current.CurrentActors()
}

// ActorQueue returns the players owing an action in positional order:
// preflop starts left of the button (or at the button heads-up), later
// rounds start left of the button.
func (h *Hand) ActorQueue() []PlayerID {
	actors := h.CurrentActors()
	if len(actors) == 0 {
		return nil
	}

	n := len(h.players)
	start := (h.button + 1) % n
	if h.roundIndex == 0 && n == 2 {
		start = h.button % n
	}

	queue := make([]PlayerID, 0, len(actors))
	for i := 0; i < n; i++ {
		p := h.players[(start+i)%n]
		if actors[p] {
			queue = append(queue, p)
		}
	}
	return queue
}

// StillToAct reports whether the player currently owes an action.
func (h *Hand) StillToAct(p PlayerID) bool {
	return h.current != nil && h.current.toAct[p]
}

// EndRound archives the completed round's snapshot into the hand history.
func (h *Hand) EndRound() error {
	if h.current == nil || !h.current.IsComplete() {
		return fmt.Errorf("round cannot end while players are still waiting to act")
	}
	if _, done := h.archives[h.roundIndex]; done {
		return fmt.Errorf("round %d already ended", h.roundIndex)
	}

	folded := make(map[PlayerID]bool, len(h.current.folded))
	for p := range h.current.folded {
		folded[p] = true
	}
	h.archives[h.roundIndex] = &roundArchive{
		pot:           h.current.Pot(),
		contributions: h.current.Contributions(),
		actions:       h.current.Actions(),
		actionTimes:   h.current.ActionTimes(),
		history:       h.current.History(),
		finalPots:     h.current.SidePots(),
		folded:        folded,
	}
	return nil
}

// StartRound advances to the next betting round: burns one card, deals the
// flop (3) or a single turn/river card, and opens a fresh round state over
// the still-active players. Players all-in from earlier rounds are carried
// over without owing an action.
func (h *Hand) StartRound() error {
	if h.current == nil || !h.current.IsComplete() {
		return fmt.Errorf("current round is not complete")
	}
	if h.roundIndex >= numRounds-1 {
		return fmt.Errorf("no rounds remain after %s", h.CurrentRound())
	}
	if len(h.active) < 2 {
		return fmt.Errorf("need at least 2 active players, have %d", len(h.active))
	}
	if _, done := h.archives[h.roundIndex]; !done {
		return fmt.Errorf("round %d has not been ended", h.roundIndex)
	}

	h.roundIndex++

	if _, err := h.deck.Deal(1); err != nil { // burn
		return fmt.Errorf("burning card: %w", err)
	}
	dealCount := 1
	if Round(h.roundIndex) == Flop {
		dealCount = 3
	}
	cards, err := h.deck.Deal(dealCount)
	if err != nil {
		return fmt.Errorf("dealing board: %w", err)
	}
	h.board = append(h.board, cards...)

	h.current = NewRoundState(h.active)
	h.current.setCarriedPots(h.cumulativePot(), h.cumulativeSidePots())
	for _, p := range h.active {
		if h.carriedAllIn(p) {
			h.current.markAllIn(p)
		}
	}
	return nil
}

// cumulativePot sums the pots of all archived rounds.
func (h *Hand) cumulativePot() int {
	total := 0
	for _, a := range h.archives {
		total += a.pot
	}
	return total
}

// cumulativeSidePots concatenates the final pot structure of each archived
// round in round order.
func (h *Hand) cumulativeSidePots() []Pot {
	var out []Pot
	for i := 0; i < numRounds; i++ {
		if a, ok := h.archives[i]; ok {
			out = append(out, clonePots(a.finalPots)...)
		}
	}
	return out
}

// Over reports whether the hand has reached a terminal condition: one or
// fewer contenders, or the river round complete.
func (h *Hand) Over() bool {
	if !h.running {
		return true
	}
	if len(h.active) <= 1 {
		return true
	}
	return Round(h.roundIndex) == River && h.current.IsComplete()
}

// AllRemainingAllIn reports whether no active player can act for the rest
// of the hand; the remaining streets are then dealt without solicitation.
func (h *Hand) AllRemainingAllIn() bool {
	if h.current == nil {
		return false
	}
	for _, p := range h.active {
		if !h.current.IsAllIn(p) {
			return false
		}
	}
	return len(h.active) > 0
}

// cumulativeContributions sums every player's chips across archived rounds
// plus the current round when it has not been archived yet.
func (h *Hand) cumulativeContributions() map[PlayerID]int {
	totals := make(map[PlayerID]int, len(h.players))
	for _, p := range h.players {
		totals[p] = 0
	}
	for _, a := range h.archives {
		for p, amount := range a.contributions {
			totals[p] += amount
		}
	}
	if h.current != nil {
		if _, archived := h.archives[h.roundIndex]; !archived {
			for p, amount := range h.current.Contributions() {
				totals[p] += amount
			}
		}
	}
	return totals
}

// EndHand settles the hand: derives the final pots from cumulative
// contributions, ranks every surviving player's hole+board with the
// evaluator, awards each pot to the best eligible hand (ties split, the
// remainder to the first tied winner in seat order), and finalizes the
// zero-sum score map.
func (h *Hand) EndHand() error {
	if !h.running {
		return fmt.Errorf("hand is not running")
	}
	h.running = false

	contributions := h.cumulativeContributions()
	folded := make(map[PlayerID]bool, len(h.players))
	for _, p := range h.players {
		if !h.isActive(p) {
			folded[p] = true
		}
	}

	pots := DerivePots(contributions, folded)

	for _, p := range h.players {
		h.score[p] = 0
	}

	// Rank the contenders. With one player left there is nothing to
	// evaluate; they claim every pot uncontested.
	ranks := make(map[PlayerID]int, len(h.active))
	if len(h.active) > 1 {
		for _, p := range h.active {
			cards := append(h.HoleCards(p), h.board...)
			ranks[p] = h.eval.Rank(cards)
		}
	}

	// A pot whose eligible players all folded later in the hand cannot be
	// contested; its chips roll into the nearest pot that can be, keeping
	// the settlement zero-sum.
	orphaned := 0
	var lastWinners []PlayerID
	for _, pot := range pots {
		if pot.Amount == 0 {
			continue
		}
		eligible := h.eligibleActives(pot)
		if len(eligible) == 0 {
			orphaned += pot.Amount
			continue
		}

		amount := pot.Amount + orphaned
		orphaned = 0

		winners := h.bestRanked(eligible, ranks)
		lastWinners = winners
		share := amount / len(winners)
		remainder := amount % len(winners)
		for _, w := range winners {
			h.score[w] += share
		}
		h.score[winners[0]] += remainder
	}
	if orphaned > 0 && len(h.active) > 0 {
		winners := lastWinners
		if len(winners) == 0 {
			winners = []PlayerID{h.firstInSeatOrder(h.active)}
		}
		for _, w := range winners {
			h.score[w] += orphaned / len(winners)
		}
		h.score[winners[0]] += orphaned % len(winners)
	}

	for _, p := range h.players {
		h.score[p] -= contributions[p]
	}
	return nil
}

// eligibleActives filters a pot's eligibility set to still-active players,
// returned in seat order.
func (h *Hand) eligibleActives(pot Pot) []PlayerID {
	eligible := make(map[PlayerID]bool, len(pot.Eligible))
	for _, p := range pot.Eligible {
		eligible[p] = true
	}
	var out []PlayerID
	for _, p := range h.players {
		if eligible[p] && h.isActive(p) {
			out = append(out, p)
		}
	}
	return out
}

// bestRanked returns the players with the strongest hand among candidates,
// preserving seat order.
func (h *Hand) bestRanked(candidates []PlayerID, ranks map[PlayerID]int) []PlayerID {
	if len(candidates) == 1 {
		return candidates
	}
	best := ranks[candidates[0]]
	for _, p := range candidates[1:] {
		if ranks[p] > best {
			best = ranks[p]
		}
	}
	var winners []PlayerID
	for _, p := range candidates {
		if ranks[p] == best {
			winners = append(winners, p)
		}
	}
	return winners
}

func (h *Hand) firstInSeatOrder(set []PlayerID) PlayerID {
	members := make(map[PlayerID]bool, len(set))
	for _, p := range set {
		members[p] = true
	}
	for _, p := range h.players {
		if members[p] {
			return p
		}
	}
	return 0
}

// Scores returns the final zero-sum score map. Valid after EndHand.
func (h *Hand) Scores() map[PlayerID]int {
	out := make(map[PlayerID]int, len(h.score))
	for p, s := range h.score {
		out[p] = s
	}
	return out
}

// GameState builds the broadcast view of the hand. The raise bounds are
// advisory: the current bet and twice the current bet.
func (h *Hand) GameState() State {
	st := State{
		RoundNum:       h.roundIndex,
		Round:          h.CurrentRound().String(),
		CommunityCards: deck.Strings(h.board),
		PlayerBets:     map[PlayerID]int{},
		PlayerActions:  map[PlayerID]string{},
	}
	if h.current == nil {
		return st
	}

	st.Pot = h.current.Pot()
	st.CurrentBet = h.current.HighBet()
	st.MinRaise = h.current.HighBet()
	st.MaxRaise = h.current.HighBet() * 2
	st.SidePots = h.current.SidePots()
	st.PlayerBets = h.current.Contributions()
	for p, a := range h.current.Actions() {
		st.PlayerActions[p] = a.String()
	}

	actors := h.ActorQueue()
	st.CurrentPlayers = append(st.CurrentPlayers, actors...)
	return st
}
