package game

import "fmt"

// ActionRecord captures one applied action together with the pot structure
// it produced. TimestampMs is relative to the start of the hand. The Total*
// fields fold in the pots of all previously completed rounds so readers of
// the hand log can follow the session-cumulative pot without replaying it.
type ActionRecord struct {
	Player             PlayerID
	Action             ActionKind
	Amount             int
	TimestampMs        int64
	PotAfter           int
	SidePotsAfter      []Pot
	TotalPotAfter      int
	TotalSidePotsAfter []Pot
}

// RoundState tracks a single betting round: who still owes an action, the
// amount to match, per-player contributions, and the derived pot structure.
type RoundState struct {
	contributions map[PlayerID]int
	highBet       int
	lastAggressor PlayerID
	toAct         map[PlayerID]bool
	actions       map[PlayerID]ActionKind
	allIn         map[PlayerID]bool
	folded        map[PlayerID]bool
	pots          []Pot
	history       []ActionRecord
	actionTimes   map[PlayerID]int64

	// Pots carried over from completed rounds, set by the owning hand so
	// action records can expose a session-cumulative view.
	carriedPot  int
	carriedPots []Pot
}

// NewRoundState initializes a betting round over the given actors. The main
// pot starts empty and covers everyone.
func NewRoundState(active []PlayerID) *RoundState {
	rs := &RoundState{
		contributions: make(map[PlayerID]int, len(active)),
		toAct:         make(map[PlayerID]bool, len(active)),
		actions:       make(map[PlayerID]ActionKind, len(active)),
		allIn:         make(map[PlayerID]bool),
		folded:        make(map[PlayerID]bool),
		actionTimes:   make(map[PlayerID]int64, len(active)),
	}
	for _, p := range active {
		rs.contributions[p] = 0
		rs.toAct[p] = true
	}
	rs.pots = DerivePots(rs.contributions, rs.folded)
	return rs
}

// setCarriedPots records the cumulative pot structure of all completed
// rounds, for inclusion in this round's action records.
func (rs *RoundState) setCarriedPots(total int, pots []Pot) {
	rs.carriedPot = total
	rs.carriedPots = pots
}

// markAllIn registers a player who is all-in from a previous round so they
// are neither solicited nor counted as owing an action. The all-in is
// recorded as their standing action so it keeps propagating on later
// rounds.
func (rs *RoundState) markAllIn(player PlayerID) {
	rs.allIn[player] = true
	rs.actions[player] = AllIn
	delete(rs.toAct, player)
}

// Apply validates and applies one action. elapsedMs is the hand-relative
// timestamp recorded in the action history. The round's pot structure is
// recomputed before returning, so callers always observe a current view.
func (rs *RoundState) Apply(player PlayerID, act Action, elapsedMs int64) error {
	if act.Amount < 0 {
		return fmt.Errorf("amount cannot be negative")
	}
	if !rs.toAct[player] {
		return fmt.Errorf("player %d is not waiting for their turn", player)
	}

	switch act.Kind {
	case Fold:
		delete(rs.toAct, player)
		rs.folded[player] = true
		rs.actions[player] = Fold

	case Check:
		if rs.lastAggressor != 0 {
			return fmt.Errorf("cannot check when there has been a raise")
		}
		delete(rs.toAct, player)
		rs.actions[player] = Check

	case Call:
		owed := rs.highBet - rs.contributions[player]
		if owed <= 0 {
			return fmt.Errorf("nothing to call")
		}
		rs.contributions[player] += owed
		delete(rs.toAct, player)
		rs.actions[player] = Call

	case Raise:
		if act.Amount+rs.contributions[player] <= rs.highBet {
			return fmt.Errorf("raise of %d does not exceed current bet %d", act.Amount, rs.highBet)
		}
		rs.contributions[player] += act.Amount
		rs.highBet = rs.contributions[player]
		rs.lastAggressor = player
		rs.actions[player] = Raise
		rs.reopen(player)

	case AllIn:
		rs.contributions[player] += act.Amount
		rs.allIn[player] = true
		delete(rs.toAct, player)
		rs.actions[player] = AllIn
		if rs.contributions[player] > rs.highBet {
			// An all-in above the current bet acts as a raise and reopens
			// the round; a short all-in does not.
			rs.highBet = rs.contributions[player]
			rs.lastAggressor = player
			rs.reopen(player)
		}

	default:
		return fmt.Errorf("unknown action %v", act.Kind)
	}

	rs.pots = DerivePots(rs.contributions, rs.folded)
	rs.actionTimes[player] = elapsedMs
	rs.record(player, act.Kind, act.Amount, elapsedMs)
	return nil
}

// reopen puts every non-folded, non-all-in player other than the aggressor
// back on the clock and clears their last action.
func (rs *RoundState) reopen(aggressor PlayerID) {
	delete(rs.toAct, aggressor)
	for player := range rs.contributions {
		if player == aggressor || rs.folded[player] || rs.allIn[player] {
			continue
		}
		rs.toAct[player] = true
		delete(rs.actions, player)
	}
}

func (rs *RoundState) record(player PlayerID, kind ActionKind, amount int, elapsedMs int64) {
	snapshot := clonePots(rs.pots)
	total := append(clonePots(rs.carriedPots), clonePots(rs.pots)...)
	rs.history = append(rs.history, ActionRecord{
		Player:             player,
		Action:             kind,
		Amount:             amount,
		TimestampMs:        elapsedMs,
		PotAfter:           potTotal(rs.pots),
		SidePotsAfter:      snapshot,
		TotalPotAfter:      rs.carriedPot + potTotal(rs.pots),
		TotalSidePotsAfter: total,
	})
}

// IsComplete reports whether every actor has resolved their action.
func (rs *RoundState) IsComplete() bool {
	return len(rs.toAct) == 0
}

// CurrentActors returns the set of players still owing an action.
func (rs *RoundState) CurrentActors() map[PlayerID]bool {
	out := make(map[PlayerID]bool, len(rs.toAct))
	for p := range rs.toAct {
		out[p] = true
	}
	return out
}

// Pot returns the total chips contributed this round.
func (rs *RoundState) Pot() int {
	return potTotal(rs.pots)
}

// HighBet returns the amount a player must have matched to stay.
func (rs *RoundState) HighBet() int {
	return rs.highBet
}

// SidePots returns a snapshot of the current pot structure.
func (rs *RoundState) SidePots() []Pot {
	return clonePots(rs.pots)
}

// Contributions returns a copy of the per-player chips committed this round.
func (rs *RoundState) Contributions() map[PlayerID]int {
	out := make(map[PlayerID]int, len(rs.contributions))
	for p, amount := range rs.contributions {
		out[p] = amount
	}
	return out
}

// Actions returns the last recorded action per player. Players reopened by
// a raise are absent until they act again.
func (rs *RoundState) Actions() map[PlayerID]ActionKind {
	out := make(map[PlayerID]ActionKind, len(rs.actions))
	for p, a := range rs.actions {
		out[p] = a
	}
	return out
}

// ActionTimes returns the hand-relative timestamp of each player's last
// action this round.
func (rs *RoundState) ActionTimes() map[PlayerID]int64 {
	out := make(map[PlayerID]int64, len(rs.actionTimes))
	for p, ts := range rs.actionTimes {
		out[p] = ts
	}
	return out
}

// History returns the ordered action records for this round.
func (rs *RoundState) History() []ActionRecord {
	return append([]ActionRecord(nil), rs.history...)
}

// IsAllIn reports whether the player has committed all their chips.
func (rs *RoundState) IsAllIn(player PlayerID) bool {
	return rs.allIn[player]
}
