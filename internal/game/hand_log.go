package game

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ATC-UW/pokerden-engine/internal/deck"
	"github.com/ATC-UW/pokerden-engine/internal/fileutil"
)

// Player ids inside persisted logs are zero-based offsets of the wire ids;
// the playerMoney block keeps the wire ids. Both follow the established log
// consumers, so neither can change shape casually.

// LogSidePot is a pot entry in the persisted log.
type LogSidePot struct {
	Amount          int   `json:"amount"`
	EligiblePlayers []int `json:"eligible_players"`
}

// LogActionRecord is one applied action in a round's action_sequence.
type LogActionRecord struct {
	Player                   int          `json:"player"`
	Action                   string       `json:"action"`
	Amount                   int          `json:"amount"`
	Timestamp                int64        `json:"timestamp"`
	PotAfterAction           int          `json:"pot_after_action"`
	SidePotsAfterAction      []LogSidePot `json:"side_pots_after_action"`
	TotalPotAfterAction      int          `json:"total_pot_after_action"`
	TotalSidePotsAfterAction []LogSidePot `json:"total_side_pots_after_action"`
}

// LogRound is the archived state of one betting round.
type LogRound struct {
	Pot            int               `json:"pot"`
	Bets           map[string]int    `json:"bets"`
	Actions        map[string]string `json:"actions"`
	ActionSequence []LogActionRecord `json:"action_sequence"`
	ActionTimes    map[string]int64  `json:"actionTimes"`
}

// LogBlinds records the blind sizes for the hand.
type LogBlinds struct {
	Small int `json:"small"`
	Big   int `json:"big"`
}

// LogPlayerMoney is the optional bankroll accounting block maintained by
// the session coordinator across hands.
type LogPlayerMoney struct {
	InitialAmount int            `json:"initialAmount"`
	StartingMoney map[string]int `json:"startingMoney,omitempty"`
	StartingDelta map[string]int `json:"startingDelta,omitempty"`
	FinalMoney    map[string]int `json:"finalMoney,omitempty"`
	FinalDelta    map[string]int `json:"finalDelta,omitempty"`
	GameScores    map[string]int `json:"gameScores,omitempty"`
	ThisGameDelta map[string]int `json:"thisGameDelta,omitempty"`
}

// HandLog is the JSON document persisted once per hand.
type HandLog struct {
	GameID      string              `json:"gameId"`
	PlayerNames map[string]string   `json:"playerNames"`
	PlayerHands map[string][]string `json:"playerHands"`
	Blinds      LogBlinds           `json:"blinds"`
	FinalBoard  []string            `json:"finalBoard"`
	Rounds      map[string]LogRound `json:"rounds"`
	SidePots    []LogSidePot        `json:"sidePots"`
	PlayerMoney *LogPlayerMoney     `json:"playerMoney,omitempty"`

	sequence int
}

func logOffset(p PlayerID) int {
	return int(p) - 1
}

func logPots(pots []Pot) []LogSidePot {
	out := make([]LogSidePot, 0, len(pots))
	for _, pot := range pots {
		entry := LogSidePot{Amount: pot.Amount, EligiblePlayers: make([]int, 0, len(pot.Eligible))}
		for _, p := range pot.Eligible {
			entry.EligiblePlayers = append(entry.EligiblePlayers, logOffset(p))
		}
		out = append(out, entry)
	}
	return out
}

func logRecords(records []ActionRecord) []LogActionRecord {
	out := make([]LogActionRecord, 0, len(records))
	for _, r := range records {
		out = append(out, LogActionRecord{
			Player:                   logOffset(r.Player),
			Action:                   r.Action.LogName(),
			Amount:                   r.Amount,
			Timestamp:                r.TimestampMs,
			PotAfterAction:           r.PotAfter,
			SidePotsAfterAction:      logPots(r.SidePotsAfter),
			TotalPotAfterAction:      r.TotalPotAfter,
			TotalSidePotsAfterAction: logPots(r.TotalSidePotsAfter),
		})
	}
	return out
}

// BuildLog assembles the persisted document for a finished hand. The money
// block is attached when non-nil.
func (h *Hand) BuildLog(money *LogPlayerMoney) *HandLog {
	doc := &HandLog{
		GameID:      h.id,
		PlayerNames: make(map[string]string, len(h.players)),
		PlayerHands: make(map[string][]string, len(h.players)),
		Blinds:      LogBlinds{Small: h.blindAmount / 2, Big: h.blindAmount},
		FinalBoard:  deck.Strings(h.board),
		Rounds:      make(map[string]LogRound, len(h.archives)),
		SidePots:    []LogSidePot{},
		PlayerMoney: money,
		sequence:    h.sequence,
	}

	for _, p := range h.players {
		key := strconv.Itoa(logOffset(p))
		doc.PlayerNames[key] = fmt.Sprintf("player%d", p)
		doc.PlayerHands[key] = deck.Strings(h.hole[p])
	}

	for idx := 0; idx < numRounds; idx++ {
		archive, ok := h.archives[idx]
		if !ok {
			continue
		}
		round := LogRound{
			Pot:            archive.pot,
			Bets:           make(map[string]int, len(archive.contributions)),
			Actions:        make(map[string]string, len(archive.contributions)),
			ActionSequence: logRecords(archive.history),
			ActionTimes:    make(map[string]int64, len(archive.actionTimes)),
		}
		for p, amount := range archive.contributions {
			round.Bets[strconv.Itoa(logOffset(p))] = amount
		}
		for p, action := range archive.actions {
			round.Actions[strconv.Itoa(logOffset(p))] = action.LogName()
		}
		for p, ts := range archive.actionTimes {
			round.ActionTimes[strconv.Itoa(logOffset(p))] = ts
		}
		doc.Rounds[strconv.Itoa(idx)] = round
	}

	// Final resolved pot structure across the whole hand.
	contributions := h.cumulativeContributions()
	folded := make(map[PlayerID]bool, len(h.players))
	for _, p := range h.players {
		if !h.isActive(p) {
			folded[p] = true
		}
	}
	doc.SidePots = logPots(DerivePots(contributions, folded))

	return doc
}

// Filename returns the log file name: the hand sequence number when the
// hand belongs to a session, then the hand id.
func (l *HandLog) Filename() string {
	if l.sequence >= 0 {
		return fmt.Sprintf("game_log_%d_%s.json", l.sequence, l.GameID)
	}
	return fmt.Sprintf("game_log_%s.json", l.GameID)
}

// Write persists the document atomically under dir.
func (l *HandLog) Write(dir string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding hand log: %w", err)
	}
	path := filepath.Join(dir, l.Filename())
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing hand log: %w", err)
	}
	return nil
}
