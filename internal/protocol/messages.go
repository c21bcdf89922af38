// Package protocol defines the typed wire messages and the
// newline-delimited JSON codec used between the engine and its clients.
//
// Every record on the wire is a single line of the form
//
//	{"type": <int>, "message": <payload>}
//
// Peers split on LF and parse each non-empty line independently. Several
// payloads are bare JSON primitives rather than objects; the typed structs
// here hide that behind custom marshalling.
package protocol

import "encoding/json"

// MessageType identifies a wire message.
type MessageType int

const (
	TypeConnect MessageType = iota
	TypeDisconnect
	TypeGameStart
	TypeRoundStart
	TypeRequestAction
	TypePlayerAction
	TypeRoundEnd
	TypeGameEnd
	TypeText
	TypeGameState
)

// String returns a short name for logging.
func (t MessageType) String() string {
	switch t {
	case TypeConnect:
		return "connect"
	case TypeDisconnect:
		return "disconnect"
	case TypeGameStart:
		return "game_start"
	case TypeRoundStart:
		return "round_start"
	case TypeRequestAction:
		return "request_action"
	case TypePlayerAction:
		return "player_action"
	case TypeRoundEnd:
		return "round_end"
	case TypeGameEnd:
		return "game_end"
	case TypeText:
		return "text"
	case TypeGameState:
		return "game_state"
	default:
		return "unknown"
	}
}

// Message is implemented by every typed payload.
type Message interface {
	MessageType() MessageType
}

// Connect assigns the client its player id. The payload is the bare id.
type Connect struct {
	PlayerID int
}

func (Connect) MessageType() MessageType { return TypeConnect }

func (c Connect) MarshalJSON() ([]byte, error) { return json.Marshal(c.PlayerID) }

func (c *Connect) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &c.PlayerID) }

// Disconnect carries the reason a client is being dropped.
type Disconnect struct {
	Reason string
}

func (Disconnect) MessageType() MessageType { return TypeDisconnect }

func (d Disconnect) MarshalJSON() ([]byte, error) { return json.Marshal(d.Reason) }

func (d *Disconnect) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &d.Reason) }

// GameStart is sent to each player individually at the start of a hand.
type GameStart struct {
	Message      string   `json:"message"`
	HoleCards    []string `json:"hands"`
	BlindAmount  int      `json:"blind_amount"`
	IsSmallBlind bool     `json:"is_small_blind"`
	IsBigBlind   bool     `json:"is_big_blind"`
}

func (GameStart) MessageType() MessageType { return TypeGameStart }

// RoundStart announces a new betting round. The payload is the round name.
type RoundStart struct {
	Round string
}

func (RoundStart) MessageType() MessageType { return TypeRoundStart }

func (r RoundStart) MarshalJSON() ([]byte, error) { return json.Marshal(r.Round) }

func (r *RoundStart) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &r.Round) }

// RoundEnd announces the end of a betting round. The payload is the round
// name.
type RoundEnd struct {
	Round string
}

func (RoundEnd) MessageType() MessageType { return TypeRoundEnd }

func (r RoundEnd) MarshalJSON() ([]byte, error) { return json.Marshal(r.Round) }

func (r *RoundEnd) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &r.Round) }

// RequestAction solicits an action from the named player only.
type RequestAction struct {
	PlayerID int `json:"player_id"`
	TimeLeft int `json:"time_left"`
}

func (RequestAction) MessageType() MessageType { return TypeRequestAction }

// PlayerAction is a client's response to RequestAction. Action carries the
// wire code (fold=1 through allin=5).
type PlayerAction struct {
	PlayerID int `json:"player_id"`
	Action   int `json:"action"`
	Amount   int `json:"amount"`
}

func (PlayerAction) MessageType() MessageType { return TypePlayerAction }

// GameEnd delivers the player's score delta for the hand. The payload is
// the bare signed chip count.
type GameEnd struct {
	Score int
}

func (GameEnd) MessageType() MessageType { return TypeGameEnd }

func (g GameEnd) MarshalJSON() ([]byte, error) { return json.Marshal(g.Score) }

func (g *GameEnd) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &g.Score) }

// Text is a free-form message in either direction.
type Text struct {
	Body string
}

func (Text) MessageType() MessageType { return TypeText }

func (t Text) MarshalJSON() ([]byte, error) { return json.Marshal(t.Body) }

func (t *Text) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &t.Body) }

// SidePot is the wire view of one pot.
type SidePot struct {
	Amount          int   `json:"amount"`
	EligiblePlayers []int `json:"eligible_players"`
}

// GameState is the public hand state broadcast after every applied action.
type GameState struct {
	RoundNum       int               `json:"round_num"`
	Round          string            `json:"round"`
	CommunityCards []string          `json:"community_cards"`
	Pot            int               `json:"pot"`
	CurrentPlayer  []int             `json:"current_player"`
	CurrentBet     int               `json:"current_bet"`
	PlayerBets     map[string]int    `json:"player_bets"`
	PlayerActions  map[string]string `json:"player_actions"`
	MinRaise       int               `json:"min_raise"`
	MaxRaise       int               `json:"max_raise"`
	SidePots       []SidePot         `json:"side_pots"`
}

func (GameState) MessageType() MessageType { return TypeGameState }
