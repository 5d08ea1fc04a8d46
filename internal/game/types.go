package game

import (
	"encoding/json"
	"maps"
	"time"
)

type Phase string

const (
	PhaseStarting   Phase = "STARTING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseEnded      Phase = "ENDED"
)

// rank orders phases so transitions can be checked for going backward.
func (p Phase) rank() int {
	switch p {
	case PhaseStarting:
		return 1
	case PhaseInProgress:
		return 2
	case PhaseEnded:
		return 3
	}
	return 0
}

// UserState tracks the local user's wager in the current round.
//
//	WATCHING    not playing in this round (or no bet placed yet)
//	PLACING     bet requested, server has not confirmed it
//	PLACED      bet confirmed during the starting phase
//	PLAYING     in the round and not cashed out
//	CASHINGOUT  cashout requested, server has not confirmed it
//	CASHEDOUT   cashed out before the crash
//	CRASHED     played and did not cash out in time
type UserState string

const (
	UserWatching   UserState = "WATCHING"
	UserPlacing    UserState = "PLACING"
	UserPlaced     UserState = "PLACED"
	UserPlaying    UserState = "PLAYING"
	UserCashingOut UserState = "CASHINGOUT"
	UserCashedOut  UserState = "CASHEDOUT"
	UserCrashed    UserState = "CRASHED"
)

type Tick struct {
	Elapsed int64 `json:"elapsed"`
	Growth  int64 `json:"growth"`
	// Micro is the arrival time in microseconds relative to the round start.
	Micro int64 `json:"micro"`
}

// Wager is one player's stake in a round. Multipliers are hundredths.
type Wager struct {
	Bet         int64  `json:"bet"`
	AutoCashout *int64 `json:"auto_cashout,omitempty"`
	StoppedAt   *int64 `json:"stopped_at,omitempty"`
	Bonus       *int64 `json:"bonus,omitempty"`
}

// Round is an immutable snapshot of one game. The client never mutates a
// Round it has handed out; every change produces a new value.
type Round struct {
	ID             int64            `json:"game_id"`
	Phase          Phase            `json:"state"`
	ServerSeedHash string           `json:"server_seed_hash"`
	ServerSeed     string           `json:"server_seed,omitempty"`
	StartTime      time.Time        `json:"start_time"`
	StartMicros    int64            `json:"micro_time"`
	Ticks          []Tick           `json:"ticks"`
	CrashPoint     int64            `json:"game_crash"`
	Forced         bool             `json:"forced,omitempty"`
	Verified       Verdict          `json:"verified,omitempty"`
	ChainLinked    bool             `json:"chain_linked,omitempty"`
	Players        map[string]Wager `json:"player_info"`
}

// clone copies the round including its player map. The ticks slice is
// shared: ticks are append-only and older snapshots never see later entries.
func (r *Round) clone() *Round {
	next := *r
	next.Players = maps.Clone(r.Players)
	if next.Players == nil {
		next.Players = make(map[string]Wager)
	}
	return &next
}

// LastTick returns the newest tick, or the implicit tick at elapsed 0.
func (r *Round) LastTick() Tick {
	if len(r.Ticks) == 0 {
		return Tick{Elapsed: 0, Growth: 100, Micro: 0}
	}
	return r.Ticks[len(r.Ticks)-1]
}

type TickEstimate struct {
	Elapsed int64 `json:"elapsed"`
	Growth  int64 `json:"growth"`
	Micro   int64 `json:"micro"`
}

// NextTick brackets the next expected tick of the running round.
type NextTick struct {
	Lower TickEstimate `json:"lower"`
	Upper TickEstimate `json:"upper"`
}

// Server events.

type Event interface {
	eventName() string
}

type Connected struct{}

type Disconnected struct {
	Reason string
}

type TransportError struct {
	Err error
}

type Joined struct {
	State        Phase            `json:"state"`
	PlayerInfo   map[string]Wager `json:"player_info"`
	GameID       int64            `json:"game_id"`
	LastHash     string           `json:"last_hash"`
	MaxWin       float64          `json:"max_win"`
	Elapsed      int64            `json:"elapsed"`
	Created      time.Time        `json:"created"`
	Joined       []string         `json:"joined"`
	TableHistory []HistoryEntry   `json:"table_history"`
	Username     string           `json:"username"`
	Balance      int64            `json:"balance_satoshis"`
}

// HistoryEntry is a finished round as listed in the join snapshot.
type HistoryEntry struct {
	GameID     int64            `json:"game_id"`
	GameCrash  int64            `json:"game_crash"`
	Created    time.Time        `json:"created"`
	PlayerInfo map[string]Wager `json:"player_info"`
	Hash       string           `json:"hash"`
}

type RoundStarting struct {
	GameID        int64   `json:"game_id"`
	MaxWin        float64 `json:"max_win"`
	TimeTillStart int64   `json:"time_till_start"`
}

// RoundStarted carries the confirmed bets keyed by username.
type RoundStarted struct {
	Bets map[string]int64
}

func (e *RoundStarted) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &e.Bets)
}

func (e RoundStarted) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Bets)
}

// TickEvent arrives either as a bare number or as {"elapsed": n}.
type TickEvent struct {
	Elapsed int64 `json:"elapsed"`
}

func (e *TickEvent) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		e.Elapsed = n
		return nil
	}
	var obj struct {
		Elapsed int64 `json:"elapsed"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Elapsed = obj.Elapsed
	return nil
}

type RoundCrashed struct {
	Forced    bool             `json:"forced"`
	Elapsed   int64            `json:"elapsed"`
	GameCrash int64            `json:"game_crash"`
	Bonuses   map[string]int64 `json:"bonuses"`
	Hash      string           `json:"hash"`
}

type PlayerBet struct {
	Username    string `json:"username"`
	Bet         int64  `json:"bet"`
	AutoCashout *int64 `json:"auto_cashout,omitempty"`
	// Index is only sent by servers that debit the stake at game start.
	Index *int `json:"index,omitempty"`
}

type PlayerCashedOut struct {
	Username  string `json:"username"`
	StoppedAt int64  `json:"stopped_at"`
}

func (Connected) eventName() string       { return "connect" }
func (Disconnected) eventName() string    { return "disconnect" }
func (TransportError) eventName() string  { return "error" }
func (Joined) eventName() string          { return "join" }
func (RoundStarting) eventName() string   { return "game_starting" }
func (RoundStarted) eventName() string    { return "game_started" }
func (TickEvent) eventName() string       { return "game_tick" }
func (RoundCrashed) eventName() string    { return "game_crash" }
func (PlayerBet) eventName() string       { return "player_bet" }
func (PlayerCashedOut) eventName() string { return "cashed_out" }

// Notifications emitted to collaborators.

type NotificationType string

const (
	NotifyConnect       NotificationType = "connect"
	NotifyDisconnect    NotificationType = "disconnect"
	NotifyError         NotificationType = "error"
	NotifyJoin          NotificationType = "join"
	NotifyGameStarting  NotificationType = "game_starting"
	NotifyGameStarted   NotificationType = "game_started"
	NotifyGameTick      NotificationType = "game_tick"
	NotifyGameCrash     NotificationType = "game_crash"
	NotifyPlayerBet     NotificationType = "player_bet"
	NotifyUserBet       NotificationType = "user_bet"
	NotifyCashedOut     NotificationType = "cashed_out"
	NotifyUserCashedOut NotificationType = "user_cashed_out"
	NotifyUserLoss      NotificationType = "user_loss"
)

// Notification pairs a lifecycle event with the round snapshot taken right
// after the client applied it.
type Notification struct {
	Type  NotificationType `json:"type"`
	Round *Round           `json:"round,omitempty"`
	Data  any              `json:"data,omitempty"`
}
