package socket

import (
	"encoding/json"
	"errors"
	"fmt"

	"shiba/internal/game"
)

// Message types on the game server socket.
const (
	TypeJoin           = "join"
	TypeAck            = "ack"
	TypeGameStarting   = "game_starting"
	TypeGameStarted    = "game_started"
	TypeGameTick       = "game_tick"
	TypeGameCrash      = "game_crash"
	TypePlayerBet      = "player_bet"
	TypeCashedOut      = "cashed_out"
	TypeMsg            = "msg"
	TypePlaceBet       = "place_bet"
	TypeCashOut        = "cash_out"
	TypeSetAutoCashOut = "set_auto_cash_out"
)

var errIgnored = errors.New("ignored message")

// Envelope is a single JSON text frame. Commands that expect a reply carry
// an ID; the server answers with an ack frame holding the same ID.
type Envelope struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type joinRequest struct {
	OTT string `json:"ott,omitempty"`
}

type placeBetRequest struct {
	Amount      int64 `json:"amount"`
	AutoCashout int64 `json:"auto_cashout,omitempty"`
}

type autoCashoutRequest struct {
	At int64 `json:"at"`
}

func newEnvelope(typ, id string, data any) (Envelope, error) {
	env := Envelope{Type: typ, ID: id}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return env, fmt.Errorf("marshal %s: %w", typ, err)
	}
	env.Data = raw
	return env, nil
}

// decode turns a server push into a client event. Chat frames return
// errIgnored.
func decode(env Envelope) (game.Event, error) {
	var (
		ev  game.Event
		err error
	)

	switch env.Type {
	case TypeGameStarting:
		var e game.RoundStarting
		err = unmarshal(env, &e)
		ev = e
	case TypeGameStarted:
		var e game.RoundStarted
		err = unmarshal(env, &e)
		ev = e
	case TypeGameTick:
		var e game.TickEvent
		err = unmarshal(env, &e)
		ev = e
	case TypeGameCrash:
		var e game.RoundCrashed
		err = unmarshal(env, &e)
		ev = e
	case TypePlayerBet:
		var e game.PlayerBet
		err = unmarshal(env, &e)
		ev = e
	case TypeCashedOut:
		var e game.PlayerCashedOut
		err = unmarshal(env, &e)
		ev = e
	case TypeJoin:
		var e game.Joined
		err = unmarshal(env, &e)
		ev = e
	case TypeMsg:
		return nil, errIgnored
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if err != nil {
		return nil, err
	}
	return ev, nil
}

func unmarshal(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return nil
}
