package game

import "errors"

var (
	// ErrInvalidState is returned when the local user's state does not allow
	// a command.
	ErrInvalidState = errors.New("invalid user state")
	ErrInvalidBet   = errors.New("invalid bet")
	ErrNoCommander  = errors.New("no command transport")

	// Protocol anomalies. These are reported, never returned from event
	// handling.
	ErrNoRound         = errors.New("no current round")
	ErrUnexpectedPhase = errors.New("unexpected round phase")
	ErrOutOfOrderTick  = errors.New("out of order tick")
	ErrUnknownPlayer   = errors.New("unknown player")
)
