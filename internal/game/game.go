// Package game is the client side of the party game: every tab runs one
// Controller that mirrors the shared store into a State and turns user actions
// into store writes. There is no game server; roles and store conventions are
// the only coordination.
package game

import "errors"

var (
	ErrSeatTaken         = errors.New("seat already taken")
	ErrAlreadySeated     = errors.New("already seated")
	ErrDuplicateName     = errors.New("name already in use")
	ErrVotingClosed      = errors.New("voting is closed")
	ErrNotPermitted      = errors.New("not permitted for this role")
	ErrInvalidSeat       = errors.New("invalid seat")
	ErrInvalidTarget     = errors.New("no active player in that seat")
	ErrNameRequired      = errors.New("name is required")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrInvalidRoom       = errors.New("invalid room")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrUnknownPlayer     = errors.New("unknown player")
)
