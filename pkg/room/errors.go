package room

import (
	"errors"

	"seka-server/pkg/deck"
	"seka-server/pkg/seka"
)

// UserError is an error that can be shown to the player
type UserError string

func (u UserError) Error() string {
	return string(u)
}

// errors
var (
	// ErrConflict means another action changed the session first
	ErrConflict      = UserError("the game changed before your action was applied, please try again")
	ErrUnknownAction = UserError("unknown action")
	ErrMissingAmount = UserError("missing amount")
	ErrNotPlaying    = UserError("you are not in a game")
)

// ErrUnderfunded means a losing player's balance no longer covers the loss
// Nobody is paid until it does.
var ErrUnderfunded = errors.New("losing player cannot cover the loss")

// fatal returns true if the session cannot continue after err
func fatal(err error) bool {
	var invariant seka.InvariantError
	return errors.Is(err, deck.ErrDeckExhausted) || errors.As(err, &invariant)
}
