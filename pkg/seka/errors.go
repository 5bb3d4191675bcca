package seka

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected player action
// It is safe to return to the acting client and never changes the session.
type ValidationError string

func (v ValidationError) Error() string {
	return string(v)
}

// validation errors
var (
	ErrNotYourTurn       = ValidationError("it is not your turn")
	ErrBelowCurrentBet   = ValidationError("bet is below the current bet")
	ErrBelowMinimumBet   = ValidationError("bet is below the minimum bet")
	ErrInsufficientFunds = ValidationError("insufficient funds")
	ErrAlreadyFolded     = ValidationError("you have already folded")
	ErrNotInRound        = ValidationError("you are not playing this round")
	ErrNotSeated         = ValidationError("you are not seated in this session")
	ErrWrongPhase        = ValidationError("action is not allowed in this phase")
	ErrSessionFinished   = ValidationError("session is finished")
)

// ErrTurnNotExpired is returned by ExpireTurn when the seat still has time to act
var ErrTurnNotExpired = errors.New("turn has not expired")

// ErrNothingToAdvance is returned by Advance when the session waits on a player
var ErrNothingToAdvance = errors.New("session is waiting on a player")

// IsValidation returns true if err is a rejected player action
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// InvariantError means the session reached a state the rules do not allow
// The session cannot continue and must be aborted.
type InvariantError struct {
	SessionID string
	Reason    string
}

func (i InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in session %s: %s", i.SessionID, i.Reason)
}

// PlayerCountError is an error on the number of players in the session
type PlayerCountError struct {
	Min int
	Max int
	Got int
}

func (p PlayerCountError) Error() string {
	return fmt.Sprintf("expected %d–%d players, got %d", p.Min, p.Max, p.Got)
}
