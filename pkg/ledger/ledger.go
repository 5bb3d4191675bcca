// Package ledger holds player balances
// Every change is an entry with a unique reference, so replaying a debit or
// credit with the same reference is a no-op.
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// DefaultStartingBalance is the balance of a new account
const DefaultStartingBalance = 1000

// UserError is an error that can be shown to the player
type UserError string

func (u UserError) Error() string {
	return string(u)
}

// errors
var (
	ErrInsufficientFunds = UserError("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Entry is a single balance change
type Entry struct {
	Reference string    `db:"reference" json:"reference"`
	PlayerID  int64     `db:"player_id" json:"playerId"`
	Amount    int       `db:"amount" json:"amount"`
	Balance   int       `db:"balance" json:"balance"`
	Note      string    `db:"note" json:"note"`
	Created   time.Time `db:"created" json:"created"`
}

// Reference returns the settlement reference of a player in a session
func Reference(sessionID string, playerID int64) string {
	return fmt.Sprintf("%s:%d", sessionID, playerID)
}

func openingReference(playerID int64) string {
	return fmt.Sprintf("open:%d", playerID)
}

func validAmount(amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	return nil
}
