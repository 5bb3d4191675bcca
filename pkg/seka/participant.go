package seka

import "seka-server/pkg/deck"

// Profile is the display information of a player
type Profile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Entrant is a player being seated when a session is formed
type Entrant struct {
	PlayerID int64
	Profile  Profile
	// Balance is the ledger balance when the player was matched
	Balance int
}

// Seat is a player in a session
type Seat struct {
	PlayerID int64     `json:"playerId"`
	Profile  Profile   `json:"profile"`
	Hand     deck.Hand `json:"hand"`

	BalanceAtEntry int `json:"balanceAtEntry"`
	// CurrentBet is the amount added by the seat's last bet
	CurrentBet int `json:"currentBet"`
	// TotalRoundBet is the seat's total in the current betting round
	TotalRoundBet int `json:"totalRoundBet"`
	// Contributed is everything the seat put in the pot this session
	Contributed int `json:"contributed"`
	// Payout is what the seat receives when the session is finished
	Payout int `json:"payout"`

	Folded bool `json:"folded"`
	// Spectating is true once the seat is left out of a svara
	Spectating bool `json:"spectating"`
	Order      int  `json:"order"`
}

// Active returns true if the seat is still playing the current round
func (s *Seat) Active() bool {
	return !s.Folded && !s.Spectating
}

// Available returns how much the seat can still bet
func (s *Seat) Available() int {
	return s.BalanceAtEntry - s.Contributed
}

// Net returns the seat's gain (or loss) for the session
func (s *Seat) Net() int {
	return s.Payout - s.Contributed
}

func (s *Seat) clone() *Seat {
	c := *s
	c.Hand = s.Hand.Clone()
	return &c
}
