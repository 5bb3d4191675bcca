package seka

import (
	"errors"
	"time"

	"seka-server/pkg/deck"
)

// HandSize is the number of cards dealt to every seat
const HandSize = 3

// MaxSeats is the most seats a 21-card deck can serve
const MaxSeats = deck.Size / HandSize

// ScoreRules are the values of the special combinations
type ScoreRules struct {
	// TwoAces is the minimum score of a hand holding two or more aces ("two foreheads")
	TwoAces int `json:"twoAces" yaml:"twoAces"`
	// SekaBase is the score of three tens, each higher rank adds one (three aces is the best hand)
	SekaBase int `json:"sekaBase" yaml:"sekaBase"`
}

// Options are the game-design parameters of a session
// They are stored with the session so every process plays by the same rules.
type Options struct {
	MinPlayers int `json:"minPlayers" yaml:"minPlayers"`
	MaxPlayers int `json:"maxPlayers" yaml:"maxPlayers"`
	MinBet     int `json:"minBet" yaml:"minBet"`
	// SvaraStakePercent is the share of the carried pot each svara participant must put in first
	SvaraStakePercent int           `json:"svaraStakePercent" yaml:"svaraStakePercent"`
	TurnTimeout       time.Duration `json:"turnTimeout" yaml:"turnTimeout"`
	Scoring           ScoreRules    `json:"scoring" yaml:"scoring"`
}

// DefaultScoreRules returns the default special combination values
func DefaultScoreRules() ScoreRules {
	return ScoreRules{
		TwoAces:  22,
		SekaBase: 33,
	}
}

// DefaultOptions returns the default options for a session
func DefaultOptions() Options {
	return Options{
		MinPlayers:        2,
		MaxPlayers:        6,
		MinBet:            10,
		SvaraStakePercent: 50,
		TurnTimeout:       30 * time.Second,
		Scoring:           DefaultScoreRules(),
	}
}

// Validate checks the options are playable
func (o Options) Validate() error {
	if o.MinPlayers < 2 {
		return errors.New("minPlayers must be at least 2")
	}

	if o.MaxPlayers < o.MinPlayers {
		return errors.New("maxPlayers must be >= minPlayers")
	}

	if o.MaxPlayers > MaxSeats {
		return errors.New("maxPlayers cannot exceed 7 with a 21 card deck")
	}

	if o.MinBet <= 0 {
		return errors.New("minBet must be positive")
	}

	if o.SvaraStakePercent < 0 {
		return errors.New("svaraStakePercent cannot be negative")
	}

	// an idle seat is only ever removed by its turn running out
	if o.TurnTimeout <= 0 {
		return errors.New("turnTimeout must be positive")
	}

	// three tens must beat the best same-suit sum (ace + joker + ten = 32)
	if o.Scoring.SekaBase <= bestSuitSum {
		return errors.New("sekaBase must beat every same-suit sum")
	}

	return nil
}
