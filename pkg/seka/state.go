package seka

import (
	"time"

	"seka-server/pkg/deck"
	"seka-server/pkg/protocol"
)

// SeatState is the public view of a seat
type SeatState struct {
	PlayerID      int64   `json:"playerId"`
	Profile       Profile `json:"profile"`
	Cards         int     `json:"cards"`
	CurrentBet    int     `json:"currentBet"`
	TotalRoundBet int     `json:"totalRoundBet"`
	Contributed   int     `json:"contributed"`
	Payout        int     `json:"payout"`
	Available     int     `json:"available"`
	Folded        bool    `json:"folded"`
	Spectating    bool    `json:"spectating"`
}

// PlayerState is the seat of the player receiving the view
type PlayerState struct {
	Hand      deck.Hand `json:"hand"`
	Score     int       `json:"score"`
	Available int       `json:"available"`
	// MinBet is the smallest amount the player could bet right now
	MinBet int `json:"minBet"`
}

// GameState is what a client sees of a session
type GameState struct {
	ID                string       `json:"id"`
	Phase             Phase        `json:"phase"`
	Round             int          `json:"round"`
	Pot               int          `json:"pot"`
	CurrentBetToMatch int          `json:"currentBetToMatch"`
	CurrentTurn       int64        `json:"currentTurn"`
	TurnDeadline      *time.Time   `json:"turnDeadline"`
	SvaraParticipants []int64      `json:"svaraParticipants"`
	Winner            int64        `json:"winner"`
	Seats             []*SeatState `json:"seats"`
	LastShowdown      *Showdown    `json:"lastShowdown"`
	Aborted           bool         `json:"aborted"`
	Version           int64        `json:"version"`
	You               *PlayerState `json:"you"`
}

// State returns the session as seen by a player
// Other seats' hands are hidden until they are shown at a showdown.
// A playerID that is not seated gets the spectator view.
func (s *Session) State(playerID int64) *GameState {
	gs := &GameState{
		ID:                s.ID,
		Phase:             s.Phase,
		Round:             s.Round,
		Pot:               s.Pot,
		CurrentBetToMatch: s.CurrentBetToMatch,
		CurrentTurn:       s.TurnPlayerID(),
		SvaraParticipants: append([]int64{}, s.SvaraParticipants...),
		Winner:            s.Winner,
		Seats:             make([]*SeatState, len(s.Seats)),
		Aborted:           s.AbortReason != "",
		Version:           s.Version,
	}

	if !s.TurnDeadline.IsZero() {
		deadline := s.TurnDeadline
		gs.TurnDeadline = &deadline
	}

	if s.LastShowdown != nil {
		gs.LastShowdown = s.Clone().LastShowdown
	}

	for i, seat := range s.Seats {
		gs.Seats[i] = &SeatState{
			PlayerID:      seat.PlayerID,
			Profile:       seat.Profile,
			Cards:         len(seat.Hand),
			CurrentBet:    seat.CurrentBet,
			TotalRoundBet: seat.TotalRoundBet,
			Contributed:   seat.Contributed,
			Payout:        seat.Payout,
			Available:     seat.Available(),
			Folded:        seat.Folded,
			Spectating:    seat.Spectating,
		}

		if seat.PlayerID != playerID {
			continue
		}

		you := &PlayerState{
			Hand:      seat.Hand.Clone(),
			Available: seat.Available(),
		}

		if len(seat.Hand) > 0 {
			you.Score = Score(seat.Hand, s.Options.Scoring)
		}

		if s.Phase == PhaseBetting && s.TurnPlayerID() == playerID {
			you.MinBet = s.minimumBet(seat)
		}

		gs.You = you
	}

	return gs
}

// minimumBet is the smallest "bet to" amount the seat may place
func (s *Session) minimumBet(seat *Seat) int {
	bet := s.CurrentBetToMatch
	if bet < s.Options.MinBet {
		bet = s.Options.MinBet
	}

	if bet <= seat.TotalRoundBet {
		bet = seat.TotalRoundBet + 1
	}

	return bet
}

// Response wraps the player's view for delivery
func (s *Session) Response(playerID int64) *protocol.Response {
	return &protocol.Response{
		Key:   protocol.KeyGame,
		Value: "seka",
		Data:  s.State(playerID),
	}
}
