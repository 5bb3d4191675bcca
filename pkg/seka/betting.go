package seka

import (
	"fmt"
	"time"

	"seka-server/internal/rng"
	"seka-server/pkg/deck"
)

// PlaceBet raises the player's round total to amount
//
// The chips added are amount minus what the seat already has in this round.
// Every active seat holding the same nonzero total ends the betting round.
func PlaceBet(s *Session, playerID int64, amount int, now time.Time) (*Session, *Outcome, error) {
	seat, err := s.actingSeat(playerID)
	if err != nil {
		return nil, nil, err
	}

	if amount < s.CurrentBetToMatch {
		return nil, nil, ErrBelowCurrentBet
	}

	if amount < s.Options.MinBet {
		return nil, nil, ErrBelowMinimumBet
	}

	added := amount - seat.TotalRoundBet
	if added <= 0 {
		return nil, nil, ErrBelowCurrentBet
	}

	if added > seat.Available() {
		return nil, nil, ErrInsufficientFunds
	}

	next := s.Clone()
	seat, _ = next.Seat(playerID)
	raised := amount > next.CurrentBetToMatch

	seat.CurrentBet = added
	seat.TotalRoundBet = amount
	seat.Contributed += added
	next.Pot += added
	if raised {
		next.CurrentBetToMatch = amount
	}
	next.Updated = now

	out := &Outcome{}
	if raised && s.CurrentBetToMatch > 0 {
		out.log(playerID, "{} raised to ${%d}", amount)
	} else if raised {
		out.log(playerID, "{} bet ${%d}", amount)
	} else {
		out.log(playerID, "{} called ${%d}", amount)
	}

	next.endTurn(now)
	return next, out, nil
}

// Fold folds the player's hand
// The last seat standing wins the pot without a showdown.
func Fold(s *Session, playerID int64, now time.Time) (*Session, *Outcome, error) {
	if _, err := s.actingSeat(playerID); err != nil {
		return nil, nil, err
	}

	out := &Outcome{}
	out.log(playerID, "{} folded")
	next := foldCurrent(s, now, out)
	return next, out, nil
}

// ExpireTurn folds the seat to act if it let its turn run out
func ExpireTurn(s *Session, now time.Time) (*Session, *Outcome, error) {
	if s.Phase != PhaseBetting {
		return nil, nil, ErrWrongPhase
	}

	if s.TurnDeadline.IsZero() || !now.After(s.TurnDeadline) {
		return nil, nil, ErrTurnNotExpired
	}

	playerID := s.TurnPlayerID()
	out := &Outcome{}
	out.log(playerID, "{} ran out of time and folded")
	next := foldCurrent(s, now, out)
	return next, out, nil
}

func foldCurrent(s *Session, now time.Time, out *Outcome) *Session {
	next := s.Clone()
	seat := next.Seats[next.CurrentTurn]
	seat.Folded = true
	seat.CurrentBet = 0
	next.Updated = now

	active := next.activeSeats()
	if len(active) == 1 {
		next.finish(active[0], now, out)
		return next
	}

	next.endTurn(now)
	return next
}

// endTurn moves to showdown if every active seat matched, else to the next seat
func (s *Session) endTurn(now time.Time) {
	if s.roundComplete() {
		s.Phase = PhaseShowdown
		s.CurrentTurn = noTurn
		s.setDeadline(now)
		return
	}

	s.CurrentTurn = s.nextActiveSeat(s.CurrentTurn)
	s.setDeadline(now)
}

func (s *Session) roundComplete() bool {
	active := s.activeSeats()
	if len(active) == 0 {
		return false
	}

	total := active[0].TotalRoundBet
	if total == 0 {
		return false
	}

	for _, seat := range active[1:] {
		if seat.TotalRoundBet != total {
			return false
		}
	}

	return true
}

// actingSeat validates that the player can act right now
func (s *Session) actingSeat(playerID int64) (*Seat, error) {
	if s.Phase == PhaseFinished {
		return nil, ErrSessionFinished
	}

	if s.Phase != PhaseBetting {
		return nil, ErrWrongPhase
	}

	seat, ok := s.Seat(playerID)
	if !ok {
		return nil, ErrNotSeated
	}

	if seat.Spectating {
		return nil, ErrNotInRound
	}

	if seat.Folded {
		return nil, ErrAlreadyFolded
	}

	if s.TurnPlayerID() != playerID {
		return nil, ErrNotYourTurn
	}

	return seat, nil
}

// ResolveShowdown scores every active hand
// A unique best hand wins the pot, a tie starts a svara between the tied seats.
func ResolveShowdown(s *Session, now time.Time) (*Session, *Outcome, error) {
	if s.Phase != PhaseShowdown {
		return nil, nil, ErrWrongPhase
	}

	next := s.Clone()
	active := next.activeSeats()
	sd := &Showdown{
		Round:  next.Round,
		Hands:  make(map[int64]deck.Hand, len(active)),
		Scores: make(map[int64]int, len(active)),
	}

	best := -1
	for _, seat := range active {
		score := Score(seat.Hand, next.Options.Scoring)
		sd.Hands[seat.PlayerID] = seat.Hand.Clone()
		sd.Scores[seat.PlayerID] = score

		if score > best {
			best = score
			sd.Winners = sd.Winners[:0]
		}

		if score == best {
			sd.Winners = append(sd.Winners, seat.PlayerID)
		}
	}

	if len(sd.Winners) == 0 {
		return nil, nil, InvariantError{SessionID: s.ID, Reason: "showdown without hands"}
	}

	next.LastShowdown = sd
	next.Updated = now

	out := &Outcome{}
	for _, seat := range active {
		msg := out.log(seat.PlayerID, "{} shows %d", sd.Scores[seat.PlayerID])
		msg.Cards = seat.Hand.Clone()
	}

	if len(sd.Winners) == 1 {
		winner, _ := next.Seat(sd.Winners[0])
		next.finish(winner, now, out)
		return next, out, nil
	}

	next.Phase = PhaseSvara
	next.SvaraParticipants = append([]int64{}, sd.Winners...)
	next.CurrentBetToMatch = next.Pot * next.Options.SvaraStakePercent / 100
	next.CurrentTurn = noTurn
	next.TurnDeadline = time.Time{}
	out.logGroup(sd.Winners, "svara! {} tied with %d", best)
	return next, out, nil
}

// finish pays the whole pot to the winner
func (s *Session) finish(winner *Seat, now time.Time, out *Outcome) {
	winner.Payout += s.Pot
	out.log(winner.PlayerID, "{} won ${%d}", s.Pot)

	s.Winner = winner.PlayerID
	s.Pot = 0
	s.Phase = PhaseFinished
	s.CurrentTurn = noTurn
	s.TurnDeadline = time.Time{}
	s.Updated = now
}

// Abort ends the session and returns every seat's contribution
func Abort(s *Session, reason string, now time.Time) (*Session, *Outcome, error) {
	if s.Phase == PhaseFinished {
		return nil, nil, ErrSessionFinished
	}

	next := s.Clone()
	for _, seat := range next.Seats {
		seat.Payout = seat.Contributed
	}

	next.Pot = 0
	next.Winner = 0
	next.Phase = PhaseFinished
	next.CurrentTurn = noTurn
	next.TurnDeadline = time.Time{}
	next.AbortReason = reason
	next.Updated = now

	out := &Outcome{}
	out.log(0, "the game was cancelled and all bets were refunded")
	return next, out, nil
}

// Advance performs the dealer's next step, if there is one
// ErrNothingToAdvance means the session waits on a player (or is finished).
func Advance(s *Session, gen rng.Generator, now time.Time) (*Session, *Outcome, error) {
	switch s.Phase {
	case PhaseForming:
		return StartDealing(s, now)
	case PhaseDealing, PhaseSvara:
		return DealRound(s, gen, now)
	case PhaseShowdown:
		return ResolveShowdown(s, now)
	case PhaseBetting, PhaseFinished:
		return nil, nil, ErrNothingToAdvance
	}

	return nil, nil, InvariantError{SessionID: s.ID, Reason: fmt.Sprintf("unknown phase %q", s.Phase)}
}

// MarkSettled records that the ledger has the session's results
func MarkSettled(s *Session, now time.Time) (*Session, error) {
	if s.Phase != PhaseFinished {
		return nil, ErrWrongPhase
	}

	next := s.Clone()
	next.Settled = true
	next.Updated = now
	return next, nil
}

// NetResults returns each player's gain (positive) or loss (negative)
func NetResults(s *Session) map[int64]int {
	results := make(map[int64]int, len(s.Seats))
	for _, seat := range s.Seats {
		results[seat.PlayerID] = seat.Net()
	}

	return results
}
