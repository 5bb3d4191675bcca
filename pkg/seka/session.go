package seka

import (
	"fmt"
	"time"

	"seka-server/internal/rng"
	"seka-server/pkg/deck"
	"seka-server/pkg/protocol"
)

// SchemaVersion is the version of the stored session layout
const SchemaVersion = 1

// Phase is the phase of a session
type Phase string

// phases
const (
	PhaseForming  Phase = "forming"
	PhaseDealing  Phase = "dealing"
	PhaseBetting  Phase = "betting"
	PhaseShowdown Phase = "showdown"
	PhaseSvara    Phase = "svara"
	PhaseFinished Phase = "finished"
)

// noTurn is the CurrentTurn value when nobody is expected to act
const noTurn = -1

// Showdown is the result of the last showdown
type Showdown struct {
	Round   int                 `json:"round"`
	Hands   map[int64]deck.Hand `json:"hands"`
	Scores  map[int64]int       `json:"scores"`
	Winners []int64             `json:"winners"`
}

// Session is the authoritative state of a single game
type Session struct {
	ID      string `json:"id"`
	Schema  int    `json:"schema"`
	Version int64  `json:"version"`
	Phase   Phase  `json:"phase"`

	Seats             []*Seat `json:"seats"`
	Pot               int     `json:"pot"`
	CurrentBetToMatch int     `json:"currentBetToMatch"`
	// CurrentTurn is the index of the seat to act, -1 if nobody
	CurrentTurn       int     `json:"currentTurn"`
	Dealer            int     `json:"dealer"`
	SvaraParticipants []int64 `json:"svaraParticipants"`
	Round             int     `json:"round"`
	Winner            int64   `json:"winner,omitempty"`

	LastShowdown *Showdown `json:"lastShowdown,omitempty"`
	Options      Options   `json:"options"`

	TurnDeadline time.Time `json:"turnDeadline"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`

	// Settled is true once every seat's net result went through the ledger
	Settled     bool   `json:"settled"`
	AbortReason string `json:"abortReason,omitempty"`
}

// Outcome describes what a transition did
type Outcome struct {
	Logs []*protocol.LogMessage
}

func (o *Outcome) log(playerID int64, format string, a ...interface{}) *protocol.LogMessage {
	msg := protocol.SimpleLogMessage(playerID, format, a...)
	o.Logs = append(o.Logs, msg)
	return msg
}

func (o *Outcome) logGroup(playerIDs []int64, format string, a ...interface{}) {
	ids := append([]int64{}, playerIDs...)
	o.Logs = append(o.Logs, protocol.NewLogMessage(ids, format, a...))
}

// FormSession seats the entrants in a new session
func FormSession(id string, entrants []Entrant, opts Options, now time.Time) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if len(entrants) < opts.MinPlayers || len(entrants) > opts.MaxPlayers {
		return nil, PlayerCountError{
			Min: opts.MinPlayers,
			Max: opts.MaxPlayers,
			Got: len(entrants),
		}
	}

	seen := make(map[int64]bool)
	seats := make([]*Seat, len(entrants))
	for i, e := range entrants {
		if seen[e.PlayerID] {
			return nil, fmt.Errorf("player %d cannot be seated twice", e.PlayerID)
		}
		seen[e.PlayerID] = true

		seats[i] = &Seat{
			PlayerID:       e.PlayerID,
			Profile:        e.Profile,
			BalanceAtEntry: e.Balance,
			Order:          i,
		}
	}

	return &Session{
		ID:                id,
		Schema:            SchemaVersion,
		Phase:             PhaseForming,
		Seats:             seats,
		CurrentTurn:       noTurn,
		Dealer:            len(seats) - 1,
		SvaraParticipants: []int64{},
		Options:           opts,
		Created:           now,
		Updated:           now,
	}, nil
}

// StartDealing moves a formed session to dealing
func StartDealing(s *Session, now time.Time) (*Session, *Outcome, error) {
	if s.Phase != PhaseForming {
		return nil, nil, ErrWrongPhase
	}

	next := s.Clone()
	next.Phase = PhaseDealing
	next.Updated = now

	out := &Outcome{}
	out.log(0, "a new game of seka with %d players", len(next.Seats))
	return next, out, nil
}

// DealRound deals a fresh deck to every seat in the round and opens betting
// In a svara only the tied seats are dealt in, every other seat spectates.
func DealRound(s *Session, gen rng.Generator, now time.Time) (*Session, *Outcome, error) {
	if s.Phase != PhaseDealing && s.Phase != PhaseSvara {
		return nil, nil, ErrWrongPhase
	}

	next := s.Clone()
	svara := next.Phase == PhaseSvara
	if svara {
		for _, seat := range next.Seats {
			in := next.isSvaraParticipant(seat.PlayerID)
			seat.Folded = !in && seat.Folded
			seat.Spectating = !in
		}
	}

	d := deck.New(gen)
	for _, seat := range next.Seats {
		seat.CurrentBet = 0
		seat.TotalRoundBet = 0
		seat.Hand = nil

		if !seat.Active() {
			continue
		}

		cards, err := d.Deal(HandSize)
		if err != nil {
			return nil, nil, fmt.Errorf("session %s: %w", s.ID, err)
		}

		seat.Hand = cards
	}

	if !svara {
		next.CurrentBetToMatch = 0
	}

	next.Round++
	next.Phase = PhaseBetting
	next.Updated = now
	next.CurrentTurn = next.nextActiveSeat(next.Dealer)
	if next.CurrentTurn == noTurn {
		return nil, nil, InvariantError{SessionID: s.ID, Reason: "no seat to deal to"}
	}
	next.setDeadline(now)

	out := &Outcome{}
	if svara {
		out.logGroup(next.SvaraParticipants, "{} play a svara for ${%d}", next.Pot)
	}
	out.log(0, "round %d dealt", next.Round)
	return next, out, nil
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	c := *s
	c.Seats = make([]*Seat, len(s.Seats))
	for i, seat := range s.Seats {
		c.Seats[i] = seat.clone()
	}

	c.SvaraParticipants = append([]int64{}, s.SvaraParticipants...)

	if s.LastShowdown != nil {
		sd := *s.LastShowdown
		sd.Hands = make(map[int64]deck.Hand, len(s.LastShowdown.Hands))
		for id, h := range s.LastShowdown.Hands {
			sd.Hands[id] = h.Clone()
		}
		sd.Scores = make(map[int64]int, len(s.LastShowdown.Scores))
		for id, score := range s.LastShowdown.Scores {
			sd.Scores[id] = score
		}
		sd.Winners = append([]int64{}, s.LastShowdown.Winners...)
		c.LastShowdown = &sd
	}

	return &c
}

// Seat returns the seat of the player
func (s *Session) Seat(playerID int64) (*Seat, bool) {
	for _, seat := range s.Seats {
		if seat.PlayerID == playerID {
			return seat, true
		}
	}

	return nil, false
}

// PlayerIDs returns the seated players in seat order
func (s *Session) PlayerIDs() []int64 {
	ids := make([]int64, len(s.Seats))
	for i, seat := range s.Seats {
		ids[i] = seat.PlayerID
	}

	return ids
}

// TurnPlayerID returns the player to act, or 0 if nobody
func (s *Session) TurnPlayerID() int64 {
	if s.CurrentTurn < 0 || s.CurrentTurn >= len(s.Seats) {
		return 0
	}

	return s.Seats[s.CurrentTurn].PlayerID
}

// IsFinished returns true if the session is over
func (s *Session) IsFinished() bool {
	return s.Phase == PhaseFinished
}

func (s *Session) isSvaraParticipant(playerID int64) bool {
	for _, id := range s.SvaraParticipants {
		if id == playerID {
			return true
		}
	}

	return false
}

func (s *Session) activeSeats() []*Seat {
	active := make([]*Seat, 0, len(s.Seats))
	for _, seat := range s.Seats {
		if seat.Active() {
			active = append(active, seat)
		}
	}

	return active
}

// nextActiveSeat returns the index of the first active seat after from
func (s *Session) nextActiveSeat(from int) int {
	n := len(s.Seats)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if s.Seats[idx].Active() {
			return idx
		}
	}

	return noTurn
}

func (s *Session) setDeadline(now time.Time) {
	if s.CurrentTurn == noTurn {
		s.TurnDeadline = time.Time{}
		return
	}

	s.TurnDeadline = now.Add(s.Options.TurnTimeout)
}

// CheckInvariants verifies the dealt cards, chip accounting and turn of the session
func CheckInvariants(s *Session) error {
	contributed, paid := 0, 0
	var dealt deck.Hand
	for _, seat := range s.Seats {
		for _, card := range seat.Hand {
			if dealt.HasCard(card) {
				return InvariantError{SessionID: s.ID, Reason: fmt.Sprintf("card %s was dealt twice", deck.CardToString(card))}
			}

			dealt = append(dealt, card)
		}

		if seat.Contributed < 0 || seat.Payout < 0 {
			return InvariantError{SessionID: s.ID, Reason: fmt.Sprintf("negative chips for player %d", seat.PlayerID)}
		}

		if seat.Contributed > seat.BalanceAtEntry {
			return InvariantError{SessionID: s.ID, Reason: fmt.Sprintf("player %d bet more than they had", seat.PlayerID)}
		}

		contributed += seat.Contributed
		paid += seat.Payout
	}

	if s.Pot < 0 || contributed != s.Pot+paid {
		return InvariantError{SessionID: s.ID, Reason: fmt.Sprintf("pot %d and payouts %d do not match contributions %d", s.Pot, paid, contributed)}
	}

	if s.Phase == PhaseBetting {
		if s.CurrentTurn < 0 || s.CurrentTurn >= len(s.Seats) || !s.Seats[s.CurrentTurn].Active() {
			return InvariantError{SessionID: s.ID, Reason: "betting without an active seat to act"}
		}
	}

	return nil
}
