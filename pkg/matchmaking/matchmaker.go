// Package matchmaking groups queued players into new sessions
package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"seka-server/internal/util"
	"seka-server/pkg/protocol"
	"seka-server/pkg/room"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

// ErrBalanceTooLow is returned when a player cannot cover the minimum bet
var ErrBalanceTooLow = store.UserError("your balance is too low to play")

// Ledger opens accounts for new players
type Ledger interface {
	EnsureAccount(ctx context.Context, playerID int64) (int, error)
}

// Starter runs formed sessions
type Starter interface {
	Start(ctx context.Context, sessionID string) error
	Abort(ctx context.Context, sessionID, reason string) error
	Drive(ctx context.Context, sessionID string) error
}

// Config controls how often and how patiently players are matched
type Config struct {
	MatchInterval time.Duration `yaml:"matchInterval"`
	// QueueTimeout is how long the oldest player waits for a full table
	QueueTimeout time.Duration `yaml:"queueTimeout"`
	// QueueEntryTTL drops players that have waited too long, zero keeps them
	QueueEntryTTL time.Duration `yaml:"queueEntryTTL"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	// StaleGrace is how long a session may sit between dealer steps
	StaleGrace time.Duration `yaml:"staleGrace"`
}

// DefaultConfig returns the default matchmaking config
func DefaultConfig() Config {
	return Config{
		MatchInterval: time.Second,
		QueueTimeout:  15 * time.Second,
		QueueEntryTTL: 10 * time.Minute,
		SweepInterval: 30 * time.Second,
		StaleGrace:    time.Minute,
	}
}

// Matchmaker admits players to the queue and forms sessions from it
// Any number of processes may run a matchmaker against the same store.
type Matchmaker struct {
	store    store.Store
	ledger   Ledger
	starter  Starter
	notifier room.Notifier
	options  seka.Options
	config   Config
	logger   logrus.FieldLogger
	now      func() time.Time
}

// New returns a matchmaker
func New(st store.Store, l Ledger, starter Starter, n room.Notifier, opts seka.Options, cfg Config, logger logrus.FieldLogger) *Matchmaker {
	return &Matchmaker{
		store:    st,
		ledger:   l,
		starter:  starter,
		notifier: n,
		options:  opts,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Enqueue adds the player to the queue
func (m *Matchmaker) Enqueue(ctx context.Context, playerID int64, profile seka.Profile, rating *int) error {
	if profile.Name == "" {
		profile.Name = util.GetRandomName()
	}

	balance, err := m.ledger.EnsureAccount(ctx, playerID)
	if err != nil {
		return err
	}

	if balance < m.options.MinBet {
		return ErrBalanceTooLow
	}

	if err := m.store.Enqueue(ctx, &store.QueueEntry{
		PlayerID:    playerID,
		Profile:     profile,
		RequestedAt: m.now(),
		Rating:      rating,
	}); err != nil {
		return err
	}

	m.logger.WithField("player", playerID).Info("player joined the queue")
	m.notifier.SendTo(playerID, &protocol.Response{
		Key:   protocol.KeyQueue,
		Value: "joined",
		Data:  profile,
	})

	return nil
}

// Dequeue removes the player from the queue
// Leaving a queue you are not in is not an error.
func (m *Matchmaker) Dequeue(ctx context.Context, playerID int64) error {
	removed, err := m.store.Dequeue(ctx, playerID)
	if err != nil {
		return err
	}

	if removed {
		m.notifier.SendTo(playerID, &protocol.Response{
			Key:   protocol.KeyQueue,
			Value: "left",
		})
	}

	return nil
}

// Run matches and sweeps until the context is cancelled
func (m *Matchmaker) Run(ctx context.Context) {
	match := time.NewTicker(m.config.MatchInterval)
	defer match.Stop()

	sweep := time.NewTicker(m.config.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-match.C:
			if _, err := m.Match(ctx); err != nil {
				m.logger.WithError(err).Error("could not match players")
			}
		case <-sweep.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.WithError(err).Error("could not sweep sessions")
			}
		}
	}
}

// Match forms as many sessions as the queue allows and returns how many were started
func (m *Matchmaker) Match(ctx context.Context) (int, error) {
	entries, err := m.store.Queue(ctx)
	if err != nil {
		return 0, err
	}

	entries = m.dropExpired(ctx, entries)

	formed := 0
	for {
		group := m.nextGroup(entries)
		if group == nil {
			return formed, nil
		}

		entries = entries[len(group):]
		s, err := m.form(ctx, group)
		if errors.Is(err, store.ErrQueueChanged) {
			// another matcher took someone, the next pass sees the new queue
			m.logger.Debug("queue changed while matching")
			return formed, nil
		}

		if err != nil {
			return formed, err
		}

		formed++
		if err := m.starter.Start(ctx, s.ID); err != nil {
			// the sweeper will abort the session if it never gets going
			m.logger.WithError(err).WithField("session", s.ID).Error("could not start session")
		}
	}
}

// nextGroup returns the oldest entries that should play together, or nil
func (m *Matchmaker) nextGroup(entries []*store.QueueEntry) []*store.QueueEntry {
	if len(entries) < m.options.MinPlayers {
		return nil
	}

	if len(entries) >= m.options.MaxPlayers {
		return entries[:m.options.MaxPlayers]
	}

	if m.now().Sub(entries[0].RequestedAt) >= m.config.QueueTimeout {
		return entries
	}

	return nil
}

func (m *Matchmaker) dropExpired(ctx context.Context, entries []*store.QueueEntry) []*store.QueueEntry {
	if m.config.QueueEntryTTL <= 0 {
		return entries
	}

	kept := entries[:0]
	for _, entry := range entries {
		if m.now().Sub(entry.RequestedAt) < m.config.QueueEntryTTL {
			kept = append(kept, entry)
			continue
		}

		removed, err := m.store.Dequeue(ctx, entry.PlayerID)
		if err != nil {
			m.logger.WithError(err).WithField("player", entry.PlayerID).Warn("could not drop expired queue entry")
			continue
		}

		if removed {
			m.logger.WithField("player", entry.PlayerID).Info("queue entry expired")
			m.notifier.SendTo(entry.PlayerID, &protocol.Response{
				Key:   protocol.KeyQueue,
				Value: "expired",
			})
		}
	}

	return kept
}

func (m *Matchmaker) form(ctx context.Context, group []*store.QueueEntry) (*seka.Session, error) {
	entrants := make([]seka.Entrant, len(group))
	playerIDs := make([]int64, len(group))
	for i, entry := range group {
		balance, err := m.ledger.EnsureAccount(ctx, entry.PlayerID)
		if err != nil {
			return nil, err
		}

		entrants[i] = seka.Entrant{
			PlayerID: entry.PlayerID,
			Profile:  entry.Profile,
			Balance:  balance,
		}
		playerIDs[i] = entry.PlayerID
	}

	s, err := seka.FormSession(uuid.NewString(), entrants, m.options, m.now())
	if err != nil {
		return nil, err
	}

	if err := m.store.Promote(ctx, playerIDs, s); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"players": playerIDs,
	}).Info("session formed")

	return s, nil
}

// Sweep aborts sessions that stopped making progress and settles finished
// sessions whose settlement was interrupted. It returns how many were aborted.
func (m *Matchmaker) Sweep(ctx context.Context) (int, error) {
	ids, err := m.store.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	aborted := 0
	for _, id := range ids {
		log := m.logger.WithField("session", id)
		s, err := m.store.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}

		if err != nil {
			return aborted, err
		}

		switch {
		case s.IsFinished():
			if s.Settled {
				continue
			}

			log.Warn("settling an unsettled session")
			if err := m.starter.Drive(ctx, id); err != nil {
				log.WithError(err).Error("could not settle session")
			}
		case m.stalled(s):
			log.WithField("phase", s.Phase).Warn("aborting stalled session")
			if err := m.starter.Abort(ctx, id, "the game stalled"); err != nil {
				log.WithError(err).Error("could not abort session")
				continue
			}

			aborted++
		}
	}

	return aborted, nil
}

// stalled returns true for a session stuck between dealer steps
// Betting sessions are left to the turn timeout.
func (m *Matchmaker) stalled(s *seka.Session) bool {
	switch s.Phase {
	case seka.PhaseForming, seka.PhaseDealing, seka.PhaseSvara:
		return m.now().Sub(s.Updated) > m.config.StaleGrace
	}

	return false
}
