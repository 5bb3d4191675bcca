package room

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"seka-server/internal/rng"
	"seka-server/pkg/ledger"
	"seka-server/pkg/protocol"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

// Ledger moves chips in and out of player balances
type Ledger interface {
	Debit(ctx context.Context, playerID int64, amount int, reference, note string) error
	Credit(ctx context.Context, playerID int64, amount int, reference, note string) error
	BalanceOf(ctx context.Context, playerID int64) (int, error)
}

// Config controls retries
type Config struct {
	// RetryAttempts is how many times a store call is retried while the store is unavailable
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
	// ConflictRetries bounds the re-reads of a retried action that keeps losing the race
	ConflictRetries int `yaml:"conflictRetries"`
	// TickInterval is how often turn timeouts are checked
	TickInterval time.Duration `yaml:"tickInterval"`
}

// DefaultConfig returns the default coordinator config
func DefaultConfig() Config {
	return Config{
		RetryAttempts:   5,
		RetryBackoff:    50 * time.Millisecond,
		ConflictRetries: 20,
		TickInterval:    time.Second,
	}
}

// maxAdvanceSteps bounds the dealer steps applied in one Drive call
const maxAdvanceSteps = 16

type transition func(s *seka.Session) (*seka.Session, *seka.Outcome, error)

// Coordinator applies every change to a session
// It keeps no state of its own: each change is read, applied and written back
// with a compare-and-set, so any number of processes can share sessions.
type Coordinator struct {
	store    store.Store
	ledger   Ledger
	notifier Notifier
	gen      rng.Generator
	logger   logrus.FieldLogger
	config   Config
	now      func() time.Time
}

// NewCoordinator returns a coordinator
func NewCoordinator(st store.Store, l Ledger, n Notifier, gen rng.Generator, logger logrus.FieldLogger, cfg Config) *Coordinator {
	return &Coordinator{
		store:    st,
		ledger:   l,
		notifier: n,
		gen:      gen,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// HandleAction applies a player's action to their session
func (c *Coordinator) HandleAction(ctx context.Context, sessionID string, playerID int64, msg *protocol.PayloadIn) error {
	switch msg.Action {
	case "bet":
		amount, ok := msg.AdditionalData.GetInt("amount")
		if !ok {
			return ErrMissingAmount
		}

		// a bet moves chips, so a lost race is reported instead of replayed
		return c.apply(ctx, sessionID, false, func(s *seka.Session) (*seka.Session, *seka.Outcome, error) {
			return seka.PlaceBet(s, playerID, amount, c.now())
		})
	case "fold":
		return c.apply(ctx, sessionID, true, func(s *seka.Session) (*seka.Session, *seka.Outcome, error) {
			return seka.Fold(s, playerID, c.now())
		})
	}

	return ErrUnknownAction
}

// HandlePlayerAction applies the action to the session the player is seated in
func (c *Coordinator) HandlePlayerAction(ctx context.Context, playerID int64, msg *protocol.PayloadIn) error {
	sessionID, err := c.sessionOf(ctx, playerID)
	if err != nil {
		return err
	}

	return c.HandleAction(ctx, sessionID, playerID, msg)
}

// State returns the player's view of their current session
func (c *Coordinator) State(ctx context.Context, playerID int64) (*seka.GameState, error) {
	sessionID, err := c.sessionOf(ctx, playerID)
	if err != nil {
		return nil, err
	}

	s, err := c.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return s.State(playerID), nil
}

func (c *Coordinator) sessionOf(ctx context.Context, playerID int64) (string, error) {
	var sessionID string
	err := c.retry(ctx, func() error {
		var err error
		sessionID, err = c.store.SessionOf(ctx, playerID)
		return err
	})
	if err != nil {
		return "", err
	}

	if sessionID == "" {
		return "", ErrNotPlaying
	}

	return sessionID, nil
}

// Start tells the players they were matched and deals the first round
func (c *Coordinator) Start(ctx context.Context, sessionID string) error {
	s, err := c.get(ctx, sessionID)
	if err != nil {
		return err
	}

	c.notifier.Broadcast(sessionID, s.PlayerIDs(), &protocol.Response{
		Key:   protocol.KeyMatched,
		Value: sessionID,
	})

	return c.Drive(ctx, sessionID)
}

// Abort cancels the session and refunds every seat
func (c *Coordinator) Abort(ctx context.Context, sessionID, reason string) error {
	_, err := c.mutate(ctx, sessionID, true, func(s *seka.Session) (*seka.Session, *seka.Outcome, error) {
		return seka.Abort(s, reason, c.now())
	})
	if err != nil && !errors.Is(err, seka.ErrSessionFinished) {
		return err
	}

	return c.Drive(ctx, sessionID)
}

// Tick expires overdue turns and drives every active session forward
func (c *Coordinator) Tick(ctx context.Context) error {
	var ids []string
	err := c.retry(ctx, func() error {
		var err error
		ids, err = c.store.ActiveSessions(ctx)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := c.expireTurn(ctx, id); err != nil {
			c.logger.WithError(err).WithField("session", id).Error("could not expire turn")
			continue
		}

		if err := c.Drive(ctx, id); err != nil {
			c.logger.WithError(err).WithField("session", id).Error("could not drive session")
		}
	}

	return nil
}

func (c *Coordinator) expireTurn(ctx context.Context, sessionID string) error {
	s, err := c.get(ctx, sessionID)
	if err != nil {
		return err
	}

	if s.Phase != seka.PhaseBetting || s.TurnDeadline.IsZero() || !c.now().After(s.TurnDeadline) {
		return nil
	}

	// an implicit fold goes through the same compare-and-set as a real one
	err = c.apply(ctx, sessionID, true, func(s *seka.Session) (*seka.Session, *seka.Outcome, error) {
		return seka.ExpireTurn(s, c.now())
	})
	if errors.Is(err, seka.ErrTurnNotExpired) || errors.Is(err, seka.ErrWrongPhase) || errors.Is(err, seka.ErrSessionFinished) {
		return nil
	}

	return err
}

// Drive applies dealer steps until the session waits on a player, then
// settles it if it is finished
func (c *Coordinator) Drive(ctx context.Context, sessionID string) error {
	for i := 0; i < maxAdvanceSteps; i++ {
		_, err := c.mutate(ctx, sessionID, true, func(s *seka.Session) (*seka.Session, *seka.Outcome, error) {
			return seka.Advance(s, c.gen, c.now())
		})
		if errors.Is(err, seka.ErrNothingToAdvance) {
			return c.settle(ctx, sessionID)
		}

		if err != nil {
			if fatal(err) {
				return c.fail(ctx, sessionID, err)
			}

			return err
		}
	}

	c.logger.WithField("session", sessionID).Warn("session did not settle after many dealer steps")
	return nil
}

// apply mutates the session and drives it forward
func (c *Coordinator) apply(ctx context.Context, sessionID string, retryConflicts bool, fn transition) error {
	if _, err := c.mutate(ctx, sessionID, retryConflicts, fn); err != nil {
		if fatal(err) {
			return c.fail(ctx, sessionID, err)
		}

		return err
	}

	// the action committed, an underfunded loser is settled by a later sweep
	if err := c.Drive(ctx, sessionID); err != nil && !errors.Is(err, ErrUnderfunded) {
		return err
	}

	return nil
}

// fail aborts a session that cannot continue
func (c *Coordinator) fail(ctx context.Context, sessionID string, cause error) error {
	c.logger.WithError(cause).WithField("session", sessionID).Error("aborting session")
	if err := c.Abort(ctx, sessionID, cause.Error()); err != nil {
		return fmt.Errorf("could not abort session after %v: %w", cause, err)
	}

	return nil
}

// mutate is the compare-and-set loop every change goes through
// Players are only notified of committed state.
func (c *Coordinator) mutate(ctx context.Context, sessionID string, retryConflicts bool, fn transition) (*seka.Session, error) {
	for attempt := 0; ; attempt++ {
		s, err := c.get(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		next, out, err := fn(s)
		if err != nil {
			return nil, err
		}

		if err := seka.CheckInvariants(next); err != nil {
			return nil, err
		}

		var swapped, uncertain bool
		err = c.retry(ctx, func() error {
			var err error
			swapped, err = c.store.CompareAndSet(ctx, sessionID, s.Version, next)
			if errors.Is(err, store.ErrUnavailable) {
				uncertain = true
			}

			return err
		})
		if err != nil {
			return nil, err
		}

		// a write can commit even though its reply was lost
		if !swapped && uncertain {
			if swapped, err = c.committed(ctx, sessionID, s.Version, next); err != nil {
				return nil, err
			}
		}

		if swapped {
			c.publish(next, out)
			return next, nil
		}

		log := c.logger.WithFields(logrus.Fields{
			"session": sessionID,
			"version": s.Version,
		})

		if !retryConflicts || attempt >= c.config.ConflictRetries {
			log.Debug("lost the race for the session")
			return nil, ErrConflict
		}

		log.Debug("lost the race for the session, retrying")
	}
}

// committed reports whether the stored session is next written at expected+1
func (c *Coordinator) committed(ctx context.Context, sessionID string, expected int64, next *seka.Session) (bool, error) {
	current, err := c.get(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if current.Version != expected+1 {
		return false, nil
	}

	want := next.Clone()
	want.Version = current.Version
	a, err := json.Marshal(current.Clone())
	if err != nil {
		return false, err
	}

	b, err := json.Marshal(want)
	if err != nil {
		return false, err
	}

	if !bytes.Equal(a, b) {
		return false, nil
	}

	c.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"version": current.Version,
	}).Warn("store reply was lost but the write committed")
	next.Version = current.Version
	return true, nil
}

func (c *Coordinator) publish(s *seka.Session, out *seka.Outcome) {
	playerIDs := s.PlayerIDs()
	if out != nil && len(out.Logs) > 0 {
		c.notifier.Broadcast(s.ID, playerIDs, protocol.LogResponse(out.Logs...))
	}

	for _, playerID := range playerIDs {
		c.notifier.SendTo(playerID, s.Response(playerID))
	}
}

func (c *Coordinator) get(ctx context.Context, sessionID string) (*seka.Session, error) {
	var s *seka.Session
	err := c.retry(ctx, func() error {
		var err error
		s, err = c.store.Get(ctx, sessionID)
		return err
	})

	return s, err
}

// retry calls fn again with exponential backoff while the store is unavailable
func (c *Coordinator) retry(ctx context.Context, fn func() error) error {
	backoff := c.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, store.ErrUnavailable) || attempt >= c.config.RetryAttempts {
			return err
		}

		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("store unavailable, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}
}

// settle moves each seat's net result through the ledger, once
func (c *Coordinator) settle(ctx context.Context, sessionID string) error {
	s, err := c.get(ctx, sessionID)
	if err != nil {
		return err
	}

	if !s.IsFinished() || s.Settled {
		return nil
	}

	log := c.logger.WithField("session", sessionID)
	results := seka.NetResults(s)

	// losses first so the chips exist before anyone is paid
	var short []int64
	for _, debit := range []bool{true, false} {
		if !debit && len(short) > 0 {
			return fmt.Errorf("%w: players %v", ErrUnderfunded, short)
		}

		for _, playerID := range s.PlayerIDs() {
			net := results[playerID]
			ref := ledger.Reference(sessionID, playerID)

			switch {
			case debit && net < 0:
				err = c.ledger.Debit(ctx, playerID, -net, ref, fmt.Sprintf("lost game %s", sessionID))
			case !debit && net > 0:
				err = c.ledger.Credit(ctx, playerID, net, ref, fmt.Sprintf("won game %s", sessionID))
			default:
				continue
			}

			if errors.Is(err, ledger.ErrInsufficientFunds) {
				log.WithField("player", playerID).WithField("amount", net).Error("player cannot cover the loss")
				short = append(short, playerID)
				continue
			}

			if err != nil {
				return fmt.Errorf("could not settle player %d: %w", playerID, err)
			}
		}
	}

	_, err = c.mutate(ctx, sessionID, true, func(s *seka.Session) (*seka.Session, *seka.Outcome, error) {
		if s.Settled {
			return nil, nil, seka.ErrNothingToAdvance
		}

		next, err := seka.MarkSettled(s, c.now())
		return next, nil, err
	})
	if err != nil && !errors.Is(err, seka.ErrNothingToAdvance) {
		return err
	}

	log.Info("session settled")
	for _, playerID := range s.PlayerIDs() {
		balance, err := c.ledger.BalanceOf(ctx, playerID)
		if err != nil {
			log.WithError(err).WithField("player", playerID).Warn("could not read balance")
			continue
		}

		c.notifier.SendTo(playerID, &protocol.Response{
			Key:  protocol.KeyBalance,
			Data: balance,
		})
	}

	return nil
}
