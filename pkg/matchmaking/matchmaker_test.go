package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seka-server/internal/rng"
	"seka-server/pkg/deck"
	"seka-server/pkg/ledger"
	"seka-server/pkg/protocol"
	"seka-server/pkg/room"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

var cbg = context.Background()

type recorder struct {
	mu   sync.Mutex
	sent map[int64][]*protocol.Response
}

func (r *recorder) SendTo(playerID int64, res *protocol.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent == nil {
		r.sent = make(map[int64][]*protocol.Response)
	}

	r.sent[playerID] = append(r.sent[playerID], res)
}

func (r *recorder) Broadcast(_ string, playerIDs []int64, res *protocol.Response) {
	for _, playerID := range playerIDs {
		r.SendTo(playerID, res)
	}
}

func (r *recorder) values(playerID int64, key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var values []string
	for _, res := range r.sent[playerID] {
		if res.Key == key {
			values = append(values, res.Value)
		}
	}

	return values
}

type starter struct {
	started []string
	aborted map[string]string
	driven  []string
}

func (s *starter) Start(_ context.Context, sessionID string) error {
	s.started = append(s.started, sessionID)
	return nil
}

func (s *starter) Abort(_ context.Context, sessionID, reason string) error {
	if s.aborted == nil {
		s.aborted = make(map[string]string)
	}

	s.aborted[sessionID] = reason
	return nil
}

func (s *starter) Drive(_ context.Context, sessionID string) error {
	s.driven = append(s.driven, sessionID)
	return nil
}

type fixture struct {
	store  *store.Memory
	ledger *ledger.Memory
	sent   *recorder
	mm     *Matchmaker
	clock  time.Time
}

// newFixture returns a matchmaker whose clock only moves when the test moves it
func newFixture(st Starter) *fixture {
	f := &fixture{
		store:  store.NewMemory(),
		ledger: ledger.NewMemory(ledger.DefaultStartingBalance),
		sent:   &recorder{},
		clock:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if st == nil {
		st = room.NewCoordinator(f.store, f.ledger, f.sent, rng.NewSeeded(1), logrus.StandardLogger(), room.DefaultConfig())
	}

	f.mm = New(f.store, f.ledger, st, f.sent, seka.DefaultOptions(), DefaultConfig(), logrus.StandardLogger())
	f.mm.now = func() time.Time {
		return f.clock
	}

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// enqueue queues each player one millisecond apart
func (f *fixture) enqueue(t *testing.T, playerIDs ...int64) {
	t.Helper()

	for _, playerID := range playerIDs {
		require.NoError(t, f.mm.Enqueue(cbg, playerID, seka.Profile{}, nil))
		f.advance(time.Millisecond)
	}
}

func (f *fixture) queued(t *testing.T) []int64 {
	t.Helper()

	entries, err := f.store.Queue(cbg)
	require.NoError(t, err)

	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.PlayerID
	}

	return ids
}

func TestMatchmaker_Enqueue(t *testing.T) {
	a := assert.New(t)
	f := newFixture(&starter{})

	a.NoError(f.mm.Enqueue(cbg, 1, seka.Profile{Name: "Ann"}, nil))
	a.NoError(f.mm.Enqueue(cbg, 2, seka.Profile{}, nil))

	entries, err := f.store.Queue(cbg)
	a.NoError(err)
	a.Len(entries, 2)
	a.Equal("Ann", entries[0].Profile.Name)
	a.NotEmpty(entries[1].Profile.Name)
	a.Equal([]string{"joined"}, f.sent.values(1, protocol.KeyQueue))

	balance, err := f.ledger.BalanceOf(cbg, 2)
	a.NoError(err)
	a.Equal(ledger.DefaultStartingBalance, balance)

	// queueing twice changes nothing
	a.Equal(store.ErrAlreadyQueued, f.mm.Enqueue(cbg, 1, seka.Profile{Name: "Ann"}, nil))
	a.Equal([]int64{1, 2}, f.queued(t))
}

func TestMatchmaker_Enqueue_balanceTooLow(t *testing.T) {
	f := newFixture(&starter{})

	_, err := f.ledger.EnsureAccount(cbg, 1)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Debit(cbg, 1, 995, "test", "broke"))

	assert.Equal(t, ErrBalanceTooLow, f.mm.Enqueue(cbg, 1, seka.Profile{}, nil))
	assert.Empty(t, f.queued(t))
}

func TestMatchmaker_Dequeue(t *testing.T) {
	a := assert.New(t)
	f := newFixture(&starter{})
	f.enqueue(t, 1)

	a.NoError(f.mm.Dequeue(cbg, 1))
	a.NoError(f.mm.Dequeue(cbg, 1))
	a.Empty(f.queued(t))
	a.Equal([]string{"joined", "left"}, f.sent.values(1, protocol.KeyQueue))
}

func TestMatchmaker_Match_waitsForTimeout(t *testing.T) {
	a := assert.New(t)
	st := &starter{}
	f := newFixture(st)
	f.enqueue(t, 1)

	formed, err := f.mm.Match(cbg)
	a.NoError(err)
	a.Equal(0, formed)

	f.enqueue(t, 2)
	formed, err = f.mm.Match(cbg)
	a.NoError(err)
	a.Equal(0, formed)

	f.advance(DefaultConfig().QueueTimeout)
	formed, err = f.mm.Match(cbg)
	a.NoError(err)
	a.Equal(1, formed)
	a.Empty(f.queued(t))

	if a.Len(st.started, 1) {
		s, err := f.store.Get(cbg, st.started[0])
		a.NoError(err)
		a.Equal(seka.PhaseForming, s.Phase)
		a.Equal(int64(1), s.Version)
		a.Equal([]int64{1, 2}, s.PlayerIDs())
		a.Equal(ledger.DefaultStartingBalance, s.Seats[0].BalanceAtEntry)
	}

	sessionID, err := f.store.SessionOf(cbg, 2)
	a.NoError(err)
	a.Equal(st.started[0], sessionID)

	a.Equal(store.ErrAlreadyInSession, f.mm.Enqueue(cbg, 2, seka.Profile{}, nil))
}

func TestMatchmaker_Match_fullTable(t *testing.T) {
	a := assert.New(t)
	st := &starter{}
	f := newFixture(st)
	f.enqueue(t, 1, 2, 3, 4, 5, 6, 7)

	formed, err := f.mm.Match(cbg)
	a.NoError(err)
	a.Equal(1, formed)
	a.Equal([]int64{7}, f.queued(t))

	s, err := f.store.Get(cbg, st.started[0])
	a.NoError(err)
	a.Equal([]int64{1, 2, 3, 4, 5, 6}, s.PlayerIDs())
}

func TestMatchmaker_Match_twoTables(t *testing.T) {
	a := assert.New(t)
	st := &starter{}
	f := newFixture(st)
	f.enqueue(t, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	f.advance(DefaultConfig().QueueTimeout)

	formed, err := f.mm.Match(cbg)
	a.NoError(err)
	a.Equal(2, formed)
	a.Empty(f.queued(t))

	s, err := f.store.Get(cbg, st.started[1])
	a.NoError(err)
	a.Equal([]int64{7, 8, 9}, s.PlayerIDs())
}

func TestMatchmaker_Match_dropsExpired(t *testing.T) {
	a := assert.New(t)
	f := newFixture(&starter{})
	f.enqueue(t, 1)
	f.advance(DefaultConfig().QueueEntryTTL)
	f.enqueue(t, 2)

	formed, err := f.mm.Match(cbg)
	a.NoError(err)
	a.Equal(0, formed)
	a.Equal([]int64{2}, f.queued(t))
	a.Equal([]string{"joined", "expired"}, f.sent.values(1, protocol.KeyQueue))
}

func TestMatchmaker_Sweep(t *testing.T) {
	a := assert.New(t)
	st := &starter{}
	f := newFixture(st)
	f.enqueue(t, 1, 2, 3, 4)
	f.advance(DefaultConfig().QueueTimeout)

	_, err := f.mm.Match(cbg)
	require.NoError(t, err)
	stalled := st.started[0]

	// nothing is stale yet
	aborted, err := f.mm.Sweep(cbg)
	a.NoError(err)
	a.Equal(0, aborted)

	f.advance(DefaultConfig().StaleGrace + time.Second)
	aborted, err = f.mm.Sweep(cbg)
	a.NoError(err)
	a.Equal(1, aborted)
	a.Equal(map[string]string{stalled: "the game stalled"}, st.aborted)
}

func TestMatchmaker_Sweep_settles(t *testing.T) {
	a := assert.New(t)
	st := &starter{}
	f := newFixture(st)
	f.enqueue(t, 1, 2)
	f.advance(DefaultConfig().QueueTimeout)

	_, err := f.mm.Match(cbg)
	require.NoError(t, err)

	s, err := f.store.Get(cbg, st.started[0])
	require.NoError(t, err)
	next, _, err := seka.Abort(s, "crashed", f.clock)
	require.NoError(t, err)
	ok, err := f.store.CompareAndSet(cbg, s.ID, s.Version, next)
	require.NoError(t, err)
	require.True(t, ok)

	aborted, err := f.mm.Sweep(cbg)
	a.NoError(err)
	a.Equal(0, aborted)
	a.Equal([]string{s.ID}, st.driven)
}

func TestMatchmaker_endToEnd(t *testing.T) {
	a := assert.New(t)
	f := newFixture(nil)
	f.enqueue(t, 1, 2)
	f.advance(DefaultConfig().QueueTimeout)

	formed, err := f.mm.Match(cbg)
	require.NoError(t, err)
	require.Equal(t, 1, formed)

	sessionID, err := f.store.SessionOf(cbg, 1)
	require.NoError(t, err)

	s, err := f.store.Get(cbg, sessionID)
	require.NoError(t, err)
	a.Equal(seka.PhaseBetting, s.Phase)

	seen := make(map[string]bool)
	for _, seat := range s.Seats {
		a.Len(seat.Hand, seka.HandSize)
		for _, c := range seat.Hand {
			a.False(seen[c.String()], c.String())
			seen[c.String()] = true
		}
	}

	// both players hold 20, which goes to svara
	s.Seats[0].Hand = deck.CardsFromString("10c,11c,12d")
	s.Seats[1].Hand = deck.CardsFromString("10d,11d,12h")
	ok, err := f.store.CompareAndSet(cbg, sessionID, s.Version, s)
	require.NoError(t, err)
	require.True(t, ok)

	coord := f.mm.starter.(*room.Coordinator)
	bet := &protocol.PayloadIn{Action: "bet", AdditionalData: protocol.AdditionalData{"amount": 100}}
	a.NoError(coord.HandlePlayerAction(cbg, 1, bet))
	a.NoError(coord.HandlePlayerAction(cbg, 2, bet))

	s, err = f.store.Get(cbg, sessionID)
	require.NoError(t, err)
	a.Equal(seka.PhaseBetting, s.Phase)
	a.Equal([]int64{1, 2}, s.SvaraParticipants)

	s.Seats[0].Hand = deck.CardsFromString("10d,11d,12d")
	s.Seats[1].Hand = deck.CardsFromString("10c,11c,12h")
	ok, err = f.store.CompareAndSet(cbg, sessionID, s.Version, s)
	require.NoError(t, err)
	require.True(t, ok)

	a.NoError(coord.HandlePlayerAction(cbg, 1, bet))
	a.NoError(coord.HandlePlayerAction(cbg, 2, bet))

	s, err = f.store.Get(cbg, sessionID)
	require.NoError(t, err)
	a.Equal(seka.PhaseFinished, s.Phase)
	a.Equal(int64(1), s.Winner)
	a.True(s.Settled)

	balance, err := f.ledger.BalanceOf(cbg, 1)
	a.NoError(err)
	a.Equal(1200, balance)

	// the winner can queue again
	a.NoError(f.mm.Enqueue(cbg, 1, seka.Profile{}, nil))
}
