package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seka-server/pkg/ledger"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

func bet(amount int) map[string]interface{} {
	return map[string]interface{}{
		"action":         "bet",
		"additionalData": map[string]interface{}{"amount": amount},
	}
}

func TestQueue(t *testing.T) {
	ts := newTestServer(t, nil)
	a := assert.New(t)

	var errObj errorResponse
	assertPost(t, ts.Server, "/queue", map[string]string{"name": "<script>"}, &errObj, 400, token(1))
	a.Equal(errInvalidName.Error(), errObj.Message)

	assertPost(t, ts.Server, "/queue", map[string]string{"name": "Ann"}, nil, 202, token(1))
	assertPost(t, ts.Server, "/queue", map[string]string{"name": "Ann"}, &errObj, 400, token(1))
	a.Equal(store.ErrAlreadyQueued.Error(), errObj.Message)

	assertDelete(t, ts.Server, "/queue", nil, 200, token(1))
	assertDelete(t, ts.Server, "/queue", nil, 200, token(1))

	entries, err := ts.store.Queue(cbg)
	a.NoError(err)
	a.Empty(entries)

	var balance balanceResponse
	assertGet(t, ts.Server, "/balance", &balance, 200, token(1))
	a.Equal(ledger.DefaultStartingBalance, balance.Balance)
	assertGet(t, ts.Server, "/balance", nil, 404, token(2))
}

func TestSession(t *testing.T) {
	ts := newTestServer(t, nil)
	a := assert.New(t)

	assertGet(t, ts.Server, "/session", nil, 404, token(1))

	assertPost(t, ts.Server, "/queue", map[string]string{"name": "Ann"}, nil, 202, token(1))
	assertPost(t, ts.Server, "/queue", map[string]string{}, nil, 202, token(2))

	formed, err := ts.mux.Matchmaker.Match(cbg)
	require.NoError(t, err)
	require.Equal(t, 1, formed)

	var state seka.GameState
	assertGet(t, ts.Server, "/session", &state, 200, token(1))
	a.Equal(seka.PhaseBetting, state.Phase)
	a.Equal(int64(1), state.CurrentTurn)
	if a.NotNil(state.You) {
		a.Len(state.You.Hand, seka.HandSize)
		a.Equal(10, state.You.MinBet)
	}

	path := "/session/" + state.ID + "/action"

	var errObj errorResponse
	assertPost(t, ts.Server, path, bet(100), &errObj, 400, token(2))
	a.Equal(seka.ErrNotYourTurn.Error(), errObj.Message)

	assertPost(t, ts.Server, path, map[string]string{"action": "bet"}, &errObj, 400, token(1))
	a.Equal("missing amount", errObj.Message)

	assertPost(t, ts.Server, "/session/nope/action", bet(100), nil, 404, token(1))

	assertPost(t, ts.Server, path, bet(100), &state, 200, token(1))
	a.Equal(100, state.Pot)
	a.Equal(int64(2), state.CurrentTurn)

	assertPost(t, ts.Server, path, bet(200), &state, 200, token(2))
	assertPost(t, ts.Server, path, map[string]string{"action": "fold"}, &state, 200, token(1))
	a.Equal(seka.PhaseFinished, state.Phase)
	a.Equal(int64(2), state.Winner)

	var balance balanceResponse
	assertGet(t, ts.Server, "/balance", &balance, 200, token(2))
	a.Equal(1100, balance.Balance)

	var entries []*ledger.Entry
	assertGet(t, ts.Server, "/transactions?rows=1", &entries, 200, token(1))
	if a.Len(entries, 1) {
		a.Equal(-100, entries[0].Amount)
		a.Equal(900, entries[0].Balance)
	}

	assertGet(t, ts.Server, "/transactions?rows=0", nil, 400, token(1))
	assertGet(t, ts.Server, "/session", nil, 404, token(1))
}
