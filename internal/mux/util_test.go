package mux

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"seka-server/internal/jwt"
	"seka-server/internal/rng"
	"seka-server/pkg/ledger"
	"seka-server/pkg/matchmaking"
	"seka-server/pkg/room"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

var cbg = context.Background()

func Test_parseRows(t *testing.T) {
	req := func(queryString string) *http.Request {
		req, _ := http.NewRequest(http.MethodGet, "https://example.domain/"+queryString, nil)
		return req
	}

	rows, err := parseRows(req(""))
	assert.NoError(t, err)
	assert.Equal(t, defaultRows, rows)

	rows, err = parseRows(req("?rows=25"))
	assert.NoError(t, err)
	assert.Equal(t, 25, rows)

	rows, err = parseRows(req("?rows=0"))
	assert.EqualError(t, err, "rows must be greater than zero")
	assert.Equal(t, 0, rows)

	rows, err = parseRows(req(fmt.Sprintf("?rows=%d", maxRows+1)))
	assert.EqualError(t, err, fmt.Sprintf("rows cannot be greater than %d", maxRows))
	assert.Equal(t, 0, rows)
}

func Test_statusCode(t *testing.T) {
	a := assert.New(t)
	a.Equal(http.StatusBadRequest, statusCode(seka.ErrNotYourTurn))
	a.Equal(http.StatusBadRequest, statusCode(store.ErrAlreadyQueued))
	a.Equal(http.StatusBadRequest, statusCode(ledger.ErrInsufficientFunds))
	a.Equal(http.StatusBadRequest, statusCode(room.ErrMissingAmount))
	a.Equal(http.StatusConflict, statusCode(room.ErrConflict))
	a.Equal(http.StatusNotFound, statusCode(room.ErrNotPlaying))
	a.Equal(http.StatusNotFound, statusCode(store.ErrNotFound))
	a.Equal(http.StatusServiceUnavailable, statusCode(fmt.Errorf("%w: timeout", store.ErrUnavailable)))
	a.Equal(http.StatusInternalServerError, statusCode(seka.InvariantError{SessionID: "abc", Reason: "bad"}))
}

var keyOnce sync.Once

func setupJWT() {
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}

		jwt.SetKeys(&key.PublicKey, key)
	})
}

func token(playerID int64) string {
	signed, err := jwt.Sign(playerID)
	if err != nil {
		panic(err)
	}

	return signed
}

type testServer struct {
	*httptest.Server
	mux    *Mux
	store  store.Store
	ledger *ledger.Memory
}

// newTestServer runs a single-process server where two queued players make a full table
func newTestServer(t *testing.T, st store.Store) *testServer {
	t.Helper()
	setupJWT()

	if st == nil {
		st = store.NewMemory()
	}

	logger := logrus.StandardLogger()
	l := ledger.NewMemory(ledger.DefaultStartingBalance)
	hub := room.NewHub(logger)
	coordinator := room.NewCoordinator(st, l, hub, rng.NewSeeded(1), logger, room.DefaultConfig())

	opts := seka.DefaultOptions()
	opts.MaxPlayers = 2

	m := NewMux("v1.2.3", Services{
		Store:       st,
		Ledger:      l,
		Hub:         hub,
		Coordinator: coordinator,
		Matchmaker:  matchmaking.New(st, l, coordinator, hub, opts, matchmaking.DefaultConfig(), logger),
		Logger:      logger,
	})

	ts := httptest.NewServer(m)
	t.Cleanup(ts.Close)

	return &testServer{
		Server: ts,
		mux:    m,
		store:  st,
		ledger: l,
	}
}

func assertDo(t *testing.T, req *http.Request, respObj interface{}, statusCode int, signedJWT ...string) *http.Response {
	t.Helper()

	if len(signedJWT) > 0 {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", signedJWT[0]))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Error(err)
		return nil
	}
	defer resp.Body.Close()

	if statusCode != resp.StatusCode {
		b, _ := io.ReadAll(resp.Body)
		t.Log(string(b))
		assert.Equal(t, statusCode, resp.StatusCode)
		return nil
	}

	if respObj != nil {
		if err := json.NewDecoder(resp.Body).Decode(respObj); err != nil {
			t.Error(err)
			return nil
		}
	}

	return resp
}

func assertGet(t *testing.T, ts *httptest.Server, path string, respObj interface{}, statusCode int, signedJWT ...string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Error(err)
		return nil
	}

	return assertDo(t, req, respObj, statusCode, signedJWT...)
}

func assertDelete(t *testing.T, ts *httptest.Server, path string, respObj interface{}, statusCode int, signedJWT ...string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
	if err != nil {
		t.Error(err)
		return nil
	}

	return assertDo(t, req, respObj, statusCode, signedJWT...)
}

func assertPost(t *testing.T, ts *httptest.Server, path string, payload interface{}, respObj interface{}, statusCode int, signedJWT ...string) *http.Response {
	t.Helper()

	var body io.Reader
	switch val := payload.(type) {
	case string:
		body = strings.NewReader(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			t.Error(err)
			return nil
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, body)
	if err != nil {
		t.Error(err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	return assertDo(t, req, respObj, statusCode, signedJWT...)
}
