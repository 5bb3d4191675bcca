package mux

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"seka-server/pkg/protocol"
	"seka-server/pkg/room"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

const writeWait = time.Second * 10
const pongWait = time.Second * 60
const pingPeriod = pongWait * 9 / 10

var errServerBusy = errors.New("the server is busy, please try again")
var errInternal = errors.New("something went wrong")

func (m *Mux) getWS() http.HandlerFunc {
	upgrader := &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.Logger.WithError(err).Error("could not upgrade connection")
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		client := room.NewClient(conn, playerID(r))
		m.Hub.ClientConnected(client)

		// a player reconnecting mid-game gets the table back
		ctx := context.WithoutCancel(r.Context())
		if state, err := m.Coordinator.State(ctx, client.PlayerID); err == nil {
			client.Send(stateResponse(state, ""))
		}

		waitForCloseFrame := make(chan bool)
		defer func() {
			if m.Hub.ClientDisconnected(client) {
				m.playerLeft(ctx, client)
			}

			_ = conn.Close()
			close(waitForCloseFrame)
		}()

		go m.webSocketWriteLoop(client, waitForCloseFrame)
		m.webSocketReadLoop(ctx, client)
	}
}

// playerLeft withdraws a player with no open connection from the queue
// A seated player keeps their seat; the turn timeout folds them if they do not return.
func (m *Mux) playerLeft(ctx context.Context, client *room.Client) {
	if err := m.Matchmaker.Dequeue(ctx, client.PlayerID); err != nil {
		m.Logger.WithError(err).WithField("player", client.PlayerID).Warn("could not remove player from the queue")
	}
}

func (m *Mux) webSocketWriteLoop(client *room.Client, waitForCloseFrame chan bool) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
	}()

	for {
		select {
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case reason := <-client.Close:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))

			// wait for the close frame
			select {
			case <-waitForCloseFrame:
			case <-time.After(time.Second):
			}
			return
		case msg, ok := <-client.SendChan():
			if !ok {
				return
			}

			if logrus.IsLevelEnabled(logrus.TraceLevel) {
				msgBytes, _ := json.Marshal(msg)
				m.Logger.WithField("message", string(msgBytes)).WithField("client", client.String()).Trace("sending message to client")
			}

			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(msg); err != nil {
				m.Logger.WithError(err).WithField("client", client.String()).Error("could not write message")
				return
			}
		}
	}
}

func (m *Mux) webSocketReadLoop(ctx context.Context, client *room.Client) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg protocol.PayloadIn
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if !websocket.IsUnexpectedCloseError(err) {
				m.Logger.WithError(err).Debug("could not read JSON")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.Logger.WithError(err).Error("could not read message")
			}

			client.CloseError = err
			return
		}

		// every message is its own task, the session's compare-and-set orders them
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.receivedMessage(ctx, client, &msg)
		}()
	}
}

func (m *Mux) receivedMessage(ctx context.Context, client *room.Client, msg *protocol.PayloadIn) {
	var err error
	switch msg.Action {
	case "queue":
		name, _ := msg.AdditionalData.GetString("name")
		avatarURL, _ := msg.AdditionalData.GetString("avatarUrl")
		if !validDisplayNameRx.MatchString(name) {
			client.Send(protocol.Error(msg.Context, errInvalidName))
			return
		}

		var rating *int
		if val, ok := msg.AdditionalData.GetInt("rating"); ok {
			rating = &val
		}

		err = m.Matchmaker.Enqueue(ctx, client.PlayerID, seka.Profile{Name: name, AvatarURL: avatarURL}, rating)
	case "dequeue":
		err = m.Matchmaker.Dequeue(ctx, client.PlayerID)
	case "state":
		var state *seka.GameState
		if state, err = m.Coordinator.State(ctx, client.PlayerID); err == nil {
			client.Send(stateResponse(state, msg.Context))
			return
		}
	default:
		err = m.Coordinator.HandlePlayerAction(ctx, client.PlayerID, msg)
	}

	if err != nil {
		client.Send(protocol.Error(msg.Context, m.clientError(client, err)))
		return
	}

	client.Send(protocol.OK(msg.Context))
}

// clientError returns the error shown to the player
func (m *Mux) clientError(client *room.Client, err error) error {
	switch {
	case isUserError(err), errors.Is(err, store.ErrNotFound):
		return err
	case errors.Is(err, store.ErrUnavailable):
		return errServerBusy
	}

	m.Logger.WithError(err).WithField("client", client.String()).Error("could not handle message")
	return errInternal
}

func stateResponse(state *seka.GameState, ctx string) *protocol.Response {
	return &protocol.Response{
		Key:     protocol.KeyGame,
		Value:   "seka",
		Data:    state,
		Context: ctx,
	}
}
