package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"seka-server/pkg/protocol"
)

// Event is a message for a set of players, published to every server process
type Event struct {
	SessionID string             `json:"sessionId,omitempty"`
	PlayerIDs []int64            `json:"playerIds"`
	Response  *protocol.Response `json:"response"`
}

// Deliverer delivers an event to the players connected to this process
type Deliverer interface {
	Deliver(playerIDs []int64, res *protocol.Response)
}

// Relay fans events out through redis pub/sub
// Every process runs Relay.Run so a player gets their messages no matter
// which process their connection landed on.
type Relay struct {
	client  *redis.Client
	channel string
	logger  logrus.FieldLogger
}

// NewRelay returns a relay publishing on "{prefix}:events"
func NewRelay(client *redis.Client, prefix string, logger logrus.FieldLogger) *Relay {
	if prefix == "" {
		prefix = "seka"
	}

	return &Relay{
		client:  client,
		channel: prefix + ":events",
		logger:  logger.WithField("channel", prefix+":events"),
	}
}

// Publish sends the event to every process
func (r *Relay) Publish(ctx context.Context, e *Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return unavailable(err)
	}

	return nil
}

// SendTo publishes a message for a single player
func (r *Relay) SendTo(playerID int64, res *protocol.Response) {
	r.publish(&Event{PlayerIDs: []int64{playerID}, Response: res})
}

// Broadcast publishes a message for every player of a session
func (r *Relay) Broadcast(sessionID string, playerIDs []int64, res *protocol.Response) {
	r.publish(&Event{SessionID: sessionID, PlayerIDs: playerIDs, Response: res})
}

func (r *Relay) publish(e *Event) {
	if err := r.Publish(context.Background(), e); err != nil {
		r.logger.WithError(err).WithField("session", e.SessionID).Error("could not publish event")
	}
}

// Run delivers every published event until ctx is done
// ready is closed once the subscription is active.
func (r *Relay) Run(ctx context.Context, d Deliverer, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// wait for the subscription confirmation so no event is missed
	if _, err := sub.Receive(ctx); err != nil {
		return unavailable(err)
	}

	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.logger.WithError(err).Error("could not decode event")
				continue
			}

			d.Deliver(e.PlayerIDs, e.Response)
		}
	}
}
