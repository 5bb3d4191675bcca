package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"seka-server/pkg/seka"
)

// record fields
const (
	fieldSchema  = "schema"
	fieldVersion = "version"
	fieldData    = "data"
)

// DefaultRetention is how long a released session stays readable
const DefaultRetention = time.Hour

const maxWatchAttempts = 10

// Redis is a Store backed by redis
//
// Layout, with the default "seka" prefix:
//
//	seka:session:{id}      hash {schema, version, data}
//	seka:players           hash player id -> session id
//	seka:sessions:active   set of session ids
//	seka:queue             sorted set of player ids scored by enqueue time
//	seka:queue:entries     hash player id -> queue entry
type Redis struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis returns a redis store
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "seka"
	}

	return &Redis{
		client:    client,
		prefix:    prefix,
		retention: DefaultRetention,
	}
}

func (r *Redis) sessionKey(id string) string {
	return r.prefix + ":session:" + id
}

func (r *Redis) playersKey() string {
	return r.prefix + ":players"
}

func (r *Redis) activeKey() string {
	return r.prefix + ":sessions:active"
}

func (r *Redis) queueKey() string {
	return r.prefix + ":queue"
}

func (r *Redis) entriesKey() string {
	return r.prefix + ":queue:entries"
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func playerField(playerID int64) string {
	return strconv.FormatInt(playerID, 10)
}

// Get returns the session
func (r *Redis) Get(ctx context.Context, id string) (*seka.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	return decodeSession(id, fields)
}

func decodeSession(id string, fields map[string]string) (*seka.Session, error) {
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	if fields[fieldSchema] != strconv.Itoa(seka.SchemaVersion) {
		return nil, fmt.Errorf("session %s has unsupported schema %q", id, fields[fieldSchema])
	}

	version, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session %s has a bad version: %w", id, err)
	}

	var s seka.Session
	if err := json.Unmarshal([]byte(fields[fieldData]), &s); err != nil {
		return nil, fmt.Errorf("could not decode session %s: %w", id, err)
	}

	s.Version = version
	return &s, nil
}

func encodeSession(s *seka.Session) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		fieldSchema:  seka.SchemaVersion,
		fieldVersion: s.Version,
		fieldData:    string(data),
	}, nil
}

// CompareAndSet writes the session if nobody else changed it
func (r *Redis) CompareAndSet(ctx context.Context, id string, expected int64, s *seka.Session) (bool, error) {
	key := r.sessionKey(id)
	swapped := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		version, err := tx.HGet(ctx, key, fieldVersion).Int64()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		} else if err != nil {
			return unavailable(err)
		}

		if version != expected {
			return nil
		}

		next := s.Clone()
		next.Version = expected + 1
		record, err := encodeSession(next)
		if err != nil {
			return err
		}

		var release []string
		if released(next) {
			release, err = r.indexedPlayers(ctx, tx, id, next.PlayerIDs())
			if err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, record)
			if released(next) {
				if len(release) > 0 {
					pipe.HDel(ctx, r.playersKey(), release...)
				}
				pipe.SRem(ctx, r.activeKey(), id)
				pipe.Expire(ctx, key, r.retention)
			}

			return nil
		})
		if err != nil {
			return err
		}

		swapped = true
		s.Version = next.Version
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}

	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
			return false, err
		}

		return false, unavailable(err)
	}

	return swapped, nil
}

// indexedPlayers returns the players whose index entry still points at the session
func (r *Redis) indexedPlayers(ctx context.Context, tx *redis.Tx, id string, playerIDs []int64) ([]string, error) {
	fields := make([]string, len(playerIDs))
	for i, playerID := range playerIDs {
		fields[i] = playerField(playerID)
	}

	values, err := tx.HMGet(ctx, r.playersKey(), fields...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	release := make([]string, 0, len(fields))
	for i, v := range values {
		if sessionID, ok := v.(string); ok && sessionID == id {
			release = append(release, fields[i])
		}
	}

	return release, nil
}

// SessionOf returns the session the player is seated in
func (r *Redis) SessionOf(ctx context.Context, playerID int64) (string, error) {
	id, err := r.client.HGet(ctx, r.playersKey(), playerField(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", unavailable(err)
	}

	return id, nil
}

// ActiveSessions returns every unreleased session
func (r *Redis) ActiveSessions(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.activeKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	return ids, nil
}

// Enqueue adds the player to the queue
func (r *Redis) Enqueue(ctx context.Context, entry *QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	for i := 0; i < maxWatchAttempts; i++ {
		err = r.enqueue(ctx, entry, string(data))
		// somebody else touched the queue or the index, the checks are stale
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	if err != nil {
		var userErr UserError
		if errors.As(err, &userErr) || errors.Is(err, ErrUnavailable) {
			return err
		}

		return unavailable(err)
	}

	return nil
}

func (r *Redis) enqueue(ctx context.Context, entry *QueueEntry, data string) error {
	field := playerField(entry.PlayerID)

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		seated, err := tx.HExists(ctx, r.playersKey(), field).Result()
		if err != nil {
			return unavailable(err)
		}

		if seated {
			return ErrAlreadyInSession
		}

		queued, err := tx.HExists(ctx, r.entriesKey(), field).Result()
		if err != nil {
			return unavailable(err)
		}

		if queued {
			return ErrAlreadyQueued
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.entriesKey(), field, data)
			pipe.ZAdd(ctx, r.queueKey(), redis.Z{
				Score:  float64(entry.RequestedAt.UnixMilli()),
				Member: field,
			})
			return nil
		})
		return err
	}, r.playersKey(), r.entriesKey())
}

// Dequeue removes the player from the queue
func (r *Redis) Dequeue(ctx context.Context, playerID int64) (bool, error) {
	field := playerField(playerID)

	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, r.entriesKey(), field)
		pipe.ZRem(ctx, r.queueKey(), field)
		return nil
	})
	if err != nil {
		return false, unavailable(err)
	}

	return removed.Val() > 0, nil
}

// Queue returns the waiting entries, oldest first
func (r *Redis) Queue(ctx context.Context) ([]*QueueEntry, error) {
	fields, err := r.client.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	if len(fields) == 0 {
		return []*QueueEntry{}, nil
	}

	values, err := r.client.HMGet(ctx, r.entriesKey(), fields...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	entries := make([]*QueueEntry, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			// dequeued between the two reads
			continue
		}

		var entry QueueEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("could not decode queue entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	return entries, nil
}

// Promote moves the players from the queue into the new session atomically
func (r *Redis) Promote(ctx context.Context, playerIDs []int64, s *seka.Session) error {
	key := r.sessionKey(s.ID)
	fields := make([]string, len(playerIDs))
	index := make(map[string]interface{}, len(playerIDs))
	for i, playerID := range playerIDs {
		fields[i] = playerField(playerID)
		index[fields[i]] = s.ID
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return unavailable(err)
		}

		if exists > 0 {
			return ErrSessionExists
		}

		queued, err := tx.HMGet(ctx, r.entriesKey(), fields...).Result()
		if err != nil {
			return unavailable(err)
		}

		seated, err := tx.HMGet(ctx, r.playersKey(), fields...).Result()
		if err != nil {
			return unavailable(err)
		}

		for i := range fields {
			if queued[i] == nil || seated[i] != nil {
				return ErrQueueChanged
			}
		}

		next := s.Clone()
		next.Version = 1
		record, err := encodeSession(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, r.entriesKey(), fields...)
			members := make([]interface{}, len(fields))
			for i, f := range fields {
				members[i] = f
			}
			pipe.ZRem(ctx, r.queueKey(), members...)
			pipe.HSet(ctx, key, record)
			pipe.HSet(ctx, r.playersKey(), index)
			pipe.SAdd(ctx, r.activeKey(), s.ID)
			return nil
		})
		if err != nil {
			return err
		}

		s.Version = next.Version
		return nil
	}, key, r.entriesKey(), r.playersKey())

	if errors.Is(err, redis.TxFailedErr) {
		return ErrQueueChanged
	}

	if err != nil {
		if errors.Is(err, ErrQueueChanged) || errors.Is(err, ErrSessionExists) || errors.Is(err, ErrUnavailable) {
			return err
		}

		return unavailable(err)
	}

	return nil
}

// Ping checks the connection
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}

	return nil
}
