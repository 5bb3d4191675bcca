// Package store keeps the authoritative copy of every session
// Any server process can read a session, but writes only go through
// CompareAndSet so two processes can never apply divergent updates.
package store

import (
	"context"
	"errors"
	"time"

	"seka-server/pkg/seka"
)

// errors
var (
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps every infrastructure failure, callers may retry
	ErrUnavailable      = errors.New("store unavailable")
	ErrQueueChanged     = errors.New("queue changed while matching")
	ErrSessionExists    = errors.New("session already exists")
	ErrAlreadyQueued    = UserError("you are already in the queue")
	ErrAlreadyInSession = UserError("you are already playing a game")
)

// UserError is an error that can be shown to the player
type UserError string

func (u UserError) Error() string {
	return string(u)
}

// QueueEntry is a player waiting to be matched
type QueueEntry struct {
	PlayerID    int64        `json:"playerId"`
	Profile     seka.Profile `json:"profile"`
	RequestedAt time.Time    `json:"requestedAt"`
	Rating      *int         `json:"rating,omitempty"`
}

// Store is versioned session storage plus the matchmaking queue
type Store interface {
	// Get returns the session, its Version is the stored version
	Get(ctx context.Context, id string) (*seka.Session, error)
	// CompareAndSet writes s if the stored version is expected
	// On success s.Version is expected+1. A finished and settled session
	// releases its players in the same write.
	CompareAndSet(ctx context.Context, id string, expected int64, s *seka.Session) (bool, error)
	// SessionOf returns the session the player is seated in, or ""
	SessionOf(ctx context.Context, playerID int64) (string, error)
	// ActiveSessions returns every session that has not been released
	ActiveSessions(ctx context.Context) ([]string, error)

	Enqueue(ctx context.Context, entry *QueueEntry) error
	// Dequeue removes the player from the queue and reports if they were queued
	Dequeue(ctx context.Context, playerID int64) (bool, error)
	// Queue returns every waiting entry, oldest first
	Queue(ctx context.Context) ([]*QueueEntry, error)
	// Promote removes the players from the queue and stores s as version 1
	// in one atomic step. ErrQueueChanged means a player left or was taken.
	Promote(ctx context.Context, playerIDs []int64, s *seka.Session) error

	Ping(ctx context.Context) error
}

func released(s *seka.Session) bool {
	return s.IsFinished() && s.Settled
}
