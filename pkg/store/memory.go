package store

import (
	"context"
	"sort"
	"sync"

	"seka-server/pkg/seka"
)

// Memory is a Store for a single process
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*seka.Session
	players  map[int64]string
	active   map[string]bool
	queue    map[int64]*QueueEntry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*seka.Session),
		players:  make(map[int64]string),
		active:   make(map[string]bool),
		queue:    make(map[int64]*QueueEntry),
	}
}

// Get returns a copy of the session
func (m *Memory) Get(_ context.Context, id string) (*seka.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	return s.Clone(), nil
}

// CompareAndSet writes the session if the version matches
func (m *Memory) CompareAndSet(_ context.Context, id string, expected int64, s *seka.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}

	if current.Version != expected {
		return false, nil
	}

	next := s.Clone()
	next.Version = expected + 1
	m.sessions[id] = next
	s.Version = next.Version

	if released(next) {
		for _, playerID := range next.PlayerIDs() {
			if m.players[playerID] == id {
				delete(m.players, playerID)
			}
		}

		delete(m.active, id)
	}

	return true, nil
}

// SessionOf returns the player's session
func (m *Memory) SessionOf(_ context.Context, playerID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.players[playerID], nil
}

// ActiveSessions returns the unreleased sessions
func (m *Memory) ActiveSessions(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// Enqueue adds the player to the queue
func (m *Memory) Enqueue(_ context.Context, entry *QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[entry.PlayerID]; ok {
		return ErrAlreadyInSession
	}

	if _, ok := m.queue[entry.PlayerID]; ok {
		return ErrAlreadyQueued
	}

	e := *entry
	m.queue[entry.PlayerID] = &e
	return nil
}

// Dequeue removes the player from the queue
func (m *Memory) Dequeue(_ context.Context, playerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.queue[playerID]
	delete(m.queue, playerID)
	return ok, nil
}

// Queue returns the waiting entries, oldest first
func (m *Memory) Queue(_ context.Context) ([]*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]*QueueEntry, 0, len(m.queue))
	for _, entry := range m.queue {
		e := *entry
		entries = append(entries, &e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RequestedAt.Equal(entries[j].RequestedAt) {
			return entries[i].PlayerID < entries[j].PlayerID
		}

		return entries[i].RequestedAt.Before(entries[j].RequestedAt)
	})

	return entries, nil
}

// Promote moves the players from the queue into the session
func (m *Memory) Promote(_ context.Context, playerIDs []int64, s *seka.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrSessionExists
	}

	for _, playerID := range playerIDs {
		if _, ok := m.queue[playerID]; !ok {
			return ErrQueueChanged
		}

		if _, ok := m.players[playerID]; ok {
			return ErrQueueChanged
		}
	}

	next := s.Clone()
	next.Version = 1
	m.sessions[s.ID] = next
	m.active[s.ID] = true
	for _, playerID := range playerIDs {
		delete(m.queue, playerID)
		m.players[playerID] = s.ID
	}

	s.Version = next.Version
	return nil
}

// Ping always succeeds
func (m *Memory) Ping(_ context.Context) error {
	return nil
}
