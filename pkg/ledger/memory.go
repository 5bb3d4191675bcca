package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is a ledger kept in memory
type Memory struct {
	mu              sync.Mutex
	startingBalance int
	balances        map[int64]int
	entries         map[string]*Entry
	history         map[int64][]*Entry
}

// NewMemory returns an empty in-memory ledger
func NewMemory(startingBalance int) *Memory {
	return &Memory{
		startingBalance: startingBalance,
		balances:        make(map[int64]int),
		entries:         make(map[string]*Entry),
		history:         make(map[int64][]*Entry),
	}
}

// EnsureAccount opens an account with the starting balance if the player has none
func (m *Memory) EnsureAccount(_ context.Context, playerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if balance, ok := m.balances[playerID]; ok {
		return balance, nil
	}

	m.balances[playerID] = m.startingBalance
	m.record(&Entry{
		Reference: openingReference(playerID),
		PlayerID:  playerID,
		Amount:    m.startingBalance,
		Balance:   m.startingBalance,
		Note:      "opening balance",
		Created:   time.Now().UTC(),
	})

	return m.startingBalance, nil
}

// BalanceOf returns the player's balance
func (m *Memory) BalanceOf(_ context.Context, playerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[playerID]
	if !ok {
		return 0, ErrAccountNotFound
	}

	return balance, nil
}

// Debit removes amount from the player's balance
func (m *Memory) Debit(_ context.Context, playerID int64, amount int, reference, note string) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	return m.apply(playerID, -amount, reference, note)
}

// Credit adds amount to the player's balance
func (m *Memory) Credit(_ context.Context, playerID int64, amount int, reference, note string) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	return m.apply(playerID, amount, reference, note)
}

func (m *Memory) apply(playerID int64, amount int, reference, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[reference]; ok {
		return nil
	}

	balance, ok := m.balances[playerID]
	if !ok {
		return ErrAccountNotFound
	}

	if balance+amount < 0 {
		return ErrInsufficientFunds
	}

	m.balances[playerID] = balance + amount
	m.record(&Entry{
		Reference: reference,
		PlayerID:  playerID,
		Amount:    amount,
		Balance:   balance + amount,
		Note:      note,
		Created:   time.Now().UTC(),
	})

	return nil
}

func (m *Memory) record(e *Entry) {
	m.entries[e.Reference] = e
	m.history[e.PlayerID] = append(m.history[e.PlayerID], e)
}

// History returns the player's most recent entries, newest first
func (m *Memory) History(_ context.Context, playerID int64, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.history[playerID]
	entries := make([]*Entry, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(entries) < limit; i-- {
		e := *all[i]
		entries = append(entries, &e)
	}

	return entries, nil
}
