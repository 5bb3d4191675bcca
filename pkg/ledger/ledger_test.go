package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLedger interface {
	EnsureAccount(ctx context.Context, playerID int64) (int, error)
	BalanceOf(ctx context.Context, playerID int64) (int, error)
	Debit(ctx context.Context, playerID int64, amount int, reference, note string) error
	Credit(ctx context.Context, playerID int64, amount int, reference, note string) error
	History(ctx context.Context, playerID int64, limit int) ([]*Entry, error)
}

func runLedgerTests(t *testing.T, newLedger func(t *testing.T) testLedger) {
	ctx := context.Background()

	t.Run("accounts", func(t *testing.T) {
		a := assert.New(t)
		l := newLedger(t)

		_, err := l.BalanceOf(ctx, 1)
		a.Equal(ErrAccountNotFound, err)

		balance, err := l.EnsureAccount(ctx, 1)
		a.NoError(err)
		a.Equal(1000, balance)

		a.NoError(l.Debit(ctx, 1, 100, "a", "bet"))

		// opening an existing account leaves the balance alone
		balance, err = l.EnsureAccount(ctx, 1)
		a.NoError(err)
		a.Equal(900, balance)

		a.Equal(ErrAccountNotFound, l.Credit(ctx, 2, 100, "b", "won"))
	})

	t.Run("debit and credit", func(t *testing.T) {
		a := assert.New(t)
		l := newLedger(t)
		_, err := l.EnsureAccount(ctx, 1)
		require.NoError(t, err)

		a.NoError(l.Debit(ctx, 1, 250, "s1:1", "lost"))
		a.NoError(l.Credit(ctx, 1, 50, "s2:1", "won"))

		balance, err := l.BalanceOf(ctx, 1)
		a.NoError(err)
		a.Equal(800, balance)

		a.Equal(ErrInsufficientFunds, l.Debit(ctx, 1, 801, "s3:1", "lost"))
		a.NoError(l.Debit(ctx, 1, 800, "s4:1", "lost"))

		balance, err = l.BalanceOf(ctx, 1)
		a.NoError(err)
		a.Equal(0, balance)

		a.Equal(ErrInvalidAmount, l.Debit(ctx, 1, 0, "s5:1", ""))
		a.Equal(ErrInvalidAmount, l.Credit(ctx, 1, -5, "s6:1", ""))
	})

	t.Run("idempotent", func(t *testing.T) {
		a := assert.New(t)
		l := newLedger(t)
		_, err := l.EnsureAccount(ctx, 1)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			a.NoError(l.Debit(ctx, 1, 100, Reference("abc", 1), "lost"))
		}

		balance, err := l.BalanceOf(ctx, 1)
		a.NoError(err)
		a.Equal(900, balance)
	})

	t.Run("history", func(t *testing.T) {
		a := assert.New(t)
		l := newLedger(t)
		_, err := l.EnsureAccount(ctx, 1)
		require.NoError(t, err)
		_, err = l.EnsureAccount(ctx, 2)
		require.NoError(t, err)

		a.NoError(l.Debit(ctx, 1, 100, "s1:1", "lost"))
		a.NoError(l.Credit(ctx, 2, 100, "s1:2", "won"))

		entries, err := l.History(ctx, 1, 10)
		a.NoError(err)
		if a.Len(entries, 2) {
			a.Equal("s1:1", entries[0].Reference)
			a.Equal(-100, entries[0].Amount)
			a.Equal(900, entries[0].Balance)
			a.Equal("lost", entries[0].Note)
			a.Equal("open:1", entries[1].Reference)
			a.Equal(1000, entries[1].Amount)
		}

		entries, err = l.History(ctx, 1, 1)
		a.NoError(err)
		a.Len(entries, 1)

		entries, err = l.History(ctx, 3, 10)
		a.NoError(err)
		a.Empty(entries)
	})

	t.Run("concurrent debits", func(t *testing.T) {
		l := newLedger(t)
		_, err := l.EnsureAccount(ctx, 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 20)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = l.Debit(ctx, 1, 100, fmt.Sprintf("d%d", i), "bet")
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				assert.Equal(t, ErrInsufficientFunds, err)
			}
		}

		// no lost updates, and never below zero
		assert.Equal(t, 10, ok)
		balance, err := l.BalanceOf(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, 0, balance)
	})
}

func TestMemory(t *testing.T) {
	runLedgerTests(t, func(t *testing.T) testLedger {
		return NewMemory(DefaultStartingBalance)
	})
}

func TestSQL(t *testing.T) {
	runLedgerTests(t, func(t *testing.T) testLedger {
		l, err := Open(DriverSQLite, ":memory:", DefaultStartingBalance)
		require.NoError(t, err)
		require.NoError(t, l.Migrate())
		t.Cleanup(func() {
			_ = l.Close()
		})

		return l
	})
}

func TestSQL_MigrateTwice(t *testing.T) {
	l, err := Open(DriverSQLite, ":memory:", 500)
	require.NoError(t, err)
	defer l.Close()

	assert.NoError(t, l.Migrate())
	assert.NoError(t, l.Migrate())

	balance, err := l.EnsureAccount(context.Background(), 9)
	assert.NoError(t, err)
	assert.Equal(t, 500, balance)
}

func TestOpen_UnknownDriver(t *testing.T) {
	l, err := Open("mysql", "", 0)
	assert.Nil(t, l)
	assert.EqualError(t, err, "unsupported ledger driver: mysql")
}

func TestReference(t *testing.T) {
	assert.Equal(t, "abc:12", Reference("abc", 12))
}
