package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQL is a ledger stored in postgres or sqlite
type SQL struct {
	db              *sqlx.DB
	startingBalance int
	now             func() time.Time
}

// Open connects to the database
func Open(driver, dsn string, startingBalance int) (*SQL, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported ledger driver: %s", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer, and every :memory: connection is its own database
		db.SetMaxOpenConns(1)
	}

	return New(db, startingBalance), nil
}

// New returns a ledger using an open database
func New(db *sqlx.DB, startingBalance int) *SQL {
	return &SQL{
		db:              db,
		startingBalance: startingBalance,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Close closes the database
func (l *SQL) Close() error {
	return l.db.Close()
}

// Ping checks the connection
func (l *SQL) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Migrate brings the schema up to date
func (l *SQL) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	var driver database.Driver
	switch l.db.DriverName() {
	case DriverPostgres:
		driver, err = postgres.WithInstance(l.db.DB, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite3.WithInstance(l.db.DB, &sqlite3.Config{})
	default:
		err = fmt.Errorf("unsupported ledger driver: %s", l.db.DriverName())
	}
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, l.db.DriverName(), driver)
	if err != nil {
		return err
	}

	logrus.WithField("driver", l.db.DriverName()).Info("running ledger migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// EnsureAccount opens an account with the starting balance if the player has none
func (l *SQL) EnsureAccount(ctx context.Context, playerID int64) (int, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // nolint:errcheck

	now := l.now()
	res, err := tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO accounts (player_id, balance, created, updated)
VALUES (?, ?, ?, ?)
ON CONFLICT (player_id) DO NOTHING`), playerID, l.startingBalance, now, now)
	if err != nil {
		return 0, err
	}

	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 1 {
		if err := insertEntry(ctx, tx, &Entry{
			Reference: openingReference(playerID),
			PlayerID:  playerID,
			Amount:    l.startingBalance,
			Balance:   l.startingBalance,
			Note:      "opening balance",
			Created:   now,
		}); err != nil {
			return 0, err
		}
	}

	balance, err := balanceOf(ctx, tx, playerID)
	if err != nil {
		return 0, err
	}

	return balance, tx.Commit()
}

// BalanceOf returns the player's balance
func (l *SQL) BalanceOf(ctx context.Context, playerID int64) (int, error) {
	return balanceOf(ctx, l.db, playerID)
}

func balanceOf(ctx context.Context, q sqlx.ExtContext, playerID int64) (int, error) {
	var balance int
	err := sqlx.GetContext(ctx, q, &balance, q.Rebind(`SELECT balance FROM accounts WHERE player_id = ?`), playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}

	return balance, err
}

// Debit removes amount from the player's balance
// A reference that was already applied is not applied again.
func (l *SQL) Debit(ctx context.Context, playerID int64, amount int, reference, note string) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	return l.apply(ctx, playerID, -amount, reference, note)
}

// Credit adds amount to the player's balance
func (l *SQL) Credit(ctx context.Context, playerID int64, amount int, reference, note string) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	return l.apply(ctx, playerID, amount, reference, note)
}

func (l *SQL) apply(ctx context.Context, playerID int64, amount int, reference, note string) error {
	err := l.applyTx(ctx, playerID, amount, reference, note)
	if err == nil || errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrAccountNotFound) {
		return err
	}

	// a concurrent writer may have inserted the same reference first
	if applied, checkErr := l.applied(ctx, l.db, reference); checkErr == nil && applied {
		return nil
	}

	return err
}

func (l *SQL) applyTx(ctx context.Context, playerID int64, amount int, reference, note string) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if applied, err := l.applied(ctx, tx, reference); err != nil {
		return err
	} else if applied {
		return nil
	}

	// the balance guard makes the check and the update a single statement
	now := l.now()
	res, err := tx.ExecContext(ctx, tx.Rebind(`
UPDATE accounts
SET balance = balance + ?,
    updated = ?
WHERE player_id = ?
  AND balance + ? >= 0`), amount, now, playerID, amount)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		if _, err := balanceOf(ctx, tx, playerID); err != nil {
			return err
		}

		return ErrInsufficientFunds
	}

	balance, err := balanceOf(ctx, tx, playerID)
	if err != nil {
		return err
	}

	if err := insertEntry(ctx, tx, &Entry{
		Reference: reference,
		PlayerID:  playerID,
		Amount:    amount,
		Balance:   balance,
		Note:      note,
		Created:   now,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

func (l *SQL) applied(ctx context.Context, q sqlx.ExtContext, reference string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM ledger_entries WHERE reference = ?`), reference); err != nil {
		return false, err
	}

	return n > 0, nil
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, e *Entry) error {
	_, err := tx.NamedExecContext(ctx, `
INSERT INTO ledger_entries (reference, player_id, amount, balance, note, created)
VALUES (:reference, :player_id, :amount, :balance, :note, :created)`, e)
	return err
}

// History returns the player's most recent entries, newest first
func (l *SQL) History(ctx context.Context, playerID int64, limit int) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := l.db.SelectContext(ctx, &entries, l.db.Rebind(`
SELECT reference, player_id, amount, balance, note, created
FROM ledger_entries
WHERE player_id = ?
ORDER BY created DESC, reference DESC
LIMIT ?`), playerID, limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
