package liquidity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pda-labs/gamecore/pkg/ledger"
)

// Entry is one journaled accounting movement
type Entry struct {
	ID      uuid.UUID
	Caller  ledger.Address
	Source  ledger.SourceTag
	Kind    string // "inflow", "outflow", "burn", "release"
	Amount  ledger.Amount
	Balance ledger.Amount
	Day     int64
	At      time.Time
}

// Journal persists accounting entries and day-lock markers to postgres.
// The unique constraint on the day column doubles as a cross-process
// double-lock backstop.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a journal over an open database handle
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Append inserts one accounting entry
func (j *Journal) Append(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO liquidity_entries (id, caller, source, kind, amount, balance, day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Caller.String(), int(e.Source), e.Kind,
		e.Amount.String(), e.Balance.String(), e.Day, e.At,
	)
	if err != nil {
		return fmt.Errorf("failed to journal entry: %w", err)
	}
	return nil
}

// MarkDayLocked records the daily lock for a day. Fails if the day row
// already exists.
func (j *Journal) MarkDayLocked(ctx context.Context, day int64, amount ledger.Amount, at time.Time) error {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO liquidity_days (day, locked_amount, locked_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (day) DO NOTHING`,
		day, amount.String(), at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark day locked: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark day locked: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyLocked
	}
	return nil
}

// Entries returns the most recent journal entries for a day
func (j *Journal) Entries(ctx context.Context, day int64, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, caller, source, kind, amount, balance, day, created_at
		 FROM liquidity_entries WHERE day = $1 ORDER BY created_at DESC LIMIT $2`,
		day, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			caller  string
			source  int
			amount  string
			balance string
		)
		if err := rows.Scan(&e.ID, &caller, &source, &e.Kind, &amount, &balance, &e.Day, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Caller = ledger.Address(caller)
		e.Source = ledger.SourceTag(source)
		if e.Amount, err = ledger.NewAmount(amount); err != nil {
			return nil, fmt.Errorf("corrupt entry amount: %w", err)
		}
		if e.Balance, err = ledger.NewAmount(balance); err != nil {
			return nil, fmt.Errorf("corrupt entry balance: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
