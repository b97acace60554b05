package game

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pda-labs/gamecore/pkg/ledger"
)

// Archive persists finalized games to postgres. Open games live only in the
// engine; a row exists exactly when a game has been settled or refunded.
type Archive struct {
	db *sql.DB
}

// NewArchive wraps an open postgres handle
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Save writes one finalized game
func (a *Archive) Save(ctx context.Context, v View) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO games (id, bet_amount, players, start_time, end_time, finished, refunded, winner)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		v.ID, v.BetAmount.String(), pq.Array(addressStrings(v.Players)),
		v.StartTime, v.EndTime, v.Finished, v.Refunded, v.Winner.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive game %d: %w", v.ID, err)
	}
	return nil
}

// Load reads one archived game
func (a *Archive) Load(ctx context.Context, id uint64) (View, error) {
	var (
		v       View
		bet     string
		players pq.StringArray
		winner  string
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT id, bet_amount, players, start_time, end_time, finished, refunded, winner
		FROM games WHERE id = $1`, id,
	).Scan(&v.ID, &bet, &players, &v.StartTime, &v.EndTime, &v.Finished, &v.Refunded, &winner)
	if err == sql.ErrNoRows {
		return View{}, ErrGameNotFound
	}
	if err != nil {
		return View{}, fmt.Errorf("failed to load game %d: %w", id, err)
	}

	v.BetAmount, err = ledger.NewAmount(bet)
	if err != nil {
		return View{}, fmt.Errorf("failed to parse archived bet amount: %w", err)
	}
	v.Players = make([]ledger.Address, len(players))
	for i, p := range players {
		v.Players[i] = ledger.Address(p)
	}
	v.Winner = ledger.Address(winner)
	return v, nil
}

// Recent returns the newest finalized games, newest first
func (a *Archive) Recent(ctx context.Context, limit int) ([]View, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, bet_amount, players, start_time, end_time, finished, refunded, winner
		FROM games ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived games: %w", err)
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		var (
			v       View
			bet     string
			players pq.StringArray
			winner  string
		)
		if err := rows.Scan(&v.ID, &bet, &players, &v.StartTime, &v.EndTime, &v.Finished, &v.Refunded, &winner); err != nil {
			return nil, fmt.Errorf("failed to scan archived game: %w", err)
		}
		if v.BetAmount, err = ledger.NewAmount(bet); err != nil {
			return nil, fmt.Errorf("failed to parse archived bet amount: %w", err)
		}
		v.Players = make([]ledger.Address, len(players))
		for i, p := range players {
			v.Players[i] = ledger.Address(p)
		}
		v.Winner = ledger.Address(winner)
		views = append(views, v)
	}
	return views, rows.Err()
}

func addressStrings(addrs []ledger.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
