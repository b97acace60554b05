package game

import (
	"time"

	"github.com/pda-labs/gamecore/pkg/ledger"
)

// Game is one pooled-wager round. The players slice is the only record of
// enrollment; every external view is a projection of it, so the roster and
// its count can never disagree.
type Game struct {
	ID        uint64
	BetAmount ledger.Amount
	Capacity  int
	StartTime time.Time
	EndTime   time.Time
	Finished  bool
	Refunded  bool
	Winner    ledger.Address

	players []ledger.Address
}

// View is a read-only snapshot of a game
type View struct {
	ID        uint64           `json:"id"`
	BetAmount ledger.Amount    `json:"bet_amount"`
	Players   []ledger.Address `json:"players"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Finished  bool             `json:"finished"`
	Refunded  bool             `json:"refunded"`
	Winner    ledger.Address   `json:"winner"`
}

// CurrentView describes the joinable state of a bet tier
type CurrentView struct {
	GameID      uint64        `json:"game_id"`
	BetAmount   ledger.Amount `json:"bet_amount"`
	PlayerCount int           `json:"player_count"`
	StartTime   time.Time     `json:"start_time"`
	CanJoin     bool          `json:"can_join"`
}

func (g *Game) view() View {
	players := make([]ledger.Address, len(g.players))
	copy(players, g.players)
	return View{
		ID:        g.ID,
		BetAmount: g.BetAmount,
		Players:   players,
		StartTime: g.StartTime,
		EndTime:   g.EndTime,
		Finished:  g.Finished,
		Refunded:  g.Refunded,
		Winner:    g.Winner,
	}
}

// Game returns the full snapshot of a game by id
func (e *Engine) Game(id uint64) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[id]
	if !ok {
		return View{}, ErrGameNotFound
	}
	return g.view(), nil
}

// GamePlayers returns the roster of a game by id. Derived from the same
// slice Game projects, so the two views always agree.
func (e *Engine) GamePlayers(id uint64) ([]ledger.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	players := make([]ledger.Address, len(g.players))
	copy(players, g.players)
	return players, nil
}

// CurrentGame reports the joinable state of a bet tier. An unconfigured tier
// is never joinable; a tier with no game yet is joinable, the first join
// creates the game.
func (e *Engine) CurrentGame(betAmount ledger.Amount) CurrentView {
	view := CurrentView{BetAmount: betAmount}
	if !e.registry.IsTier(betAmount) {
		return view
	}
	view.CanJoin = true

	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.current[betAmount.String()]
	if !ok {
		return view
	}
	g := e.games[id]
	view.GameID = g.ID
	view.PlayerCount = len(g.players)
	view.StartTime = g.StartTime
	view.CanJoin = !g.Finished && len(g.players) < g.Capacity
	return view
}
