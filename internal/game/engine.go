// Package game implements the pooled-wager matchmaking and settlement state
// machine. Players join a bet-tier queue; a game pays out exactly once to a
// declared winner or refunds every stake after the timeout.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/internal/referral"
	"github.com/pda-labs/gamecore/internal/token"
	"github.com/pda-labs/gamecore/pkg/circuit"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/pda-labs/gamecore/pkg/messaging"
)

var (
	ErrInvalidBetAmount = errors.New("invalid bet amount")
	ErrAlreadyJoined    = errors.New("player already joined")
	ErrGameFull         = errors.New("game is full")
	ErrGameNotFull      = errors.New("game is not full")
	ErrInvalidWinner    = errors.New("winner is not a player")
	ErrAlreadyFinished  = errors.New("game already finished")
	ErrGameNotFound     = errors.New("game not found")
	ErrGameNotExpired   = errors.New("game timeout not reached")
)

// referral reward taken as a fraction of the joining stake, in basis points
const referralBps = 100

// LiquidityRecorder is the authorized-source accounting path every stake and
// payout moves through.
type LiquidityRecorder interface {
	RecordInflow(ctx context.Context, caller ledger.Address, amount ledger.Amount) error
	RecordOutflow(ctx context.Context, caller ledger.Address, amount ledger.Amount) error
}

// ReferralCreditor records referral rewards. Called best-effort on join.
type ReferralCreditor interface {
	CreditReferral(ctx context.Context, caller, player, referrer ledger.Address, amount ledger.Amount) error
}

// Stats receives settlement measurements for analytics
type Stats interface {
	GamePoint(kind string, gameID uint64, bet ledger.Amount, players int, payout, fee ledger.Amount)
}

// Engine is the matchmaking and settlement engine. One mutex serializes all
// mutating operations; when an operation must record a flow, the engine lock
// is always held before the liquidity manager takes its own (fixed ordering,
// never reversed).
type Engine struct {
	address   ledger.Address
	registry  *admin.Registry
	liquidity LiquidityRecorder
	referral  ReferralCreditor
	breaker   *circuit.Breaker
	tokens    token.Source
	msg       *messaging.Client
	archive   *Archive
	stats     Stats
	now       func() time.Time

	mu      sync.Mutex
	games   map[uint64]*Game
	current map[string]uint64 // tier amount -> open game id
	nextID  uint64
}

// Option configures optional engine collaborators
type Option func(*Engine)

// WithReferral wires the referral gateway, called through a circuit breaker
func WithReferral(r ReferralCreditor) Option {
	return func(e *Engine) { e.referral = r }
}

// WithMessaging publishes game lifecycle events over NATS
func WithMessaging(c *messaging.Client) Option {
	return func(e *Engine) { e.msg = c }
}

// WithArchive persists finalized games to postgres
func WithArchive(a *Archive) Option {
	return func(e *Engine) { e.archive = a }
}

// WithStats records analytics measurements
func WithStats(s Stats) Option {
	return func(e *Engine) { e.stats = s }
}

// WithClock injects the wall clock. Test path.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a game engine. The address is the engine's identity on
// the liquidity manager's authorized-source gate and its escrow account on
// the token layer.
func NewEngine(address ledger.Address, registry *admin.Registry, liquidity LiquidityRecorder, tokens token.Source, opts ...Option) *Engine {
	e := &Engine{
		address:   address,
		registry:  registry,
		liquidity: liquidity,
		tokens:    tokens,
		now:       time.Now,
		games:     make(map[uint64]*Game),
		current:   make(map[string]uint64),
		nextID:    1,
		breaker: circuit.NewBreaker(circuit.Config{
			Name:        "referral",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			HalfOpenMax: 3,
		}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address returns the engine's identity address
func (e *Engine) Address() ledger.Address {
	return e.address
}

// Registry returns the shared admin registry
func (e *Engine) Registry() *admin.Registry {
	return e.registry
}

// Join enrolls a player into the current open game for a bet tier, pulling
// the stake through the token layer and recording it as a game-source inflow.
// A non-zero referrer is credited best-effort: a referral failure never rolls
// back the join. Joining a tier whose current game has timed out refunds that
// game first and enrolls the player into a fresh one.
func (e *Engine) Join(ctx context.Context, player ledger.Address, betAmount ledger.Amount, referrer ledger.Address) (uint64, error) {
	if !e.registry.IsTier(betAmount) {
		return 0, ErrInvalidBetAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.currentLocked(ctx, betAmount)
	if err != nil {
		return 0, err
	}

	if len(g.players) >= g.Capacity {
		// current bookkeeping should never point at a full game
		return 0, ErrGameFull
	}
	for _, p := range g.players {
		if p == player {
			return 0, ErrAlreadyJoined
		}
	}

	// pull the stake into escrow, then account for it; unwind the pull if
	// accounting rejects the flow
	if err := e.tokens.TransferFrom(e.address, player, e.address, betAmount); err != nil {
		return 0, fmt.Errorf("failed to collect stake: %w", err)
	}
	if err := e.liquidity.RecordInflow(ctx, e.address, betAmount); err != nil {
		if rbErr := e.tokens.Transfer(e.address, player, betAmount); rbErr != nil {
			log.Printf("game: stake rollback for %s failed: %v", player, rbErr)
		}
		return 0, fmt.Errorf("failed to record inflow: %w", err)
	}

	g.players = append(g.players, player)
	if g.StartTime.IsZero() {
		g.StartTime = e.now()
	}

	if e.referral != nil {
		// credits the existing upline when referrer is zero; joins with no
		// creditable upline or a rejected binding are skipped without
		// tripping the breaker
		credit := betAmount.MulBps(referralBps)
		err := e.breaker.Execute(ctx, func() error {
			err := e.referral.CreditReferral(ctx, e.address, player, referrer, credit)
			switch {
			case errors.Is(err, referral.ErrNoUpline),
				errors.Is(err, referral.ErrSelfReferral),
				errors.Is(err, referral.ErrCircularReferral):
				return nil
			}
			return err
		})
		if err != nil {
			log.Printf("game: referral credit for %s skipped: %v", player, err)
		}
	}

	e.publishJoin(ctx, g, player)

	if len(g.players) == g.Capacity {
		// full games stop accepting joins; the tier reopens when the
		// operator settles or the timeout refund runs
		e.publishFull(ctx, g)
	}

	return g.ID, nil
}

// DeclareWinner settles a full game: the pot leaves the pool, the winner is
// paid pot minus fee, and the fee goes to the operation address. Operator
// only. The winner must be one of the game's players.
func (e *Engine) DeclareWinner(ctx context.Context, caller ledger.Address, gameID uint64, winner ledger.Address) error {
	if !e.registry.HasRole(caller, admin.RoleOperator) {
		return admin.ErrUnauthorized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if g.Finished {
		return ErrAlreadyFinished
	}
	if len(g.players) < g.Capacity {
		return ErrGameNotFull
	}

	isPlayer := false
	for _, p := range g.players {
		if p == winner {
			isPlayer = true
			break
		}
	}
	if !isPlayer {
		return ErrInvalidWinner
	}

	pot := g.BetAmount.MulInt(int64(len(g.players)))
	fee := ledger.Zero
	operation := e.registry.OperationAddress()
	if !operation.IsZero() {
		fee = pot.MulBps(e.registry.FeeBps())
	}
	payout := pot.Sub(fee)

	if err := e.liquidity.RecordOutflow(ctx, e.address, pot); err != nil {
		return fmt.Errorf("failed to record outflow: %w", err)
	}
	if err := e.tokens.Transfer(e.address, winner, payout); err != nil {
		e.compensateOutflow(ctx, pot)
		return fmt.Errorf("failed to pay winner: %w", err)
	}
	if fee.IsPositive() {
		if err := e.tokens.Transfer(e.address, operation, fee); err != nil {
			// winner is already paid; the fee shortfall is operational,
			// not a settlement failure
			log.Printf("game: fee transfer for game %d failed: %v", gameID, err)
		}
	}

	g.Winner = winner
	g.EndTime = e.now()
	g.Finished = true

	e.finalizeLocked(ctx, g)
	e.publishSettled(ctx, g, payout, fee)
	if e.stats != nil {
		e.stats.GamePoint("settled", g.ID, g.BetAmount, len(g.players), payout, fee)
	}
	return nil
}

// RefundExpired refunds every stake of an open game whose timeout has
// elapsed. Owner or operator. Full games are settled, not refunded.
func (e *Engine) RefundExpired(ctx context.Context, caller ledger.Address, gameID uint64) error {
	if !e.registry.HasRole(caller, admin.RoleOperator) {
		return admin.ErrUnauthorized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if g.Finished {
		return ErrAlreadyFinished
	}
	if len(g.players) >= g.Capacity {
		return ErrGameFull
	}
	if !e.expiredLocked(g) {
		return ErrGameNotExpired
	}

	return e.refundLocked(ctx, g)
}

// expiredLocked reports whether an open game has outlived the timeout.
// Caller holds e.mu.
func (e *Engine) expiredLocked(g *Game) bool {
	if g.StartTime.IsZero() {
		return false
	}
	return e.now().Sub(g.StartTime) > e.registry.GameTimeout()
}

// refundLocked returns each player's stake and finalizes the game as
// refunded. Caller holds e.mu and has verified the game is refundable.
func (e *Engine) refundLocked(ctx context.Context, g *Game) error {
	total := g.BetAmount.MulInt(int64(len(g.players)))
	if total.IsPositive() {
		if err := e.liquidity.RecordOutflow(ctx, e.address, total); err != nil {
			return fmt.Errorf("failed to record refund outflow: %w", err)
		}
		for i, p := range g.players {
			if err := e.tokens.Transfer(e.address, p, g.BetAmount); err != nil {
				// unwind the portion not yet paid out
				remaining := g.BetAmount.MulInt(int64(len(g.players) - i))
				e.compensateOutflow(ctx, remaining)
				return fmt.Errorf("failed to refund %s: %w", p, err)
			}
		}
	}

	g.Refunded = true
	g.EndTime = e.now()
	g.Finished = true

	e.finalizeLocked(ctx, g)
	e.publishRefunded(ctx, g)
	if e.stats != nil {
		e.stats.GamePoint("refunded", g.ID, g.BetAmount, len(g.players), total, ledger.Zero)
	}
	return nil
}

// compensateOutflow re-records an inflow after a failed payout so pool
// accounting matches escrow again.
func (e *Engine) compensateOutflow(ctx context.Context, amount ledger.Amount) {
	if !amount.IsPositive() {
		return
	}
	if err := e.liquidity.RecordInflow(ctx, e.address, amount); err != nil {
		log.Printf("game: outflow compensation failed: %v", err)
	}
}

// currentLocked resolves the open game for a tier, refunding a timed-out one
// and creating a fresh game when needed. Caller holds e.mu.
func (e *Engine) currentLocked(ctx context.Context, betAmount ledger.Amount) (*Game, error) {
	key := betAmount.String()

	if id, ok := e.current[key]; ok {
		g := e.games[id]
		if !g.Finished {
			if len(g.players) < g.Capacity && e.expiredLocked(g) {
				if err := e.refundLocked(ctx, g); err != nil {
					return nil, err
				}
			} else {
				return g, nil
			}
		}
	}

	g := &Game{
		ID:        e.nextID,
		BetAmount: betAmount,
		Capacity:  e.registry.PlayersPerGame(),
	}
	e.nextID++
	e.games[g.ID] = g
	e.current[key] = g.ID
	return g, nil
}

// finalizeLocked archives a finalized game and reopens the tier with a fresh
// current game. Caller holds e.mu.
func (e *Engine) finalizeLocked(ctx context.Context, g *Game) {
	if e.archive != nil {
		if err := e.archive.Save(ctx, g.view()); err != nil {
			log.Printf("game: archive of game %d failed: %v", g.ID, err)
		}
	}

	key := g.BetAmount.String()
	if e.current[key] != g.ID {
		return
	}

	next := &Game{
		ID:        e.nextID,
		BetAmount: g.BetAmount,
		Capacity:  e.registry.PlayersPerGame(),
	}
	e.nextID++
	e.games[next.ID] = next
	e.current[key] = next.ID
}

func (e *Engine) publishJoin(ctx context.Context, g *Game, player ledger.Address) {
	if e.msg == nil {
		return
	}
	e.msg.Publish(ctx, messaging.SubjectGameJoined, messaging.GameEvent{
		EventID:     uuid.New(),
		GameID:      g.ID,
		BetAmount:   g.BetAmount.String(),
		Player:      player.String(),
		PlayerCount: len(g.players),
		Timestamp:   e.now(),
	})
}

func (e *Engine) publishFull(ctx context.Context, g *Game) {
	if e.msg == nil {
		return
	}
	e.msg.Publish(ctx, messaging.SubjectGameFull, messaging.GameEvent{
		EventID:     uuid.New(),
		GameID:      g.ID,
		BetAmount:   g.BetAmount.String(),
		PlayerCount: len(g.players),
		Timestamp:   e.now(),
	})
}

func (e *Engine) publishSettled(ctx context.Context, g *Game, payout, fee ledger.Amount) {
	if e.msg == nil {
		return
	}
	e.msg.Publish(ctx, messaging.SubjectGameSettled, messaging.GameEvent{
		EventID:     uuid.New(),
		GameID:      g.ID,
		BetAmount:   g.BetAmount.String(),
		PlayerCount: len(g.players),
		Winner:      g.Winner.String(),
		Payout:      payout.String(),
		Fee:         fee.String(),
		Timestamp:   e.now(),
	})
}

func (e *Engine) publishRefunded(ctx context.Context, g *Game) {
	if e.msg == nil {
		return
	}
	e.msg.Publish(ctx, messaging.SubjectGameRefunded, messaging.GameEvent{
		EventID:     uuid.New(),
		GameID:      g.ID,
		BetAmount:   g.BetAmount.String(),
		PlayerCount: len(g.players),
		Refunded:    true,
		Timestamp:   e.now(),
	})
}
