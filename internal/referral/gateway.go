// Package referral resolves uplines and records reward credits. The game and
// deposit engines consume it through the single capability the core needs:
// CreditReferral behind an authorized-caller gate.
package referral

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/pda-labs/gamecore/pkg/messaging"
)

var (
	ErrSelfReferral     = errors.New("self referral")
	ErrCircularReferral = errors.New("circular referral")
	ErrUplineSet        = errors.New("upline already set")
	ErrNoUpline         = errors.New("no upline to credit")
)

// Credit is one recorded referral reward
type Credit struct {
	ID       uuid.UUID
	Player   ledger.Address
	Referrer ledger.Address
	Amount   ledger.Amount
	At       time.Time
}

// Gateway owns the referral graph and credit ledger
type Gateway struct {
	registry *admin.Registry
	msg      *messaging.Client
	now      func() time.Time

	mu         sync.Mutex
	authorized map[ledger.Address]bool
	upline     map[ledger.Address]ledger.Address
	referrals  map[ledger.Address]int           // referrer -> active downline count
	credits    map[ledger.Address]ledger.Amount // referrer -> cumulative credit
	history    []Credit
}

// Option configures optional gateway collaborators
type Option func(*Gateway)

// WithMessaging publishes credit events over NATS
func WithMessaging(c *messaging.Client) Option {
	return func(g *Gateway) { g.msg = c }
}

// WithClock injects the wall clock. Test path.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway creates a referral gateway
func NewGateway(registry *admin.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry:   registry,
		now:        time.Now,
		authorized: make(map[ledger.Address]bool),
		upline:     make(map[ledger.Address]ledger.Address),
		referrals:  make(map[ledger.Address]int),
		credits:    make(map[ledger.Address]ledger.Amount),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddAuthorizedContract grants an address the right to record credits.
// Owner only. The referral gate carries no source tag.
func (g *Gateway) AddAuthorizedContract(caller, addr ledger.Address) error {
	if !g.registry.HasRole(caller, admin.RoleOwner) {
		return admin.ErrUnauthorized
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorized[addr] = true
	return nil
}

// RemoveAuthorizedContract revokes an address. Owner only.
func (g *Gateway) RemoveAuthorizedContract(caller, addr ledger.Address) error {
	if !g.registry.HasRole(caller, admin.RoleOwner) {
		return admin.ErrUnauthorized
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.authorized, addr)
	return nil
}

// AuthorizedContract reports whether an address may record credits
func (g *Gateway) AuthorizedContract(addr ledger.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorized[addr]
}

// SetUpline binds a player to a referrer. First write wins; self-referral
// and two-cycles are rejected.
func (g *Gateway) SetUpline(player, referrer ledger.Address) error {
	if player == referrer {
		return ErrSelfReferral
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.upline[player]; ok {
		return ErrUplineSet
	}
	if g.upline[referrer] == player {
		return ErrCircularReferral
	}

	g.upline[player] = referrer
	g.referrals[referrer]++
	return nil
}

// Upline returns a player's referrer, or the zero address
func (g *Gateway) Upline(player ledger.Address) ledger.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upline[player]
}

// ActiveReferralCount returns the number of players bound to a referrer
func (g *Gateway) ActiveReferralCount(referrer ledger.Address) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.referrals[referrer]
}

// Credits returns the cumulative credit recorded for a referrer
func (g *Gateway) Credits(referrer ledger.Address) ledger.Amount {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.credits[referrer]
}

// CreditReferral records a reward credit for a player's referrer. Caller
// must be an authorized contract. If the player has no upline yet and a
// non-zero referrer is supplied, the upline is bound first under the same
// rules SetUpline enforces.
func (g *Gateway) CreditReferral(ctx context.Context, caller, player, referrer ledger.Address, amount ledger.Amount) error {
	g.mu.Lock()

	if !g.authorized[caller] {
		g.mu.Unlock()
		return admin.ErrUnauthorized
	}

	target, bound := g.upline[player]
	if !bound {
		if referrer.IsZero() {
			g.mu.Unlock()
			return ErrNoUpline
		}
		if referrer == player {
			g.mu.Unlock()
			return ErrSelfReferral
		}
		if g.upline[referrer] == player {
			g.mu.Unlock()
			return ErrCircularReferral
		}
		g.upline[player] = referrer
		g.referrals[referrer]++
		target = referrer
	}

	credit := Credit{
		ID:       uuid.New(),
		Player:   player,
		Referrer: target,
		Amount:   amount,
		At:       g.now(),
	}
	g.credits[target] = g.credits[target].Add(amount)
	g.history = append(g.history, credit)
	g.mu.Unlock()

	if g.msg != nil {
		g.msg.Publish(ctx, messaging.SubjectReferralCredited, messaging.ReferralEvent{
			EventID:   uuid.New(),
			CreditID:  credit.ID,
			Player:    player.String(),
			Referrer:  target.String(),
			Amount:    amount.String(),
			Timestamp: credit.At,
		})
	}
	return nil
}

// History returns a copy of all recorded credits, oldest first
func (g *Gateway) History() []Credit {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Credit, len(g.history))
	copy(out, g.history)
	return out
}
