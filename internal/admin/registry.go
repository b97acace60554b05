// Package admin holds the role and configuration registry both engines
// consult. Roles are explicit capabilities mapped to addresses rather than
// scattered boolean flags, so authorization paths are testable in isolation.
package admin

import (
	"errors"
	"sync"
	"time"

	"github.com/pda-labs/gamecore/pkg/ledger"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidTier  = errors.New("invalid tier")
	ErrInvalidValue = errors.New("invalid value")
)

// Role is a capability granted to an address
type Role int

const (
	// RoleOwner may change configuration and authorize contracts
	RoleOwner Role = iota
	// RoleOperator may declare winners and trigger refunds and daily locks
	RoleOperator
)

// Defaults recovered from the production deployment configuration.
var (
	DefaultTiers = []ledger.Amount{
		ledger.MustAmount("0.001"),
		ledger.MustAmount("0.002"),
		ledger.MustAmount("0.003"),
	}
	DefaultGameTimeout    = time.Hour
	DefaultPlayersPerGame = 3
	DefaultFeeBps         = int64(500)
)

// Registry is the owner-gated configuration store. Every engine call reads
// the current values through it; nothing is cached across configuration
// changes.
type Registry struct {
	mu sync.RWMutex

	owner            ledger.Address
	operator         ledger.Address
	operationAddress ledger.Address
	dappAddress      ledger.Address

	tiers          []ledger.Amount
	gameTimeout    time.Duration
	playersPerGame int
	feeBps         int64
}

// NewRegistry creates a registry with the given owner and default config
func NewRegistry(owner ledger.Address) *Registry {
	tiers := make([]ledger.Amount, len(DefaultTiers))
	copy(tiers, DefaultTiers)

	return &Registry{
		owner:          owner,
		tiers:          tiers,
		gameTimeout:    DefaultGameTimeout,
		playersPerGame: DefaultPlayersPerGame,
		feeBps:         DefaultFeeBps,
	}
}

// requireOwner returns ErrUnauthorized unless caller is the owner.
func (r *Registry) requireOwner(caller ledger.Address) error {
	if caller != r.owner {
		return ErrUnauthorized
	}
	return nil
}

// HasRole reports whether an address holds a role. The owner implicitly
// holds the operator role.
func (r *Registry) HasRole(addr ledger.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch role {
	case RoleOwner:
		return addr == r.owner
	case RoleOperator:
		return addr == r.operator || addr == r.owner
	default:
		return false
	}
}

// Owner returns the owner address
func (r *Registry) Owner() ledger.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// Operator returns the operator address
func (r *Registry) Operator() ledger.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operator
}

// SetOperator assigns the operator role. Owner only.
func (r *Registry) SetOperator(caller, operator ledger.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.operator = operator
	return nil
}

// OperationAddress returns the fee recipient address
func (r *Registry) OperationAddress() ledger.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operationAddress
}

// SetOperationAddress sets the fee recipient. Owner only.
func (r *Registry) SetOperationAddress(caller, addr ledger.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.operationAddress = addr
	return nil
}

// DappAddress returns the dapp frontend address
func (r *Registry) DappAddress() ledger.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dappAddress
}

// SetDappAddress sets the dapp frontend address. Owner only.
func (r *Registry) SetDappAddress(caller, addr ledger.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.dappAddress = addr
	return nil
}

// Tiers returns a copy of the configured bet tiers
func (r *Registry) Tiers() []ledger.Amount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ledger.Amount, len(r.tiers))
	copy(out, r.tiers)
	return out
}

// Tier returns the stake amount for a tier index
func (r *Registry) Tier(index int) (ledger.Amount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.tiers) {
		return ledger.Zero, ErrInvalidTier
	}
	return r.tiers[index], nil
}

// IsTier reports whether an amount matches a configured tier
func (r *Registry) IsTier(amount ledger.Amount) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tiers {
		if t.Equal(amount) {
			return true
		}
	}
	return false
}

// SetTier sets or appends a tier stake amount. Owner only. Index must be
// within the current tier list or exactly one past its end.
func (r *Registry) SetTier(caller ledger.Address, index int, amount ledger.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidValue
	}
	switch {
	case index >= 0 && index < len(r.tiers):
		r.tiers[index] = amount
	case index == len(r.tiers):
		r.tiers = append(r.tiers, amount)
	default:
		return ErrInvalidTier
	}
	return nil
}

// GameTimeout returns the refund timeout
func (r *Registry) GameTimeout() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gameTimeout
}

// SetGameTimeout sets the refund timeout. Owner only.
func (r *Registry) SetGameTimeout(caller ledger.Address, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if d <= 0 {
		return ErrInvalidValue
	}
	r.gameTimeout = d
	return nil
}

// PlayersPerGame returns the game capacity
func (r *Registry) PlayersPerGame() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playersPerGame
}

// SetPlayersPerGame sets the game capacity. Owner only. Takes effect for
// games created afterwards; open games keep the capacity they were created
// with.
func (r *Registry) SetPlayersPerGame(caller ledger.Address, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if n < 2 {
		return ErrInvalidValue
	}
	r.playersPerGame = n
	return nil
}

// FeeBps returns the settlement fee in basis points
func (r *Registry) FeeBps() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeBps
}

// SetFeeBps sets the settlement fee. Owner only. Capped at 100%.
func (r *Registry) SetFeeBps(caller ledger.Address, bps int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if bps < 0 || bps > 10000 {
		return ErrInvalidValue
	}
	r.feeBps = bps
	return nil
}
