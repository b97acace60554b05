// Package liquidity implements the pooled-value custody engine. One shared
// pool backs both the deposit and game flows; authorized callers are tagged
// with a source so the two flows can be reported and limited independently
// without splitting the pool.
package liquidity

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
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyLocked       = errors.New("day already locked")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// lock fraction of a day's net inflow: 1/5
const (
	lockNumerator   = 1
	lockDenominator = 5
)

// DayBucket accumulates per-source flow counters for one accounting day
type DayBucket struct {
	Inflow       map[ledger.SourceTag]ledger.Amount
	Outflow      map[ledger.SourceTag]ledger.Amount
	Locked       bool
	LockedAmount ledger.Amount
}

func newDayBucket() *DayBucket {
	return &DayBucket{
		Inflow:  make(map[ledger.SourceTag]ledger.Amount),
		Outflow: make(map[ledger.SourceTag]ledger.Amount),
	}
}

// Stats receives accounting measurements for analytics
type Stats interface {
	LiquidityPoint(kind string, amount, balance ledger.Amount, day int64)
}

// DayCoordinator serializes the daily lock across replicas. Acquire blocks
// until the replica holds the day's lock and returns a release func.
type DayCoordinator interface {
	Acquire(ctx context.Context, day int64) (release func(), err error)
}

// Manager owns the pooled backing value. All mutating operations serialize
// on one mutex; when the game engine records a flow during a join, its lock
// is always taken before this one (game before liquidity, never reversed).
type Manager struct {
	registry *admin.Registry
	journal  *Journal
	msg      *messaging.Client
	stats    Stats
	coord    DayCoordinator
	now      func() time.Time

	mu             sync.Mutex
	authorized     map[ledger.Address]bool
	source         map[ledger.Address]ledger.SourceTag
	balance        ledger.Amount
	totalLPLocked  ledger.Amount
	totalPDABurned ledger.Amount
	days           map[int64]*DayBucket
}

// Option configures optional manager collaborators
type Option func(*Manager)

// WithJournal persists every accounting entry to postgres
func WithJournal(j *Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithMessaging publishes accounting events over NATS
func WithMessaging(c *messaging.Client) Option {
	return func(m *Manager) { m.msg = c }
}

// WithStats records analytics measurements
func WithStats(s Stats) Option {
	return func(m *Manager) { m.stats = s }
}

// WithCoordinator guards LockDaily with a cross-replica lock
func WithCoordinator(c DayCoordinator) Option {
	return func(m *Manager) { m.coord = c }
}

// WithClock injects the wall clock. Test path.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a liquidity manager
func NewManager(registry *admin.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry:       registry,
		now:            time.Now,
		authorized:     make(map[ledger.Address]bool),
		source:         make(map[ledger.Address]ledger.SourceTag),
		balance:        ledger.Zero,
		totalLPLocked:  ledger.Zero,
		totalPDABurned: ledger.Zero,
		days:           make(map[int64]*DayBucket),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddAuthorizedContract grants an address the right to move pooled value,
// tagged with a source. Owner only. Re-authorizing with the same tag is a
// no-op; a different tag overwrites the tag. Counters are never reset.
func (m *Manager) AddAuthorizedContract(caller, addr ledger.Address, tag ledger.SourceTag) error {
	if !m.registry.HasRole(caller, admin.RoleOwner) {
		return admin.ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized[addr] = true
	m.source[addr] = tag
	return nil
}

// RemoveAuthorizedContract revokes an address. Owner only. Already-recorded
// flows and finalized games are unaffected.
func (m *Manager) RemoveAuthorizedContract(caller, addr ledger.Address) error {
	if !m.registry.HasRole(caller, admin.RoleOwner) {
		return admin.ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.authorized, addr)
	delete(m.source, addr)
	return nil
}

// AuthorizedContract reports whether an address may move pooled value
func (m *Manager) AuthorizedContract(addr ledger.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorized[addr]
}

// ContractSource returns the source tag recorded for an address
func (m *Manager) ContractSource(addr ledger.Address) ledger.SourceTag {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source[addr]
}

// CurrentDay returns the current accounting day bucket index
func (m *Manager) CurrentDay() int64 {
	return ledger.DayFromTime(m.now())
}

// TotalLPLocked returns the cumulative locked counter
func (m *Manager) TotalLPLocked() ledger.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLPLocked
}

// TotalPDABurned returns the cumulative burn counter
func (m *Manager) TotalPDABurned() ledger.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalPDABurned
}

// Balance returns the pool balance including the locked portion
func (m *Manager) Balance() ledger.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// DayStats returns a copy of one day's flow counters
func (m *Manager) DayStats(day int64) DayBucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := *newDayBucket()
	b, ok := m.days[day]
	if !ok {
		return out
	}
	for tag, a := range b.Inflow {
		out.Inflow[tag] = a
	}
	for tag, a := range b.Outflow {
		out.Outflow[tag] = a
	}
	out.Locked = b.Locked
	out.LockedAmount = b.LockedAmount
	return out
}

// RecordInflow credits the pool from an authorized caller's flow
func (m *Manager) RecordInflow(ctx context.Context, caller ledger.Address, amount ledger.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.authorized[caller] {
		return admin.ErrUnauthorized
	}

	tag := m.source[caller]
	day := ledger.DayFromTime(m.now())
	newBalance := m.balance.Add(amount)

	if err := m.journalEntry(ctx, caller, tag, "inflow", amount, newBalance, day); err != nil {
		return err
	}

	m.balance = newBalance
	bucket := m.day(day)
	bucket.Inflow[tag] = bucket.Inflow[tag].Add(amount)

	m.publish(ctx, messaging.SubjectLiquidityInflow, caller, tag.String(), amount, newBalance, day)
	if m.stats != nil {
		m.stats.LiquidityPoint("inflow", amount, newBalance, day)
	}
	return nil
}

// RecordOutflow debits the pool for an authorized caller's flow. Bounded by
// the unlocked balance.
func (m *Manager) RecordOutflow(ctx context.Context, caller ledger.Address, amount ledger.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.authorized[caller] {
		return admin.ErrUnauthorized
	}

	if m.unlocked().LessThan(amount) {
		return ErrInsufficientBalance
	}

	tag := m.source[caller]
	day := ledger.DayFromTime(m.now())
	newBalance := m.balance.Sub(amount)

	if err := m.journalEntry(ctx, caller, tag, "outflow", amount, newBalance, day); err != nil {
		return err
	}

	m.balance = newBalance
	bucket := m.day(day)
	bucket.Outflow[tag] = bucket.Outflow[tag].Add(amount)

	m.publish(ctx, messaging.SubjectLiquidityOutflow, caller, tag.String(), amount, newBalance, day)
	if m.stats != nil {
		m.stats.LiquidityPoint("outflow", amount, newBalance, day)
	}
	return nil
}

// LockDaily moves a fraction of the current day's net inflow into the locked
// counter. Owner or operator. Idempotent per day: a second call for the same
// day fails with ErrAlreadyLocked. With a coordinator configured the lock is
// also serialized across replicas.
func (m *Manager) LockDaily(ctx context.Context, caller ledger.Address) (ledger.Amount, error) {
	if !m.registry.HasRole(caller, admin.RoleOperator) {
		return ledger.Zero, admin.ErrUnauthorized
	}

	day := ledger.DayFromTime(m.now())

	if m.coord != nil {
		release, err := m.coord.Acquire(ctx, day)
		if err != nil {
			return ledger.Zero, err
		}
		defer release()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.day(day)
	if bucket.Locked {
		return ledger.Zero, ErrAlreadyLocked
	}

	net := ledger.Zero
	for _, a := range bucket.Inflow {
		net = net.Add(a)
	}
	for _, a := range bucket.Outflow {
		net = net.Sub(a)
	}
	if net.IsNegative() {
		net = ledger.Zero
	}

	locked := net.MulInt(lockNumerator).DivInt(lockDenominator)

	if err := m.journalDayLock(ctx, day, locked); err != nil {
		return ledger.Zero, err
	}

	bucket.Locked = true
	bucket.LockedAmount = locked
	m.totalLPLocked = m.totalLPLocked.Add(locked)

	m.publish(ctx, messaging.SubjectLiquidityLocked, caller, "", locked, m.balance, day)
	if m.stats != nil {
		m.stats.LiquidityPoint("lock", locked, m.balance, day)
	}
	return locked, nil
}

// ReleaseLock returns previously locked value to circulation on the release
// schedule. Owner only. The locked counter never goes below zero.
func (m *Manager) ReleaseLock(ctx context.Context, caller ledger.Address, amount ledger.Amount) error {
	if !m.registry.HasRole(caller, admin.RoleOwner) {
		return admin.ErrUnauthorized
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalLPLocked.LessThan(amount) {
		return ErrInsufficientBalance
	}

	day := ledger.DayFromTime(m.now())
	if err := m.journalEntry(ctx, caller, 0, "release", amount, m.balance, day); err != nil {
		return err
	}

	m.totalLPLocked = m.totalLPLocked.Sub(amount)
	return nil
}

// Burn permanently removes value from the pool. Owner or operator. Bounded
// by the unlocked balance; the burn counter only ever increases.
func (m *Manager) Burn(ctx context.Context, caller ledger.Address, amount ledger.Amount) error {
	if !m.registry.HasRole(caller, admin.RoleOperator) {
		return admin.ErrUnauthorized
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unlocked().LessThan(amount) {
		return ErrInsufficientBalance
	}

	day := ledger.DayFromTime(m.now())
	newBalance := m.balance.Sub(amount)

	if err := m.journalEntry(ctx, caller, 0, "burn", amount, newBalance, day); err != nil {
		return err
	}

	m.balance = newBalance
	m.totalPDABurned = m.totalPDABurned.Add(amount)

	m.publish(ctx, messaging.SubjectLiquidityBurned, caller, "", amount, newBalance, day)
	if m.stats != nil {
		m.stats.LiquidityPoint("burn", amount, newBalance, day)
	}
	return nil
}

// unlocked returns the circulating pool balance. Caller holds m.mu.
func (m *Manager) unlocked() ledger.Amount {
	return m.balance.Sub(m.totalLPLocked)
}

// day returns the bucket for a day, creating it if needed. Caller holds m.mu.
func (m *Manager) day(day int64) *DayBucket {
	b, ok := m.days[day]
	if !ok {
		b = newDayBucket()
		m.days[day] = b
	}
	return b
}

func (m *Manager) journalEntry(ctx context.Context, caller ledger.Address, tag ledger.SourceTag, kind string, amount, balance ledger.Amount, day int64) error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Append(ctx, Entry{
		ID:      uuid.New(),
		Caller:  caller,
		Source:  tag,
		Kind:    kind,
		Amount:  amount,
		Balance: balance,
		Day:     day,
		At:      m.now(),
	})
}

func (m *Manager) journalDayLock(ctx context.Context, day int64, amount ledger.Amount) error {
	if m.journal == nil {
		return nil
	}
	return m.journal.MarkDayLocked(ctx, day, amount, m.now())
}

func (m *Manager) publish(ctx context.Context, subject string, caller ledger.Address, source string, amount, balance ledger.Amount, day int64) {
	if m.msg == nil {
		return
	}
	m.msg.Publish(ctx, subject, messaging.LiquidityEvent{
		EventID:   uuid.New(),
		Caller:    caller.String(),
		Source:    source,
		Amount:    amount.String(),
		Balance:   balance.String(),
		Day:       day,
		Timestamp: m.now(),
	})
}
