package liquidity

import (
	"context"
	"testing"
	"time"

	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/stretchr/testify/assert"
)

const (
	owner      = ledger.Address("owner")
	operator   = ledger.Address("operator")
	gameEngine = ledger.Address("game-engine")
	depositSvc = ledger.Address("deposit-svc")
	stranger   = ledger.Address("stranger")
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *admin.Registry) {
	t.Helper()
	registry := admin.NewRegistry(owner)
	assert.NoError(t, registry.SetOperator(owner, operator))
	return NewManager(registry, opts...), registry
}

func TestAuthorizedContracts(t *testing.T) {
	m, _ := newTestManager(t)

	t.Run("owner authorizes with a source tag", func(t *testing.T) {
		assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
		assert.True(t, m.AuthorizedContract(gameEngine))
		assert.Equal(t, ledger.SourceGame, m.ContractSource(gameEngine))
	})

	t.Run("non-owner cannot authorize", func(t *testing.T) {
		err := m.AddAuthorizedContract(stranger, stranger, ledger.SourceDeposit)
		assert.ErrorIs(t, err, admin.ErrUnauthorized)
		assert.False(t, m.AuthorizedContract(stranger))
	})

	t.Run("re-authorizing is idempotent and can retag", func(t *testing.T) {
		assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
		assert.Equal(t, ledger.SourceGame, m.ContractSource(gameEngine))

		assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceDeposit))
		assert.Equal(t, ledger.SourceDeposit, m.ContractSource(gameEngine))
	})

	t.Run("removal revokes the flow right", func(t *testing.T) {
		assert.NoError(t, m.RemoveAuthorizedContract(owner, gameEngine))
		assert.False(t, m.AuthorizedContract(gameEngine))

		err := m.RecordInflow(context.Background(), gameEngine, ledger.MustAmount("1"))
		assert.ErrorIs(t, err, admin.ErrUnauthorized)
	})
}

func TestRecordInflow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
	assert.NoError(t, m.AddAuthorizedContract(owner, depositSvc, ledger.SourceDeposit))

	t.Run("unauthorized caller is rejected without state change", func(t *testing.T) {
		err := m.RecordInflow(ctx, stranger, ledger.MustAmount("1"))
		assert.ErrorIs(t, err, admin.ErrUnauthorized)
		assert.True(t, m.Balance().IsZero())
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		assert.ErrorIs(t, m.RecordInflow(ctx, gameEngine, ledger.Zero), ErrInvalidAmount)
	})

	t.Run("credits balance and the caller's source bucket", func(t *testing.T) {
		assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("0.003")))
		assert.NoError(t, m.RecordInflow(ctx, depositSvc, ledger.MustAmount("1")))

		assert.True(t, m.Balance().Equal(ledger.MustAmount("1.003")))

		stats := m.DayStats(m.CurrentDay())
		assert.True(t, stats.Inflow[ledger.SourceGame].Equal(ledger.MustAmount("0.003")))
		assert.True(t, stats.Inflow[ledger.SourceDeposit].Equal(ledger.MustAmount("1")))
	})
}

func TestRecordOutflow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
	assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("10")))

	t.Run("debits balance and the source bucket", func(t *testing.T) {
		assert.NoError(t, m.RecordOutflow(ctx, gameEngine, ledger.MustAmount("3")))
		assert.True(t, m.Balance().Equal(ledger.MustAmount("7")))

		stats := m.DayStats(m.CurrentDay())
		assert.True(t, stats.Outflow[ledger.SourceGame].Equal(ledger.MustAmount("3")))
	})

	t.Run("cannot overdraw the pool", func(t *testing.T) {
		err := m.RecordOutflow(ctx, gameEngine, ledger.MustAmount("100"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.True(t, m.Balance().Equal(ledger.MustAmount("7")))
	})

	t.Run("locked value is not spendable", func(t *testing.T) {
		_, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)
		locked := m.TotalLPLocked()
		assert.False(t, locked.IsZero())

		available := m.Balance().Sub(locked)
		err = m.RecordOutflow(ctx, gameEngine, available.Add(ledger.MustAmount("0.001")))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		assert.NoError(t, m.RecordOutflow(ctx, gameEngine, available))
	})
}

func TestLockDaily(t *testing.T) {
	ctx := context.Background()

	t.Run("locks one fifth of the day's net inflow", func(t *testing.T) {
		m, _ := newTestManager(t)
		assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
		assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("10")))
		assert.NoError(t, m.RecordOutflow(ctx, gameEngine, ledger.MustAmount("5")))

		locked, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)
		assert.True(t, locked.Equal(ledger.MustAmount("1")))
		assert.True(t, m.TotalLPLocked().Equal(ledger.MustAmount("1")))

		stats := m.DayStats(m.CurrentDay())
		assert.True(t, stats.Locked)
		assert.True(t, stats.LockedAmount.Equal(ledger.MustAmount("1")))
	})

	t.Run("second lock for the same day fails", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)

		_, err = m.LockDaily(ctx, operator)
		assert.ErrorIs(t, err, ErrAlreadyLocked)
	})

	t.Run("negative net inflow locks zero", func(t *testing.T) {
		now := time.Now()
		clock := func() time.Time { return now }
		m, _ := newTestManager(t, WithClock(func() time.Time { return clock() }))
		assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
		assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("10")))

		// next day sees outflow only, net is negative
		clock = func() time.Time { return now.Add(24 * time.Hour) }
		assert.NoError(t, m.RecordOutflow(ctx, gameEngine, ledger.MustAmount("5")))

		locked, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)
		assert.True(t, locked.IsZero())
		assert.True(t, m.TotalLPLocked().IsZero())
	})

	t.Run("requires the operator role", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.LockDaily(ctx, stranger)
		assert.ErrorIs(t, err, admin.ErrUnauthorized)
	})

	t.Run("a new day can lock again", func(t *testing.T) {
		now := time.Now()
		clock := func() time.Time { return now }
		m, _ := newTestManager(t, WithClock(func() time.Time { return clock() }))
		assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
		assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("5")))

		_, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)

		clock = func() time.Time { return now.Add(24 * time.Hour) }
		assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("10")))

		locked, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)
		assert.True(t, locked.Equal(ledger.MustAmount("2")))
		assert.True(t, m.TotalLPLocked().Equal(ledger.MustAmount("3")))
	})
}

func TestReleaseLock(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
	assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("10")))
	_, err := m.LockDaily(ctx, operator)
	assert.NoError(t, err)
	assert.True(t, m.TotalLPLocked().Equal(ledger.MustAmount("2")))

	t.Run("owner only", func(t *testing.T) {
		assert.ErrorIs(t, m.ReleaseLock(ctx, operator, ledger.MustAmount("1")), admin.ErrUnauthorized)
	})

	t.Run("cannot release below zero", func(t *testing.T) {
		assert.ErrorIs(t, m.ReleaseLock(ctx, owner, ledger.MustAmount("5")), ErrInsufficientBalance)
	})

	t.Run("release returns value to circulation", func(t *testing.T) {
		assert.NoError(t, m.ReleaseLock(ctx, owner, ledger.MustAmount("1.5")))
		assert.True(t, m.TotalLPLocked().Equal(ledger.MustAmount("0.5")))
		// balance is untouched, only the locked share shrinks
		assert.True(t, m.Balance().Equal(ledger.MustAmount("10")))
	})
}

func TestBurn(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	assert.NoError(t, m.AddAuthorizedContract(owner, gameEngine, ledger.SourceGame))
	assert.NoError(t, m.RecordInflow(ctx, gameEngine, ledger.MustAmount("10")))

	t.Run("requires the operator role", func(t *testing.T) {
		assert.ErrorIs(t, m.Burn(ctx, stranger, ledger.MustAmount("1")), admin.ErrUnauthorized)
	})

	t.Run("burn removes value and grows the counter", func(t *testing.T) {
		assert.NoError(t, m.Burn(ctx, operator, ledger.MustAmount("4")))
		assert.True(t, m.Balance().Equal(ledger.MustAmount("6")))
		assert.True(t, m.TotalPDABurned().Equal(ledger.MustAmount("4")))

		assert.NoError(t, m.Burn(ctx, owner, ledger.MustAmount("1")))
		assert.True(t, m.TotalPDABurned().Equal(ledger.MustAmount("5")))
	})

	t.Run("burn is bounded by the unlocked balance", func(t *testing.T) {
		_, err := m.LockDaily(ctx, operator)
		assert.NoError(t, err)
		locked := m.TotalLPLocked()

		over := m.Balance().Sub(locked).Add(ledger.MustAmount("0.001"))
		assert.ErrorIs(t, m.Burn(ctx, operator, over), ErrInsufficientBalance)
	})
}

func TestDayStatsIsolation(t *testing.T) {
	m, _ := newTestManager(t)
	stats := m.DayStats(m.CurrentDay())
	stats.Inflow[ledger.SourceGame] = ledger.MustAmount("99")

	fresh := m.DayStats(m.CurrentDay())
	assert.True(t, fresh.Inflow[ledger.SourceGame].IsZero())
}
