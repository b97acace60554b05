package main

import (
	"context"
	"testing"
	"time"

	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/internal/liquidity"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/stretchr/testify/assert"
)

func TestNextLockTime(t *testing.T) {
	t.Run("fires one minute before the next rollover", func(t *testing.T) {
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		assert.True(t, nextLockTime(now).Equal(time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)))
	})

	t.Run("inside the final minute it targets the following day", func(t *testing.T) {
		now := time.Date(2024, 6, 1, 23, 59, 30, 0, time.UTC)
		assert.True(t, nextLockTime(now).Equal(time.Date(2024, 6, 2, 23, 59, 0, 0, time.UTC)))
	})

	t.Run("exactly at the fire point it moves on", func(t *testing.T) {
		now := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
		assert.True(t, nextLockTime(now).Equal(time.Date(2024, 6, 2, 23, 59, 0, 0, time.UTC)))
	})
}

func TestFireDailyLock(t *testing.T) {
	ctx := context.Background()
	owner := ledger.Address("owner")
	operator := ledger.Address("operator")
	source := ledger.Address("game-engine")

	// one minute before rollover, with the day's inflow already recorded
	clock := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	registry := admin.NewRegistry(owner)
	pool := liquidity.NewManager(registry, liquidity.WithClock(func() time.Time { return clock }))
	assert.NoError(t, pool.AddAuthorizedContract(owner, source, ledger.SourceGame))
	assert.NoError(t, pool.RecordInflow(ctx, source, ledger.MustAmount("10")))

	t.Run("skips without an operator", func(t *testing.T) {
		fireDailyLock(ctx, pool, registry)
		assert.True(t, pool.TotalLPLocked().IsZero())
	})

	t.Run("locks the closing day once an operator is configured", func(t *testing.T) {
		assert.NoError(t, registry.SetOperator(owner, operator))

		fireDailyLock(ctx, pool, registry)
		assert.True(t, pool.TotalLPLocked().Equal(ledger.MustAmount("2")))
	})

	t.Run("second fire on a locked day changes nothing", func(t *testing.T) {
		fireDailyLock(ctx, pool, registry)
		assert.True(t, pool.TotalLPLocked().Equal(ledger.MustAmount("2")))
	})
}
