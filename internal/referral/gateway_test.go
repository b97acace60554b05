package referral

import (
	"context"
	"testing"

	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/stretchr/testify/assert"
)

const (
	owner      = ledger.Address("owner")
	gameEngine = ledger.Address("game-engine")
	alice      = ledger.Address("alice")
	bob        = ledger.Address("bob")
	carol      = ledger.Address("carol")
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g := NewGateway(admin.NewRegistry(owner))
	assert.NoError(t, g.AddAuthorizedContract(owner, gameEngine))
	return g
}

func TestAuthorization(t *testing.T) {
	g := NewGateway(admin.NewRegistry(owner))

	t.Run("owner gates the contract list", func(t *testing.T) {
		assert.ErrorIs(t, g.AddAuthorizedContract(alice, gameEngine), admin.ErrUnauthorized)
		assert.NoError(t, g.AddAuthorizedContract(owner, gameEngine))
		assert.True(t, g.AuthorizedContract(gameEngine))
	})

	t.Run("unauthorized caller cannot credit", func(t *testing.T) {
		err := g.CreditReferral(context.Background(), alice, bob, carol, ledger.MustAmount("0.001"))
		assert.ErrorIs(t, err, admin.ErrUnauthorized)
	})

	t.Run("removal revokes", func(t *testing.T) {
		assert.NoError(t, g.RemoveAuthorizedContract(owner, gameEngine))
		assert.False(t, g.AuthorizedContract(gameEngine))
	})
}

func TestSetUpline(t *testing.T) {
	g := newTestGateway(t)

	t.Run("first write wins", func(t *testing.T) {
		assert.NoError(t, g.SetUpline(alice, bob))
		assert.Equal(t, bob, g.Upline(alice))

		assert.ErrorIs(t, g.SetUpline(alice, carol), ErrUplineSet)
		assert.Equal(t, bob, g.Upline(alice))
	})

	t.Run("rejects self referral", func(t *testing.T) {
		assert.ErrorIs(t, g.SetUpline(carol, carol), ErrSelfReferral)
	})

	t.Run("rejects a two cycle", func(t *testing.T) {
		assert.ErrorIs(t, g.SetUpline(bob, alice), ErrCircularReferral)
	})

	t.Run("counts active referrals", func(t *testing.T) {
		assert.NoError(t, g.SetUpline(carol, bob))
		assert.Equal(t, 2, g.ActiveReferralCount(bob))
		assert.Equal(t, 0, g.ActiveReferralCount(alice))
	})
}

func TestCreditReferral(t *testing.T) {
	ctx := context.Background()

	t.Run("first credit binds the upline", func(t *testing.T) {
		g := newTestGateway(t)
		assert.NoError(t, g.CreditReferral(ctx, gameEngine, alice, bob, ledger.MustAmount("0.00001")))

		assert.Equal(t, bob, g.Upline(alice))
		assert.Equal(t, 1, g.ActiveReferralCount(bob))
		assert.True(t, g.Credits(bob).Equal(ledger.MustAmount("0.00001")))
	})

	t.Run("later credits go to the bound upline regardless of referrer", func(t *testing.T) {
		g := newTestGateway(t)
		assert.NoError(t, g.CreditReferral(ctx, gameEngine, alice, bob, ledger.MustAmount("1")))
		assert.NoError(t, g.CreditReferral(ctx, gameEngine, alice, carol, ledger.MustAmount("1")))
		assert.NoError(t, g.CreditReferral(ctx, gameEngine, alice, ledger.ZeroAddress, ledger.MustAmount("1")))

		assert.True(t, g.Credits(bob).Equal(ledger.MustAmount("3")))
		assert.True(t, g.Credits(carol).IsZero())
	})

	t.Run("zero referrer with no upline is rejected", func(t *testing.T) {
		g := newTestGateway(t)
		err := g.CreditReferral(ctx, gameEngine, alice, ledger.ZeroAddress, ledger.MustAmount("1"))
		assert.ErrorIs(t, err, ErrNoUpline)
	})

	t.Run("self referrer with no upline is rejected", func(t *testing.T) {
		g := newTestGateway(t)
		err := g.CreditReferral(ctx, gameEngine, alice, alice, ledger.MustAmount("1"))
		assert.ErrorIs(t, err, ErrSelfReferral)
	})

	t.Run("binding never closes a two cycle", func(t *testing.T) {
		g := newTestGateway(t)
		assert.NoError(t, g.SetUpline(bob, alice))

		err := g.CreditReferral(ctx, gameEngine, alice, bob, ledger.MustAmount("1"))
		assert.ErrorIs(t, err, ErrCircularReferral)
		assert.True(t, g.Upline(alice).IsZero())
		assert.True(t, g.Credits(bob).IsZero())
		assert.Equal(t, 1, g.ActiveReferralCount(alice))
	})

	t.Run("history keeps every credit", func(t *testing.T) {
		g := newTestGateway(t)
		assert.NoError(t, g.CreditReferral(ctx, gameEngine, alice, bob, ledger.MustAmount("1")))
		assert.NoError(t, g.CreditReferral(ctx, gameEngine, carol, bob, ledger.MustAmount("2")))

		history := g.History()
		assert.Len(t, history, 2)
		assert.Equal(t, alice, history[0].Player)
		assert.Equal(t, bob, history[0].Referrer)
		assert.Equal(t, carol, history[1].Player)
	})
}
