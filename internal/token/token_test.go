package token

import (
	"testing"

	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/stretchr/testify/assert"
)

const (
	alice   = ledger.Address("alice")
	bob     = ledger.Address("bob")
	spender = ledger.Address("engine")
)

func TestVaultTransfer(t *testing.T) {
	v := NewVault()
	v.Mint(alice, ledger.MustAmount("1"))

	t.Run("should move balance", func(t *testing.T) {
		assert.NoError(t, v.Transfer(alice, bob, ledger.MustAmount("0.4")))
		assert.True(t, v.BalanceOf(alice).Equal(ledger.MustAmount("0.6")))
		assert.True(t, v.BalanceOf(bob).Equal(ledger.MustAmount("0.4")))
	})

	t.Run("should reject overdraft", func(t *testing.T) {
		err := v.Transfer(alice, bob, ledger.MustAmount("100"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestVaultTransferFrom(t *testing.T) {
	v := NewVault()
	v.Mint(alice, ledger.MustAmount("1"))

	t.Run("should require allowance", func(t *testing.T) {
		err := v.TransferFrom(spender, alice, spender, ledger.MustAmount("0.001"))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("should consume allowance", func(t *testing.T) {
		v.Approve(alice, spender, ledger.MustAmount("0.005"))

		assert.NoError(t, v.TransferFrom(spender, alice, spender, ledger.MustAmount("0.003")))
		assert.True(t, v.Allowance(alice, spender).Equal(ledger.MustAmount("0.002")))
		assert.True(t, v.BalanceOf(spender).Equal(ledger.MustAmount("0.003")))
	})

	t.Run("should reject pull beyond allowance", func(t *testing.T) {
		err := v.TransferFrom(spender, alice, spender, ledger.MustAmount("0.003"))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("should allow a zero pull without prior approval", func(t *testing.T) {
		v := NewVault()
		v.Mint(alice, ledger.MustAmount("1"))

		assert.NoError(t, v.TransferFrom(spender, alice, bob, ledger.Zero))
		assert.True(t, v.BalanceOf(alice).Equal(ledger.MustAmount("1")))
		assert.True(t, v.BalanceOf(bob).IsZero())
	})

	t.Run("should reject pull beyond balance", func(t *testing.T) {
		v.Mint(bob, ledger.MustAmount("0.001"))
		v.Approve(bob, spender, ledger.MustAmount("10"))
		err := v.TransferFrom(spender, bob, spender, ledger.MustAmount("5"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
}
