// Package token models the ERC-20-like value source the engines move stake
// through. The engines only need pull-on-join and push-on-payout semantics;
// fee-on-transfer and whitelist mechanics stay on the token side of the
// boundary.
package token

import (
	"errors"
	"sync"

	"github.com/pda-labs/gamecore/pkg/ledger"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Source is the value-transfer capability the engines consume.
type Source interface {
	// TransferFrom pulls amount from one holder to another, bound by the
	// holder's allowance for the spender.
	TransferFrom(spender, from, to ledger.Address, amount ledger.Amount) error
	// Transfer pushes amount from the caller's own balance.
	Transfer(from, to ledger.Address, amount ledger.Amount) error
	// BalanceOf reports a holder's balance.
	BalanceOf(holder ledger.Address) ledger.Amount
}

// Vault is an in-process Source with standard balance/allowance bookkeeping.
// Production deployments swap this for an on-chain token adapter.
type Vault struct {
	mu         sync.Mutex
	balances   map[ledger.Address]ledger.Amount
	allowances map[ledger.Address]map[ledger.Address]ledger.Amount // holder -> spender -> limit
}

// NewVault creates an empty vault
func NewVault() *Vault {
	return &Vault{
		balances:   make(map[ledger.Address]ledger.Amount),
		allowances: make(map[ledger.Address]map[ledger.Address]ledger.Amount),
	}
}

// Mint credits a holder. Test and bootstrap path.
func (v *Vault) Mint(holder ledger.Address, amount ledger.Amount) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[holder] = v.balances[holder].Add(amount)
}

// Approve sets a spender's allowance for a holder
func (v *Vault) Approve(holder, spender ledger.Address, amount ledger.Amount) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.allowances[holder] == nil {
		v.allowances[holder] = make(map[ledger.Address]ledger.Amount)
	}
	v.allowances[holder][spender] = amount
}

// Allowance reports the remaining allowance a holder granted a spender
func (v *Vault) Allowance(holder, spender ledger.Address) ledger.Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allowances[holder][spender]
}

// BalanceOf reports a holder's balance
func (v *Vault) BalanceOf(holder ledger.Address) ledger.Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[holder]
}

// TransferFrom pulls amount from `from` to `to` on behalf of `spender`
func (v *Vault) TransferFrom(spender, from, to ledger.Address, amount ledger.Amount) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	allowed := v.allowances[from][spender]
	if allowed.LessThan(amount) {
		return ErrInsufficientAllowance
	}
	if v.balances[from].LessThan(amount) {
		return ErrInsufficientFunds
	}

	if v.allowances[from] == nil {
		v.allowances[from] = make(map[ledger.Address]ledger.Amount)
	}
	v.allowances[from][spender] = allowed.Sub(amount)
	v.balances[from] = v.balances[from].Sub(amount)
	v.balances[to] = v.balances[to].Add(amount)
	return nil
}

// Transfer moves amount from the caller's own balance
func (v *Vault) Transfer(from, to ledger.Address, amount ledger.Amount) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[from].LessThan(amount) {
		return ErrInsufficientFunds
	}

	v.balances[from] = v.balances[from].Sub(amount)
	v.balances[to] = v.balances[to].Add(amount)
	return nil
}
