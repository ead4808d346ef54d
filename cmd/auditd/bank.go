package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godamri/helix-audit/audit"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
)

// Account is the audited domain interface. Calls are declared against it and
// recorded against the concrete implementation.
type Account interface {
	Deposit(amount int64) (int64, error)
	Withdraw(amount int64) (int64, error)
	Balance() int64
}

type CheckingAccount struct {
	mu      sync.Mutex
	balance int64
}

func (a *CheckingAccount) Deposit(amount int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += amount
	return a.balance, nil
}

func (a *CheckingAccount) Withdraw(amount int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > a.balance {
		return a.balance, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, a.balance, amount)
	}
	a.balance -= amount
	return a.balance, nil
}

func (a *CheckingAccount) Balance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Bank routes audited operations to accounts by ID.
type Bank struct {
	mu       sync.RWMutex
	accounts map[string]Account
	auditor  *audit.Auditor
}

func NewBank(a *audit.Auditor) *Bank {
	return &Bank{accounts: make(map[string]Account), auditor: a}
}

func (b *Bank) Open(ctx context.Context, id string, initial int64) error {
	return audit.InterceptErr(ctx, b.auditor, audit.Func("OpenAccount", id, initial), func(context.Context) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.accounts[id]; ok {
			return ErrAccountExists
		}
		b.accounts[id] = &CheckingAccount{balance: initial}
		return nil
	})
}

func (b *Bank) Deposit(ctx context.Context, id string, amount int64) (int64, error) {
	acct, err := b.account(id)
	if err != nil {
		return 0, err
	}
	return audit.Intercept(ctx, b.auditor, audit.On[Account](acct, "Deposit", amount), func(context.Context) (int64, error) {
		return acct.Deposit(amount)
	})
}

func (b *Bank) Withdraw(ctx context.Context, id string, amount int64) (int64, error) {
	acct, err := b.account(id)
	if err != nil {
		return 0, err
	}
	return audit.Intercept(ctx, b.auditor, audit.On[Account](acct, "Withdraw", amount), func(context.Context) (int64, error) {
		return acct.Withdraw(amount)
	})
}

// Balance is a read and is not audited.
func (b *Bank) Balance(id string) (int64, error) {
	acct, err := b.account(id)
	if err != nil {
		return 0, err
	}
	return acct.Balance(), nil
}

func (b *Bank) account(id string) (Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return acct, nil
}
