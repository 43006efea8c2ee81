package ledgersvc

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core/course"
)

// Ledger is an in-memory course.Ledger keeping per-asset balances and a journal of every transfer.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // account -> asset -> balance
	journal  []course.Transfer
	open     func(account string) bool
}

var _ course.Ledger = (*Ledger)(nil) // interface compliance check

type Option func(*Ledger)

// WithOpenAccounts lets the accounts matched by pred go below zero.
// Open accounts stand for external wallets whose funding happens outside the ledger.
func WithOpenAccounts(pred func(account string) bool) Option {
	return func(l *Ledger) {
		l.open = pred
	}
}

// EscrowOnly keeps escrow accounts strict and treats every other account as open.
func EscrowOnly(account string) bool {
	return !course.IsEscrowAccount(account)
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		balances: make(map[string]map[string]int64),
		open:     func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func toInt64(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, errors.Errorf("amount %d out of range", amount)
	}
	return int64(amount), nil
}

func (l *Ledger) balance(account, asset string) int64 {
	return l.balances[account][asset]
}

// ErrBalanceOutOfRange is returned instead of letting a balance wrap around.
var ErrBalanceOutOfRange = errors.New("balance out of range")

// sum adds amount to account's balance without storing it.
func (l *Ledger) sum(account, asset string, amount int64) (int64, error) {
	bal := l.balance(account, asset)
	if (amount > 0 && bal > math.MaxInt64-amount) || (amount < 0 && bal < math.MinInt64-amount) {
		return 0, errors.Wrapf(ErrBalanceOutOfRange, "%s %s %+d", account, asset, amount)
	}
	return bal + amount, nil
}

func (l *Ledger) set(account, asset string, balance int64) {
	if l.balances[account] == nil {
		l.balances[account] = make(map[string]int64)
	}
	l.balances[account][asset] = balance
}

// Fund credits account out of thin air.
func (l *Ledger) Fund(account, asset string, amount uint64) error {
	amt, err := toInt64(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := l.sum(account, asset, amt)
	if err != nil {
		return err
	}
	l.set(account, asset, bal)
	return nil
}

func (l *Ledger) Balance(account, asset string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(account, asset)
}

// Journal returns the transfers made so far, oldest first.
func (l *Ledger) Journal() []course.Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]course.Transfer(nil), l.journal...)
}

func (l *Ledger) Transfer(ctx context.Context, t course.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.From == "" || t.To == "" || t.From == t.To {
		return errors.Errorf("invalid transfer accounts %q -> %q", t.From, t.To)
	}
	if t.Amount == 0 {
		return errors.New("transfer amount must be positive")
	}
	amt, err := toInt64(t.Amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open(t.From) && l.balance(t.From, t.Asset) < amt {
		return course.ErrInsufficientBalance
	}
	fromBal, err := l.sum(t.From, t.Asset, -amt)
	if err != nil {
		return err
	}
	toBal, err := l.sum(t.To, t.Asset, amt)
	if err != nil {
		return err
	}
	l.set(t.From, t.Asset, fromBal)
	l.set(t.To, t.Asset, toBal)

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	l.journal = append(l.journal, t)
	return nil
}
