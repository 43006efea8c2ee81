package sqlxdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core/course"
)

// Ledger journals transfers in the "transfer" table, inside the Store transaction carried by ctx.
// Escrow accounts may not go below zero; every other account is an external wallet.
type Ledger struct {
	db *sqlx.DB
}

var _ course.Ledger = (*Ledger)(nil) // interface compliance check

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

type transferRow struct {
	ID          string    `db:"id"`
	FromAccount string    `db:"from_account"`
	ToAccount   string    `db:"to_account"`
	Asset       string    `db:"asset"`
	Amount      uint64    `db:"amount"`
	Memo        string    `db:"memo"`
	CreatedAt   time.Time `db:"created_at"`
}

// Balance sums the journal entries of account in asset.
func (l *Ledger) Balance(ctx context.Context, account, asset string) (int64, error) {
	var balance int64
	err := executor(ctx, l.db).GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(CASE WHEN to_account = $1 THEN amount ELSE -amount END), 0)
		FROM transfer
		WHERE asset = $2 AND (from_account = $1 OR to_account = $1)`,
		account, asset)
	return balance, errors.Wrap(err, "summing transfers")
}

func (l *Ledger) Transfer(ctx context.Context, t course.Transfer) error {
	if t.From == "" || t.To == "" || t.From == t.To {
		return errors.Errorf("invalid transfer accounts %q -> %q", t.From, t.To)
	}
	if t.Amount == 0 {
		return errors.New("transfer amount must be positive")
	}

	if course.IsEscrowAccount(t.From) {
		balance, err := l.Balance(ctx, t.From, t.Asset)
		if err != nil {
			return err
		}
		if balance < 0 || uint64(balance) < t.Amount {
			return course.ErrInsufficientBalance
		}
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, l.db),
		`INSERT INTO transfer (id, from_account, to_account, asset, amount, memo, created_at)
		VALUES (:id, :from_account, :to_account, :asset, :amount, :memo, :created_at)`,
		transferRow{
			ID:          t.ID,
			FromAccount: t.From,
			ToAccount:   t.To,
			Asset:       t.Asset,
			Amount:      t.Amount,
			Memo:        t.Memo,
			CreatedAt:   t.At.UTC(),
		})
	return errors.Wrap(err, "inserting transfer")
}
