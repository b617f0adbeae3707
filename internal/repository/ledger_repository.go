package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// LedgerRepository handles ledger entry data operations.
// There is deliberately no single-leg insert: entries only ever enter the
// ledger as a debit/credit pair, which keeps the global balance invariant
// structurally unbreakable.
type LedgerRepository struct{}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// InsertPair writes both legs of a double-entry record in one statement
// within the caller's transaction.
func (r *LedgerRepository) InsertPair(ctx context.Context, tx *sqlx.Tx, debit, credit *model.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, txn_id, account, leg, amount, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6),
			($7, $8, $9, $10, $11, $12)
	`

	_, err := tx.ExecContext(ctx, query,
		debit.ID, debit.TxnID, debit.Account, debit.Leg, debit.Amount, debit.CreatedAt,
		credit.ID, credit.TxnID, credit.Account, credit.Leg, credit.Amount, credit.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger pair: %w", err)
	}

	return nil
}

// AccountBalance computes credits minus debits for one account
func (r *LedgerRepository) AccountBalance(ctx context.Context, db DBExecutor, account string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN leg = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account = $1
	`

	var balance decimal.Decimal
	if err := db.GetContext(ctx, &balance, query, account); err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute account balance: %w", err)
	}

	return balance, nil
}

// LegTotals returns the global debit and credit sums
func (r *LedgerRepository) LegTotals(ctx context.Context, db DBExecutor) (debits, credits decimal.Decimal, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN leg = 'debit' THEN amount ELSE 0 END), 0) AS debits,
			COALESCE(SUM(CASE WHEN leg = 'credit' THEN amount ELSE 0 END), 0) AS credits
		FROM ledger_entries
	`

	var totals struct {
		Debits  decimal.Decimal `db:"debits"`
		Credits decimal.Decimal `db:"credits"`
	}
	if err := db.GetContext(ctx, &totals, query); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to compute leg totals: %w", err)
	}

	return totals.Debits, totals.Credits, nil
}

// EntriesForTransaction returns both legs posted for a transaction
func (r *LedgerRepository) EntriesForTransaction(ctx context.Context, db DBExecutor, txnID string) ([]model.LedgerEntry, error) {
	query := `
		SELECT id, txn_id, account, leg, amount, created_at
		FROM ledger_entries
		WHERE txn_id = $1
		ORDER BY leg ASC
	`

	var entries []model.LedgerEntry
	if err := db.SelectContext(ctx, &entries, query, txnID); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	return entries, nil
}
