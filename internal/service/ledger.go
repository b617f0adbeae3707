package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

// Ledger posts and balances double-entry records. Entries only ever enter
// the ledger as a pair, so sum(debits) == sum(credits) holds after every
// operation.
type Ledger struct {
	db   *sqlx.DB
	repo *repository.LedgerRepository
}

// NewLedger creates a new ledger engine
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{
		db:   db,
		repo: repository.NewLedgerRepository(),
	}
}

// PostPair writes the debit and credit legs for a transaction inside the
// caller's database transaction. Both legs persist together or not at all;
// a failure here must roll back the enclosing confirmation.
func (s *Ledger) PostPair(ctx context.Context, tx *sqlx.Tx, txnID string, amount decimal.Decimal, debitAccount, creditAccount string) (*model.LedgerEntry, *model.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, model.E(model.KindValidation, txnID, "ledger amount must be positive")
	}
	if debitAccount == creditAccount {
		return nil, nil, model.E(model.KindValidation, txnID, "debit and credit accounts must differ")
	}

	now := time.Now()
	debit := &model.LedgerEntry{
		ID:        uuid.NewString(),
		TxnID:     txnID,
		Account:   debitAccount,
		Leg:       model.LegDebit,
		Amount:    amount,
		CreatedAt: now,
	}
	credit := &model.LedgerEntry{
		ID:        uuid.NewString(),
		TxnID:     txnID,
		Account:   creditAccount,
		Leg:       model.LegCredit,
		Amount:    amount,
		CreatedAt: now,
	}

	if err := s.repo.InsertPair(ctx, tx, debit, credit); err != nil {
		return nil, nil, err
	}

	return debit, credit, nil
}

// Balance returns credits minus debits for an account
func (s *Ledger) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.repo.AccountBalance(ctx, s.db, account)
}

// IsBalanced verifies the global double-entry invariant
func (s *Ledger) IsBalanced(ctx context.Context) (bool, error) {
	debits, credits, err := s.repo.LegTotals(ctx, s.db)
	if err != nil {
		return false, err
	}
	return debits.Equal(credits), nil
}

// EntriesForTransaction returns both legs posted for a transaction
func (s *Ledger) EntriesForTransaction(ctx context.Context, txnID string) ([]model.LedgerEntry, error) {
	return s.repo.EntriesForTransaction(ctx, s.db, txnID)
}
