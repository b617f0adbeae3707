package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// PaymentRepository handles transaction data operations
type PaymentRepository struct{}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// InsertTransaction creates a pending transaction for a new intent
func (r *PaymentRepository) InsertTransaction(ctx context.Context, db DBExecutor, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (id, intent_id, plan_id, merchant_id, amount, mode, status, rrn_stub, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	txn.CreatedAt = time.Now()
	_, err := db.ExecContext(ctx, query,
		txn.ID, txn.IntentID, txn.PlanID, txn.MerchantID,
		txn.Amount, txn.Mode, txn.Status, txn.RRNStub, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// GetByIntentForUpdate locks and returns the transaction for an intent id.
// Confirmation must hold the lock so the terminal transition and the
// ledger posting commit together.
func (r *PaymentRepository) GetByIntentForUpdate(ctx context.Context, tx *sqlx.Tx, intentID string) (*model.Transaction, error) {
	query := `
		SELECT id, intent_id, plan_id, merchant_id, amount, mode, status, rrn_stub, created_at
		FROM transactions
		WHERE intent_id = $1
		FOR UPDATE
	`

	var txn model.Transaction
	err := tx.GetContext(ctx, &txn, query, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, intentID, "transaction not found")
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	return &txn, nil
}

// GetByIntent returns the transaction for an intent id without locking
func (r *PaymentRepository) GetByIntent(ctx context.Context, db DBExecutor, intentID string) (*model.Transaction, error) {
	query := `
		SELECT id, intent_id, plan_id, merchant_id, amount, mode, status, rrn_stub, created_at
		FROM transactions
		WHERE intent_id = $1
	`

	var txn model.Transaction
	err := db.GetContext(ctx, &txn, query, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, intentID, "transaction not found")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &txn, nil
}

// SetTerminalStatus moves a pending transaction to its terminal status.
// The status guard in the WHERE clause makes re-confirmation a no-op at
// the SQL level even if a caller skips the row lock.
func (r *PaymentRepository) SetTerminalStatus(ctx context.Context, tx *sqlx.Tx, id, status string, rrnStub *string) error {
	query := `
		UPDATE transactions
		SET status = $2, rrn_stub = $3
		WHERE id = $1 AND status = 'pending'
	`

	result, err := tx.ExecContext(ctx, query, id, status, rrnStub)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.E(model.KindAlreadyProcessed, id, "transaction already processed")
	}

	return nil
}

// ListForPlans returns the most recent transactions across the given plans
func (r *PaymentRepository) ListForPlans(ctx context.Context, db DBExecutor, planIDs []string, limit int) ([]model.Transaction, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, intent_id, plan_id, merchant_id, amount, mode, status, rrn_stub, created_at
		FROM transactions
		WHERE plan_id = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	var txns []model.Transaction
	if err := db.SelectContext(ctx, &txns, query, pq.Array(planIDs), limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txns, nil
}
