package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// MandateRepository handles mandate data operations
type MandateRepository struct{}

// NewMandateRepository creates a new mandate repository
func NewMandateRepository() *MandateRepository {
	return &MandateRepository{}
}

// InsertBatch creates mandates in batches within an existing transaction
func (r *MandateRepository) InsertBatch(ctx context.Context, tx *sqlx.Tx, mandates []model.Mandate) error {
	batchSize := 500

	for i := 0; i < len(mandates); i += batchSize {
		end := i + batchSize
		if end > len(mandates) {
			end = len(mandates)
		}

		if err := r.insertMandateBatch(ctx, tx, mandates[i:end]); err != nil {
			return fmt.Errorf("failed to insert mandate batch: %w", err)
		}
	}

	return nil
}

func (r *MandateRepository) insertMandateBatch(ctx context.Context, tx *sqlx.Tx, mandates []model.Mandate) error {
	if len(mandates) == 0 {
		return nil
	}

	valuesClause := make([]string, len(mandates))
	args := make([]interface{}, 0, len(mandates)*8)

	for i, m := range mandates {
		valuesClause[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*8+1, i*8+2, i*8+3, i*8+4, i*8+5, i*8+6, i*8+7, i*8+8)
		args = append(args, m.ID, m.PlanID, m.MemberUserID, m.CapAmount,
			m.ValidFrom, m.ValidTo, m.State, m.CreatedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO mandates (id, plan_id, member_user_id, cap_amount,
			valid_from, valid_to, state, created_at)
		VALUES %s
	`, strings.Join(valuesClause, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}

// Get returns a mandate without locking it
func (r *MandateRepository) Get(ctx context.Context, db DBExecutor, id string) (*model.Mandate, error) {
	query := `
		SELECT id, plan_id, member_user_id, cap_amount, valid_from,
			valid_to, state, created_at
		FROM mandates
		WHERE id = $1
	`

	var mandate model.Mandate
	err := db.GetContext(ctx, &mandate, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "mandate not found")
		}
		return nil, fmt.Errorf("failed to get mandate: %w", err)
	}

	return &mandate, nil
}

// GetForUpdate locks and returns a mandate row. Concurrent executions of
// the same mandate serialize here so the cap cannot be double-spent.
func (r *MandateRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Mandate, error) {
	query := `
		SELECT id, plan_id, member_user_id, cap_amount, valid_from,
			valid_to, state, created_at
		FROM mandates
		WHERE id = $1
		FOR UPDATE
	`

	var mandate model.Mandate
	err := tx.GetContext(ctx, &mandate, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "mandate not found or inactive")
		}
		return nil, fmt.Errorf("failed to lock mandate: %w", err)
	}

	return &mandate, nil
}

// SaveCap persists the consumed cap and state of a locked mandate
func (r *MandateRepository) SaveCap(ctx context.Context, tx *sqlx.Tx, mandate *model.Mandate) error {
	query := `
		UPDATE mandates
		SET cap_amount = $2, state = $3
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, mandate.ID, mandate.CapAmount, mandate.State)
	if err != nil {
		return fmt.Errorf("failed to update mandate cap: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("mandate %s vanished during update", mandate.ID)
	}

	return nil
}

// InsertExecution appends an immutable execution audit record.
// One is written for every attempt, whatever the outcome.
func (r *MandateRepository) InsertExecution(ctx context.Context, tx *sqlx.Tx, execution *model.MandateExecution) error {
	query := `
		INSERT INTO mandate_executions (id, mandate_id, amount, merchant_id, transaction_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	execution.CreatedAt = time.Now()
	_, err := tx.ExecContext(ctx, query,
		execution.ID, execution.MandateID, execution.Amount,
		execution.MerchantID, execution.TransactionID, execution.Status, execution.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

// ListByPlan returns all mandates created for a plan
func (r *MandateRepository) ListByPlan(ctx context.Context, db DBExecutor, planID string) ([]model.Mandate, error) {
	query := `
		SELECT id, plan_id, member_user_id, cap_amount, valid_from,
			valid_to, state, created_at
		FROM mandates
		WHERE plan_id = $1
		ORDER BY created_at ASC
	`

	var mandates []model.Mandate
	if err := db.SelectContext(ctx, &mandates, query, planID); err != nil {
		return nil, fmt.Errorf("failed to list mandates: %w", err)
	}

	return mandates, nil
}

// Executions returns the execution trail of a mandate, oldest first
func (r *MandateRepository) Executions(ctx context.Context, db DBExecutor, mandateID string) ([]model.MandateExecution, error) {
	query := `
		SELECT id, mandate_id, amount, merchant_id, transaction_id, status, created_at
		FROM mandate_executions
		WHERE mandate_id = $1
		ORDER BY created_at ASC
	`

	var executions []model.MandateExecution
	if err := db.SelectContext(ctx, &executions, query, mandateID); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}
