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

// VoucherRepository handles voucher data operations
type VoucherRepository struct{}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository() *VoucherRepository {
	return &VoucherRepository{}
}

// InsertBatch creates vouchers in batches within an existing transaction
func (r *VoucherRepository) InsertBatch(ctx context.Context, tx *sqlx.Tx, vouchers []model.Voucher) error {
	// Batch size bounded by the PostgreSQL parameter limit
	batchSize := 500

	for i := 0; i < len(vouchers); i += batchSize {
		end := i + batchSize
		if end > len(vouchers) {
			end = len(vouchers)
		}

		if err := r.insertVoucherBatch(ctx, tx, vouchers[i:end]); err != nil {
			return fmt.Errorf("failed to insert voucher batch: %w", err)
		}
	}

	return nil
}

// insertVoucherBatch inserts a batch of vouchers using a single query
func (r *VoucherRepository) insertVoucherBatch(ctx context.Context, tx *sqlx.Tx, vouchers []model.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}

	valuesClause := make([]string, len(vouchers))
	args := make([]interface{}, 0, len(vouchers)*8)

	for i, v := range vouchers {
		valuesClause[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*8+1, i*8+2, i*8+3, i*8+4, i*8+5, i*8+6, i*8+7, i*8+8)
		args = append(args, v.ID, v.PlanID, v.MemberUserID, v.Amount,
			v.MerchantList, v.ExpiresAt, v.State, v.CreatedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO vouchers (id, plan_id, member_user_id, amount,
			merchant_list, expires_at, state, created_at)
		VALUES %s
	`, strings.Join(valuesClause, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}

// Get returns a voucher without locking it
func (r *VoucherRepository) Get(ctx context.Context, db DBExecutor, id string) (*model.Voucher, error) {
	query := `
		SELECT id, plan_id, member_user_id, amount, merchant_list,
			expires_at, state, created_at
		FROM vouchers
		WHERE id = $1
	`

	var voucher model.Voucher
	err := db.GetContext(ctx, &voucher, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "voucher not found")
		}
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}

	return &voucher, nil
}

// GetForUpdate locks and returns a voucher row. Two concurrent redemptions
// of the same voucher serialize here so neither debits a stale balance.
func (r *VoucherRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Voucher, error) {
	query := `
		SELECT id, plan_id, member_user_id, amount, merchant_list,
			expires_at, state, created_at
		FROM vouchers
		WHERE id = $1
		FOR UPDATE
	`

	var voucher model.Voucher
	err := tx.GetContext(ctx, &voucher, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "voucher not found or inactive")
		}
		return nil, fmt.Errorf("failed to lock voucher: %w", err)
	}

	return &voucher, nil
}

// SaveBalance persists the debited balance and state of a locked voucher
func (r *VoucherRepository) SaveBalance(ctx context.Context, tx *sqlx.Tx, voucher *model.Voucher) error {
	query := `
		UPDATE vouchers
		SET amount = $2, state = $3
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, voucher.ID, voucher.Amount, voucher.State)
	if err != nil {
		return fmt.Errorf("failed to update voucher balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("voucher %s vanished during update", voucher.ID)
	}

	return nil
}

// InsertRedemption appends an immutable redemption audit record
func (r *VoucherRepository) InsertRedemption(ctx context.Context, tx *sqlx.Tx, redemption *model.VoucherRedemption) error {
	query := `
		INSERT INTO voucher_redemptions (id, voucher_id, amount, merchant_id, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	redemption.CreatedAt = time.Now()
	_, err := tx.ExecContext(ctx, query,
		redemption.ID, redemption.VoucherID, redemption.Amount,
		redemption.MerchantID, redemption.TransactionID, redemption.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}

	return nil
}

// ListByPlan returns all vouchers minted for a plan
func (r *VoucherRepository) ListByPlan(ctx context.Context, db DBExecutor, planID string) ([]model.Voucher, error) {
	query := `
		SELECT id, plan_id, member_user_id, amount, merchant_list,
			expires_at, state, created_at
		FROM vouchers
		WHERE plan_id = $1
		ORDER BY created_at ASC
	`

	var vouchers []model.Voucher
	if err := db.SelectContext(ctx, &vouchers, query, planID); err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}

	return vouchers, nil
}

// Redemptions returns the redemption trail of a voucher, oldest first
func (r *VoucherRepository) Redemptions(ctx context.Context, db DBExecutor, voucherID string) ([]model.VoucherRedemption, error) {
	query := `
		SELECT id, voucher_id, amount, merchant_id, transaction_id, created_at
		FROM voucher_redemptions
		WHERE voucher_id = $1
		ORDER BY created_at ASC
	`

	var redemptions []model.VoucherRedemption
	if err := db.SelectContext(ctx, &redemptions, query, voucherID); err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}

	return redemptions, nil
}
