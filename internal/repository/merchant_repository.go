package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// MerchantRepository handles merchant and campus data operations
type MerchantRepository struct{}

// NewMerchantRepository creates a new merchant repository
func NewMerchantRepository() *MerchantRepository {
	return &MerchantRepository{}
}

// GetMerchant retrieves a merchant by ID
func (r *MerchantRepository) GetMerchant(ctx context.Context, db DBExecutor, id string) (*model.Merchant, error) {
	query := `
		SELECT id, name, category, campus_id, icon, location
		FROM merchants
		WHERE id = $1
	`

	var merchant model.Merchant
	err := db.GetContext(ctx, &merchant, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "merchant not found")
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}

	return &merchant, nil
}

// MerchantExists reports whether a merchant id is known
func (r *MerchantRepository) MerchantExists(ctx context.Context, db DBExecutor, id string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM merchants WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("failed to check merchant: %w", err)
	}
	return exists, nil
}

// ListMerchants returns merchants, optionally filtered by campus
func (r *MerchantRepository) ListMerchants(ctx context.Context, db DBExecutor, campusID string) ([]model.Merchant, error) {
	var merchants []model.Merchant
	var err error

	if campusID == "" {
		err = db.SelectContext(ctx, &merchants, `
			SELECT id, name, category, campus_id, icon, location
			FROM merchants
			ORDER BY name ASC
		`)
	} else {
		err = db.SelectContext(ctx, &merchants, `
			SELECT id, name, category, campus_id, icon, location
			FROM merchants
			WHERE campus_id = $1
			ORDER BY name ASC
		`, campusID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}

	return merchants, nil
}

// UpsertCampus inserts a campus if it does not already exist
func (r *MerchantRepository) UpsertCampus(ctx context.Context, db DBExecutor, campus *model.Campus) error {
	query := `
		INSERT INTO campuses (id, name, location)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := db.ExecContext(ctx, query, campus.ID, campus.Name, campus.Location); err != nil {
		return fmt.Errorf("failed to upsert campus: %w", err)
	}

	return nil
}

// UpsertMerchant inserts a merchant if it does not already exist
func (r *MerchantRepository) UpsertMerchant(ctx context.Context, db DBExecutor, merchant *model.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, category, campus_id, icon, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := db.ExecContext(ctx, query,
		merchant.ID, merchant.Name, merchant.Category, merchant.CampusID, merchant.Icon, merchant.Location)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant: %w", err)
	}

	return nil
}
