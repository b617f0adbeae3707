package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

// Directory is the read-only lookup surface the engines depend on.
// The engines never write through it.
type Directory interface {
	// GetPlan returns the plan or a not_found error.
	GetPlan(ctx context.Context, id string) (*model.Plan, error)

	// MerchantExists reports whether a merchant id is known.
	MerchantExists(ctx context.Context, id string) (bool, error)

	// ExistingUsers filters ids down to known users, preserving order
	// and dropping duplicates.
	ExistingUsers(ctx context.Context, ids []string) ([]string, error)
}

type pgDirectory struct {
	db        *sqlx.DB
	plans     *repository.PlanRepository
	merchants *repository.MerchantRepository
	users     *repository.UserRepository
}

// NewDirectory returns a Directory backed by the primary database.
func NewDirectory(db *sqlx.DB) Directory {
	return &pgDirectory{
		db:        db,
		plans:     repository.NewPlanRepository(),
		merchants: repository.NewMerchantRepository(),
		users:     repository.NewUserRepository(),
	}
}

func (d *pgDirectory) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	return d.plans.GetPlan(ctx, d.db, id)
}

func (d *pgDirectory) MerchantExists(ctx context.Context, id string) (bool, error) {
	return d.merchants.MerchantExists(ctx, d.db, id)
}

func (d *pgDirectory) ExistingUsers(ctx context.Context, ids []string) ([]string, error) {
	return d.users.ExistingUsers(ctx, d.db, ids)
}
