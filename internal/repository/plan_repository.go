package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// PlanRepository handles plan and membership data operations
type PlanRepository struct{}

// NewPlanRepository creates a new plan repository
func NewPlanRepository() *PlanRepository {
	return &PlanRepository{}
}

// CreatePlan inserts a new plan
func (r *PlanRepository) CreatePlan(ctx context.Context, db DBExecutor, plan *model.Plan) error {
	query := `
		INSERT INTO plans (id, name, cap_per_head, window_start, window_end,
			merchant_whitelist, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	plan.CreatedAt = time.Now()
	_, err := db.ExecContext(ctx, query,
		plan.ID, plan.Name, plan.CapPerHead, plan.WindowStart, plan.WindowEnd,
		plan.MerchantWhitelist, plan.Status, plan.CreatedBy, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

// UpsertPlan inserts a plan, keeping the existing row on id conflict
func (r *PlanRepository) UpsertPlan(ctx context.Context, db DBExecutor, plan *model.Plan) error {
	query := `
		INSERT INTO plans (id, name, cap_per_head, window_start, window_end,
			merchant_whitelist, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO NOTHING
	`

	_, err := db.ExecContext(ctx, query,
		plan.ID, plan.Name, plan.CapPerHead, plan.WindowStart, plan.WindowEnd,
		plan.MerchantWhitelist, plan.Status, plan.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	return nil
}

// GetPlan retrieves a plan by ID
func (r *PlanRepository) GetPlan(ctx context.Context, db DBExecutor, id string) (*model.Plan, error) {
	query := `
		SELECT id, name, cap_per_head, window_start, window_end,
			merchant_whitelist, status, created_by, created_at
		FROM plans
		WHERE id = $1
	`

	var plan model.Plan
	err := db.GetContext(ctx, &plan, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "plan not found")
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return &plan, nil
}

// AddMember enrolls a user into a plan; re-adding is a no-op
func (r *PlanRepository) AddMember(ctx context.Context, db DBExecutor, member *model.PlanMember) error {
	query := `
		INSERT INTO plan_members (id, plan_id, user_id, state, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (plan_id, user_id) DO NOTHING
	`

	member.JoinedAt = time.Now()
	_, err := db.ExecContext(ctx, query,
		member.ID, member.PlanID, member.UserID, member.State, member.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add plan member: %w", err)
	}

	return nil
}

// IsActiveMember reports whether the user is an active member of the plan
func (r *PlanRepository) IsActiveMember(ctx context.Context, db DBExecutor, planID, userID string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM plan_members
			WHERE plan_id = $1 AND user_id = $2 AND state = 'active'
		)
	`, planID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check plan membership: %w", err)
	}
	return exists, nil
}

// ListForUser returns plans the user created or actively belongs to
func (r *PlanRepository) ListForUser(ctx context.Context, db DBExecutor, userID string) ([]model.Plan, error) {
	query := `
		SELECT id, name, cap_per_head, window_start, window_end,
			merchant_whitelist, status, created_by, created_at
		FROM plans
		WHERE created_by = $1
			OR id IN (
				SELECT plan_id FROM plan_members
				WHERE user_id = $1 AND state = 'active'
			)
		ORDER BY created_at DESC
	`

	var plans []model.Plan
	if err := db.SelectContext(ctx, &plans, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	return plans, nil
}

// MemberPlanIDs returns ids of plans the user created or actively belongs to
func (r *PlanRepository) MemberPlanIDs(ctx context.Context, db DBExecutor, userID string) ([]string, error) {
	query := `
		SELECT id FROM plans WHERE created_by = $1
		UNION
		SELECT plan_id FROM plan_members WHERE user_id = $1 AND state = 'active'
	`

	var ids []string
	if err := db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list member plan ids: %w", err)
	}

	return ids, nil
}
