package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

// Plans is the collaborator CRUD layer for shared spending budgets.
type Plans struct {
	db    *sqlx.DB
	repo  *repository.PlanRepository
	users *repository.UserRepository
}

// NewPlans creates a new plan service
func NewPlans(db *sqlx.DB) *Plans {
	return &Plans{
		db:    db,
		repo:  repository.NewPlanRepository(),
		users: repository.NewUserRepository(),
	}
}

// PlanParams describes a new plan with its initial members.
type PlanParams struct {
	Name              string          `json:"name"`
	CapPerHead        decimal.Decimal `json:"cap_per_head"`
	WindowStart       time.Time       `json:"window_start"`
	WindowEnd         time.Time       `json:"window_end"`
	MerchantWhitelist []string        `json:"merchant_whitelist"`
	MemberIDs         []string        `json:"member_ids"`
}

// PlanResult is the created plan plus the member ids actually enrolled.
type PlanResult struct {
	Plan    model.Plan `json:"plan"`
	Members []string   `json:"members"`
}

// Create makes a plan owned by the caller. Unknown member ids are silently
// skipped; the creator is always enrolled.
func (s *Plans) Create(ctx context.Context, callerID string, p PlanParams) (*PlanResult, error) {
	if p.CapPerHead.LessThanOrEqual(decimal.Zero) {
		return nil, model.E(model.KindValidation, "", "cap per head must be positive")
	}

	plan := &model.Plan{
		ID:                uuid.NewString(),
		Name:              p.Name,
		CapPerHead:        p.CapPerHead,
		WindowStart:       p.WindowStart,
		WindowEnd:         p.WindowEnd,
		MerchantWhitelist: p.MerchantWhitelist,
		Status:            model.PlanActive,
		CreatedBy:         callerID,
	}
	if err := plan.ValidateWindow(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.CreatePlan(ctx, tx, plan); err != nil {
		return nil, err
	}

	memberIDs, err := s.users.ExistingUsers(ctx, tx, p.MemberIDs)
	if err != nil {
		return nil, err
	}

	callerEnrolled := false
	for _, memberID := range memberIDs {
		if memberID == callerID {
			callerEnrolled = true
		}
		member := &model.PlanMember{
			ID:     uuid.NewString(),
			PlanID: plan.ID,
			UserID: memberID,
			State:  "active",
		}
		if err := s.repo.AddMember(ctx, tx, member); err != nil {
			return nil, err
		}
	}
	if !callerEnrolled {
		member := &model.PlanMember{
			ID:     uuid.NewString(),
			PlanID: plan.ID,
			UserID: callerID,
			State:  "active",
		}
		if err := s.repo.AddMember(ctx, tx, member); err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, callerID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &PlanResult{Plan: *plan, Members: memberIDs}, nil
}

// Get returns a plan to its creator or an active member.
func (s *Plans) Get(ctx context.Context, callerID, planID string) (*model.Plan, error) {
	plan, err := s.repo.GetPlan(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if err := authorizePlanAccess(ctx, s.db, s.repo, callerID, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ListForUser returns plans the caller created or belongs to.
func (s *Plans) ListForUser(ctx context.Context, callerID string) ([]model.Plan, error) {
	return s.repo.ListForUser(ctx, s.db, callerID)
}

// authorizePlanAccess allows the plan creator and active members through.
func authorizePlanAccess(ctx context.Context, db *sqlx.DB, plans *repository.PlanRepository, callerID string, plan *model.Plan) error {
	if plan.CreatedBy == callerID {
		return nil
	}
	isMember, err := plans.IsActiveMember(ctx, db, plan.ID, callerID)
	if err != nil {
		return err
	}
	if !isMember {
		return model.E(model.KindUnauthorized, plan.ID, "access denied")
	}
	return nil
}
