package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/metrics"
	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

// Mandates creates per-member spending authorizations and executes debits
// against their caps through a simulated rail.
type Mandates struct {
	db      *sqlx.DB
	dir     Directory
	repo    *repository.MandateRepository
	plans   *repository.PlanRepository
	outcome OutcomePolicy
}

// NewMandates creates a new mandate engine
func NewMandates(db *sqlx.DB, dir Directory, outcome OutcomePolicy) *Mandates {
	return &Mandates{
		db:      db,
		dir:     dir,
		repo:    repository.NewMandateRepository(),
		plans:   repository.NewPlanRepository(),
		outcome: outcome,
	}
}

// CreateParams describes one create call; one mandate is created per known member.
type CreateParams struct {
	PlanID        string          `json:"plan_id"`
	MemberUserIDs []string        `json:"member_user_ids"`
	CapAmount     decimal.Decimal `json:"cap_amount"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidTo       time.Time       `json:"valid_to"`
}

// Create makes one mandate per member id with the same skip-on-unknown
// policy as voucher minting. Only the plan creator may create mandates.
func (s *Mandates) Create(ctx context.Context, callerID string, p CreateParams) ([]model.Mandate, error) {
	if p.CapAmount.LessThanOrEqual(decimal.Zero) {
		return nil, model.E(model.KindValidation, p.PlanID, "mandate cap must be positive")
	}
	if !p.ValidFrom.Before(p.ValidTo) {
		return nil, model.E(model.KindValidation, p.PlanID, "mandate valid_from must be before valid_to")
	}

	plan, err := s.dir.GetPlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.CreatedBy != callerID {
		return nil, model.E(model.KindUnauthorized, p.PlanID, "only plan creator can create mandates")
	}

	members, err := s.dir.ExistingUsers(ctx, p.MemberUserIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	mandates := make([]model.Mandate, 0, len(members))
	for _, memberID := range members {
		mandates = append(mandates, model.Mandate{
			ID:           uuid.NewString(),
			PlanID:       p.PlanID,
			MemberUserID: memberID,
			CapAmount:    p.CapAmount,
			ValidFrom:    p.ValidFrom,
			ValidTo:      p.ValidTo,
			State:        model.MandateActive,
			CreatedAt:    now,
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.InsertBatch(ctx, tx, mandates); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return mandates, nil
}

// ExecuteParams describes one execution attempt.
type ExecuteParams struct {
	MandateID  string          `json:"mandate_id"`
	Amount     decimal.Decimal `json:"amount"`
	MerchantID string          `json:"merchant_id"`
}

// ExecutionResult reports the attempt's outcome and the remaining cap.
type ExecutionResult struct {
	MandateID    string          `json:"mandate_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	RemainingCap decimal.Decimal `json:"remaining_cap"`
	ExecutionID  string          `json:"execution_id"`
}

// Execute debits a mandate through the simulated rail. The mandate row is
// locked for the duration so two concurrent executions cannot both read a
// stale cap. An execution record is appended for every attempt that reaches
// the rail, and for cap-exceeded rejections (with a failed status); only a
// successful outcome decrements the cap.
func (s *Mandates) Execute(ctx context.Context, callerID string, p ExecuteParams) (*ExecutionResult, error) {
	exists, err := s.dir.MerchantExists(ctx, p.MerchantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.E(model.KindNotFound, p.MerchantID, "merchant not found")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	mandate, err := s.repo.GetForUpdate(ctx, tx, p.MandateID)
	if err != nil {
		return nil, err
	}

	if authErr := mandate.Authorize(p.Amount, time.Now()); authErr != nil {
		if authErr.Kind != model.KindCapExceeded {
			return nil, authErr
		}

		// The attempt is auditable even though it never reached the rail:
		// record it as failed and keep the cap untouched.
		execution := &model.MandateExecution{
			ID:         uuid.NewString(),
			MandateID:  mandate.ID,
			Amount:     p.Amount,
			MerchantID: p.MerchantID,
			Status:     model.ExecutionFailed,
		}
		if err := s.repo.InsertExecution(ctx, tx, execution); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		metrics.RecordMandateExecution("cap_exceeded")
		return nil, authErr
	}

	status := s.outcome.Decide(mandate.ID, p.Amount)

	execution := &model.MandateExecution{
		ID:         uuid.NewString(),
		MandateID:  mandate.ID,
		Amount:     p.Amount,
		MerchantID: p.MerchantID,
		Status:     status,
	}
	if err := s.repo.InsertExecution(ctx, tx, execution); err != nil {
		return nil, err
	}

	if status == model.ExecutionSuccess {
		mandate.Consume(p.Amount)
		if err := s.repo.SaveCap(ctx, tx, mandate); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.RecordMandateExecution(status)
	return &ExecutionResult{
		MandateID:    mandate.ID,
		Amount:       p.Amount,
		Status:       status,
		RemainingCap: mandate.CapAmount,
		ExecutionID:  execution.ID,
	}, nil
}

// ListByPlan returns the plan's mandates to its creator or members.
func (s *Mandates) ListByPlan(ctx context.Context, callerID, planID string) ([]model.Mandate, error) {
	plan, err := s.dir.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := authorizePlanAccess(ctx, s.db, s.plans, callerID, plan); err != nil {
		return nil, err
	}
	return s.repo.ListByPlan(ctx, s.db, planID)
}

// ExecutionTrail returns a mandate's execution audit records, oldest first.
func (s *Mandates) ExecutionTrail(ctx context.Context, callerID, mandateID string) ([]model.MandateExecution, error) {
	mandate, err := s.repo.Get(ctx, s.db, mandateID)
	if err != nil {
		return nil, err
	}
	plan, err := s.dir.GetPlan(ctx, mandate.PlanID)
	if err != nil {
		return nil, err
	}
	if err := authorizePlanAccess(ctx, s.db, s.plans, callerID, plan); err != nil {
		return nil, err
	}
	return s.repo.Executions(ctx, s.db, mandateID)
}
