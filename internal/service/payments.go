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

// Payments drives the intent/confirm lifecycle. A transaction moves
// pending -> completed or pending -> failed, terminal either way, and a
// completed confirmation posts the ledger pair in the same database
// transaction as the status flip.
type Payments struct {
	db        *sqlx.DB
	dir       Directory
	repo      *repository.PaymentRepository
	plans     *repository.PlanRepository
	ledger    *Ledger
	threshold decimal.Decimal
}

// NewPayments creates a new payment flow engine
func NewPayments(db *sqlx.DB, dir Directory, ledger *Ledger, guardrailThreshold decimal.Decimal) *Payments {
	return &Payments{
		db:        db,
		dir:       dir,
		repo:      repository.NewPaymentRepository(),
		plans:     repository.NewPlanRepository(),
		ledger:    ledger,
		threshold: guardrailThreshold,
	}
}

// IntentParams describes a new payment intent.
type IntentParams struct {
	PlanID     string          `json:"plan_id"`
	MerchantID string          `json:"merchant_id"`
	Amount     decimal.Decimal `json:"amount"`
	Mode       string          `json:"mode"`
}

// IntentResult is returned from CreateIntent. GuardrailRequired is
// advisory: it tells the caller to obtain extra confirmation, the core
// never blocks on it.
type IntentResult struct {
	IntentID          string            `json:"intent_id"`
	Transaction       model.Transaction `json:"transaction"`
	GuardrailRequired bool              `json:"guardrail_required"`
}

// CreateIntent validates the plan and merchant, then records a pending
// transaction under a globally unique intent id.
func (s *Payments) CreateIntent(ctx context.Context, callerID string, p IntentParams) (*IntentResult, error) {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, model.E(model.KindValidation, "", "payment amount must be positive")
	}
	switch p.Mode {
	case model.ModeVouchers, model.ModeMandates, model.ModeSplitLater:
	default:
		return nil, model.E(model.KindValidation, "", fmt.Sprintf("unknown funding mode %q", p.Mode))
	}

	if _, err := s.dir.GetPlan(ctx, p.PlanID); err != nil {
		return nil, err
	}
	exists, err := s.dir.MerchantExists(ctx, p.MerchantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.E(model.KindNotFound, p.MerchantID, "merchant not found")
	}

	txn := &model.Transaction{
		ID:         uuid.NewString(),
		IntentID:   newIntentID(),
		PlanID:     p.PlanID,
		MerchantID: p.MerchantID,
		Amount:     p.Amount,
		Mode:       p.Mode,
		Status:     model.TxPending,
	}

	if err := s.repo.InsertTransaction(ctx, s.db, txn); err != nil {
		return nil, err
	}

	return &IntentResult{
		IntentID:          txn.IntentID,
		Transaction:       *txn,
		GuardrailRequired: p.Amount.GreaterThan(s.threshold),
	}, nil
}

// ConfirmParams finalizes an intent with its terminal status.
type ConfirmParams struct {
	IntentID string  `json:"intent_id"`
	Status   string  `json:"status"`
	RRNStub  *string `json:"rrn_stub,omitempty"`
}

// ConfirmResult reports the finalized transaction.
type ConfirmResult struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	RRNStub       *string `json:"rrn_stub,omitempty"`
}

// Confirm moves the intent's transaction to its terminal status. When the
// status is completed, the plan account is debited and the merchant account
// credited atomically with the flip: if the posting fails the whole confirm
// rolls back, never leaving a completed transaction without ledger legs.
func (s *Payments) Confirm(ctx context.Context, callerID string, p ConfirmParams) (*ConfirmResult, error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordConfirmDuration(result, time.Since(start).Seconds())
	}()

	if p.Status != model.TxCompleted && p.Status != model.TxFailed {
		return nil, model.E(model.KindValidation, p.IntentID, fmt.Sprintf("status must be %q or %q", model.TxCompleted, model.TxFailed))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.repo.GetByIntentForUpdate(ctx, tx, p.IntentID)
	if err != nil {
		return nil, err
	}
	if txn.Terminal() {
		return nil, model.E(model.KindAlreadyProcessed, p.IntentID, "transaction already processed")
	}

	if err := s.repo.SetTerminalStatus(ctx, tx, txn.ID, p.Status, p.RRNStub); err != nil {
		return nil, err
	}

	if p.Status == model.TxCompleted {
		_, _, err := s.ledger.PostPair(ctx, tx, txn.ID, txn.Amount,
			model.PlanAccount(txn.PlanID), model.MerchantAccount(txn.MerchantID))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result = "success"
	return &ConfirmResult{
		TransactionID: txn.ID,
		Status:        p.Status,
		RRNStub:       p.RRNStub,
	}, nil
}

// GetIntent returns the transaction behind an intent id so clients can poll
// its status. Access follows the owning plan's creator-or-member rule.
func (s *Payments) GetIntent(ctx context.Context, callerID, intentID string) (*model.Transaction, error) {
	txn, err := s.repo.GetByIntent(ctx, s.db, intentID)
	if err != nil {
		return nil, err
	}
	plan, err := s.dir.GetPlan(ctx, txn.PlanID)
	if err != nil {
		return nil, err
	}
	if err := authorizePlanAccess(ctx, s.db, s.plans, callerID, plan); err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns the caller's 50 most recent transactions across
// plans they created or belong to.
func (s *Payments) ListTransactions(ctx context.Context, callerID string) ([]model.Transaction, error) {
	planIDs, err := s.plans.MemberPlanIDs(ctx, s.db, callerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForPlans(ctx, s.db, planIDs, 50)
}

// newIntentID generates a globally unique, externally visible intent id.
func newIntentID() string {
	return fmt.Sprintf("intent_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}
