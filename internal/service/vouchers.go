package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/metrics"
	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

// Vouchers mints per-member prepaid balances and redeems against them.
type Vouchers struct {
	db    *sqlx.DB
	dir   Directory
	repo  *repository.VoucherRepository
	plans *repository.PlanRepository
}

// NewVouchers creates a new voucher engine
func NewVouchers(db *sqlx.DB, dir Directory) *Vouchers {
	return &Vouchers{
		db:    db,
		dir:   dir,
		repo:  repository.NewVoucherRepository(),
		plans: repository.NewPlanRepository(),
	}
}

// MintParams describes one mint call; one voucher is created per known member.
type MintParams struct {
	PlanID        string          `json:"plan_id"`
	MemberUserIDs []string        `json:"member_user_ids"`
	Amount        decimal.Decimal `json:"amount"`
	MerchantList  []string        `json:"merchant_list"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Mint creates one voucher per member id. Unknown and duplicate member ids
// are silently skipped; all created vouchers commit together. Only the plan
// creator may mint.
func (s *Vouchers) Mint(ctx context.Context, callerID string, p MintParams) ([]model.Voucher, error) {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, model.E(model.KindValidation, p.PlanID, "voucher amount must be positive")
	}

	plan, err := s.dir.GetPlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.CreatedBy != callerID {
		return nil, model.E(model.KindUnauthorized, p.PlanID, "only plan creator can mint vouchers")
	}

	members, err := s.dir.ExistingUsers(ctx, p.MemberUserIDs)
	if err != nil {
		return nil, err
	}

	// A mint without an explicit merchant list inherits the plan's whitelist.
	merchantList := p.MerchantList
	if len(merchantList) == 0 {
		merchantList = plan.MerchantWhitelist
	}

	now := time.Now()
	vouchers := make([]model.Voucher, 0, len(members))
	for _, memberID := range members {
		vouchers = append(vouchers, model.Voucher{
			ID:           uuid.NewString(),
			PlanID:       p.PlanID,
			MemberUserID: memberID,
			Amount:       p.Amount,
			MerchantList: merchantList,
			ExpiresAt:    p.ExpiresAt,
			State:        model.VoucherActive,
			CreatedAt:    now,
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.InsertBatch(ctx, tx, vouchers); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return vouchers, nil
}

// RedeemLeg is one (voucher, amount) pair in a redemption batch.
type RedeemLeg struct {
	VoucherID string          `json:"voucher_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// RedeemParams describes a redemption batch against a single merchant.
type RedeemParams struct {
	Legs       []RedeemLeg `json:"legs"`
	MerchantID string      `json:"merchant_id"`
}

// RedeemedLeg reports one successful redemption.
type RedeemedLeg struct {
	VoucherID string          `json:"voucher_id"`
	Amount    decimal.Decimal `json:"amount"`
	Remaining decimal.Decimal `json:"remaining"`
}

// FailedLeg reports one rejected redemption.
type FailedLeg struct {
	VoucherID string     `json:"voucher_id"`
	Kind      model.Kind `json:"kind"`
	Reason    string     `json:"reason"`
}

// RedemptionResult is the structured partial result of a redemption batch.
type RedemptionResult struct {
	Redeemed      []RedeemedLeg `json:"redeemed"`
	Failed        []FailedLeg   `json:"failed"`
	TotalRedeemed int           `json:"total_redeemed"`
	TotalFailed   int           `json:"total_failed"`
}

// Redeem processes each leg independently: one leg's rejection never aborts
// the others, but every successful leg commits in the same database
// transaction so a crash cannot persist half the batch. Voucher rows are
// locked in sorted-id order to avoid deadlocks between overlapping batches;
// results come back in request order.
func (s *Vouchers) Redeem(ctx context.Context, callerID string, p RedeemParams) (*RedemptionResult, error) {
	if len(p.Legs) == 0 {
		return nil, model.E(model.KindValidation, "", "at least one redemption leg required")
	}

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

	// Lock each distinct voucher once, in sorted order.
	ids := make([]string, 0, len(p.Legs))
	seen := make(map[string]bool, len(p.Legs))
	for _, leg := range p.Legs {
		if !seen[leg.VoucherID] {
			seen[leg.VoucherID] = true
			ids = append(ids, leg.VoucherID)
		}
	}
	sort.Strings(ids)

	locked := make(map[string]*model.Voucher, len(ids))
	for _, id := range ids {
		voucher, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			if model.KindOf(err) == model.KindNotFound {
				continue // reported per leg below
			}
			return nil, err
		}
		locked[id] = voucher
	}

	now := time.Now()
	result := &RedemptionResult{
		Redeemed: []RedeemedLeg{},
		Failed:   []FailedLeg{},
	}

	for _, leg := range p.Legs {
		voucher, ok := locked[leg.VoucherID]
		if !ok {
			result.Failed = append(result.Failed, FailedLeg{
				VoucherID: leg.VoucherID,
				Kind:      model.KindNotFound,
				Reason:    "voucher not found or inactive",
			})
			metrics.RecordRedemptionLeg("failed")
			continue
		}

		if derr := voucher.Debit(leg.Amount, now); derr != nil {
			result.Failed = append(result.Failed, FailedLeg{
				VoucherID: leg.VoucherID,
				Kind:      derr.Kind,
				Reason:    derr.Reason,
			})
			metrics.RecordRedemptionLeg("failed")
			continue
		}

		if err := s.repo.SaveBalance(ctx, tx, voucher); err != nil {
			return nil, err
		}
		redemption := &model.VoucherRedemption{
			ID:         uuid.NewString(),
			VoucherID:  voucher.ID,
			Amount:     leg.Amount,
			MerchantID: p.MerchantID,
		}
		if err := s.repo.InsertRedemption(ctx, tx, redemption); err != nil {
			return nil, err
		}

		result.Redeemed = append(result.Redeemed, RedeemedLeg{
			VoucherID: voucher.ID,
			Amount:    leg.Amount,
			Remaining: voucher.Amount,
		})
		metrics.RecordRedemptionLeg("success")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.TotalRedeemed = len(result.Redeemed)
	result.TotalFailed = len(result.Failed)
	return result, nil
}

// ListByPlan returns the plan's vouchers to its creator or members.
func (s *Vouchers) ListByPlan(ctx context.Context, callerID, planID string) ([]model.Voucher, error) {
	plan, err := s.dir.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := authorizePlanAccess(ctx, s.db, s.plans, callerID, plan); err != nil {
		return nil, err
	}
	return s.repo.ListByPlan(ctx, s.db, planID)
}

// RedemptionTrail returns a voucher's redemption audit records, oldest first.
func (s *Vouchers) RedemptionTrail(ctx context.Context, callerID, voucherID string) ([]model.VoucherRedemption, error) {
	voucher, err := s.repo.Get(ctx, s.db, voucherID)
	if err != nil {
		return nil, err
	}
	plan, err := s.dir.GetPlan(ctx, voucher.PlanID)
	if err != nil {
		return nil, err
	}
	if err := authorizePlanAccess(ctx, s.db, s.plans, callerID, plan); err != nil {
		return nil, err
	}
	return s.repo.Redemptions(ctx, s.db, voucherID)
}
