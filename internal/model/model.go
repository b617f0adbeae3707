package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Plan statuses
const (
	PlanActive    = "active"
	PlanCompleted = "completed"
	PlanCancelled = "cancelled"
)

// Voucher states
const (
	VoucherActive   = "active"
	VoucherRedeemed = "redeemed"
	VoucherExpired  = "expired"
)

// Mandate states
const (
	MandateActive    = "active"
	MandateExpired   = "expired"
	MandateCancelled = "cancelled"
)

// Transaction statuses
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

// Funding modes
const (
	ModeVouchers   = "vouchers"
	ModeMandates   = "mandates"
	ModeSplitLater = "split_later"
)

// Ledger legs
const (
	LegDebit  = "debit"
	LegCredit = "credit"
)

// Mandate execution outcomes
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
)

// User is a registered account holder
type User struct {
	ID        string    `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Avatar    *string   `db:"avatar" json:"avatar,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Campus groups merchants by location
type Campus struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Location string `db:"location" json:"location"`
}

// Merchant is a whitelisted point of sale
type Merchant struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Category string  `db:"category" json:"category"`
	CampusID *string `db:"campus_id" json:"campus_id,omitempty"`
	Icon     *string `db:"icon" json:"icon,omitempty"`
	Location *string `db:"location" json:"location,omitempty"`
}

// Plan is a shared spending budget with a per-head cap and a time window
type Plan struct {
	ID                string          `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	CapPerHead        decimal.Decimal `db:"cap_per_head" json:"cap_per_head"`
	WindowStart       time.Time       `db:"window_start" json:"window_start"`
	WindowEnd         time.Time       `db:"window_end" json:"window_end"`
	MerchantWhitelist pq.StringArray  `db:"merchant_whitelist" json:"merchant_whitelist"`
	Status            string          `db:"status" json:"status"`
	CreatedBy         string          `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// ValidateWindow enforces window_start < window_end.
func (p *Plan) ValidateWindow() *Error {
	if !p.WindowStart.Before(p.WindowEnd) {
		return E(KindValidation, p.ID, "plan window start must be before window end")
	}
	return nil
}

// PlanMember links a user to a plan
type PlanMember struct {
	ID       string    `db:"id" json:"id"`
	PlanID   string    `db:"plan_id" json:"plan_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	State    string    `db:"state" json:"state"` // active, left, removed
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Voucher is a prepaid balance allocated to one plan member.
// Amount is the remaining balance; redemptions only ever decrease it.
type Voucher struct {
	ID           string          `db:"id" json:"id"`
	PlanID       string          `db:"plan_id" json:"plan_id"`
	MemberUserID string          `db:"member_user_id" json:"member_user_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	MerchantList pq.StringArray  `db:"merchant_list" json:"merchant_list"`
	ExpiresAt    time.Time       `db:"expires_at" json:"expires_at"`
	State        string          `db:"state" json:"state"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Debit checks a redemption leg against the voucher and applies it.
// Expiry is checked at use time: a voucher whose stored state still reads
// active is rejected once now >= expires_at. The state flips to redeemed
// exactly when the balance reaches zero.
func (v *Voucher) Debit(amount decimal.Decimal, now time.Time) *Error {
	if v.State != VoucherActive {
		return E(KindNotFound, v.ID, "voucher not found or inactive")
	}
	if !now.Before(v.ExpiresAt) {
		return E(KindExpired, v.ID, "voucher expired")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return E(KindValidation, v.ID, "redemption amount must be positive")
	}
	if amount.GreaterThan(v.Amount) {
		return E(KindInsufficientBalance, v.ID, "insufficient voucher balance")
	}
	v.Amount = v.Amount.Sub(amount)
	if v.Amount.IsZero() {
		v.State = VoucherRedeemed
	}
	return nil
}

// VoucherRedemption is an append-only audit record, one per successful leg
type VoucherRedemption struct {
	ID            string          `db:"id" json:"id"`
	VoucherID     string          `db:"voucher_id" json:"voucher_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	MerchantID    string          `db:"merchant_id" json:"merchant_id"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Mandate is a standing spending authorization with a cap.
// CapAmount is the remaining cap; successful executions decrease it.
type Mandate struct {
	ID           string          `db:"id" json:"id"`
	PlanID       string          `db:"plan_id" json:"plan_id"`
	MemberUserID string          `db:"member_user_id" json:"member_user_id"`
	CapAmount    decimal.Decimal `db:"cap_amount" json:"cap_amount"`
	ValidFrom    time.Time       `db:"valid_from" json:"valid_from"`
	ValidTo      time.Time       `db:"valid_to" json:"valid_to"`
	State        string          `db:"state" json:"state"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Authorize checks whether an execution of the given amount is permitted.
// It does not mutate the mandate.
func (m *Mandate) Authorize(amount decimal.Decimal, now time.Time) *Error {
	if m.State != MandateActive {
		return E(KindNotFound, m.ID, "mandate not found or inactive")
	}
	if now.Before(m.ValidFrom) || !now.Before(m.ValidTo) {
		return E(KindExpired, m.ID, "mandate outside validity window")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return E(KindValidation, m.ID, "execution amount must be positive")
	}
	if amount.GreaterThan(m.CapAmount) {
		return E(KindCapExceeded, m.ID, "amount exceeds mandate cap")
	}
	return nil
}

// Consume decrements the remaining cap after a successful execution.
// The mandate expires exactly when the cap reaches zero. Callers must
// Authorize first; Consume never drives the cap negative.
func (m *Mandate) Consume(amount decimal.Decimal) {
	m.CapAmount = m.CapAmount.Sub(amount)
	if m.CapAmount.LessThanOrEqual(decimal.Zero) {
		m.CapAmount = decimal.Zero
		m.State = MandateExpired
	}
}

// MandateExecution is an append-only audit record, one per execution attempt
type MandateExecution struct {
	ID            string          `db:"id" json:"id"`
	MandateID     string          `db:"mandate_id" json:"mandate_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	MerchantID    string          `db:"merchant_id" json:"merchant_id"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	Status        string          `db:"status" json:"status"` // success, failed
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Transaction tracks a payment intent through its lifecycle
type Transaction struct {
	ID         string          `db:"id" json:"id"`
	IntentID   string          `db:"intent_id" json:"intent_id"`
	PlanID     string          `db:"plan_id" json:"plan_id"`
	MerchantID string          `db:"merchant_id" json:"merchant_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Mode       string          `db:"mode" json:"mode"`
	Status     string          `db:"status" json:"status"`
	RRNStub    *string         `db:"rrn_stub" json:"rrn_stub,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Terminal reports whether the transaction reached a final state.
// Terminal transactions are never re-opened.
func (t *Transaction) Terminal() bool {
	return t.Status == TxCompleted || t.Status == TxFailed
}

// LedgerEntry is one leg of a double-entry record. Entries are immutable
// and always written as equal-amount debit/credit pairs per transaction.
type LedgerEntry struct {
	ID        string          `db:"id" json:"id"`
	TxnID     string          `db:"txn_id" json:"txn_id"`
	Account   string          `db:"account" json:"account"`
	Leg       string          `db:"leg" json:"leg"` // debit, credit
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// IdempotentRequest stores the first response computed for a key.
// ResponseData stays NULL between claim and completion.
type IdempotentRequest struct {
	ID             string    `db:"id" json:"id"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	StatusCode     *int      `db:"status_code" json:"status_code,omitempty"`
	ResponseData   []byte    `db:"response_data" json:"response_data,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PlanAccount and MerchantAccount name the ledger accounts used when a
// confirmed payment is posted.
func PlanAccount(planID string) string         { return "plan_" + planID }
func MerchantAccount(merchantID string) string { return "merchant_" + merchantID }
