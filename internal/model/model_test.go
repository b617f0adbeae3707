package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func activeVoucher(balance string) *Voucher {
	return &Voucher{
		ID:        "v-1",
		PlanID:    "p-1",
		Amount:    dec(balance),
		ExpiresAt: time.Now().Add(time.Hour),
		State:     VoucherActive,
	}
}

func TestVoucherDebit_ReducesBalance(t *testing.T) {
	v := activeVoucher("100.00")

	err := v.Debit(dec("30.00"), time.Now())
	require.Nil(t, err)

	assert.True(t, v.Amount.Equal(dec("70.00")), "balance should be 70, got %s", v.Amount)
	assert.Equal(t, VoucherActive, v.State)
}

func TestVoucherDebit_RedeemedAtExactlyZero(t *testing.T) {
	v := activeVoucher("50.00")

	err := v.Debit(dec("50.00"), time.Now())
	require.Nil(t, err)

	assert.True(t, v.Amount.IsZero())
	assert.Equal(t, VoucherRedeemed, v.State)

	// A redeemed voucher rejects further debits
	err = v.Debit(dec("1.00"), time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindNotFound, err.Kind)
}

func TestVoucherDebit_InsufficientBalance(t *testing.T) {
	v := activeVoucher("20.00")

	err := v.Debit(dec("20.01"), time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindInsufficientBalance, err.Kind)
	assert.Equal(t, "v-1", err.EntityID)

	// The failed leg must not change the balance
	assert.True(t, v.Amount.Equal(dec("20.00")))
	assert.Equal(t, VoucherActive, v.State)
}

func TestVoucherDebit_ExpiredAtUseTime(t *testing.T) {
	v := activeVoucher("100.00")
	v.ExpiresAt = time.Now().Add(-time.Minute)

	err := v.Debit(dec("10.00"), time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindExpired, err.Kind)
	assert.True(t, v.Amount.Equal(dec("100.00")))
}

func TestVoucherDebit_ExpiryBoundaryIsExclusive(t *testing.T) {
	now := time.Now()
	v := activeVoucher("100.00")
	v.ExpiresAt = now

	// now >= expires_at rejects; one nanosecond earlier passes
	err := v.Debit(dec("10.00"), now)
	require.NotNil(t, err)
	assert.Equal(t, KindExpired, err.Kind)

	err = v.Debit(dec("10.00"), now.Add(-time.Nanosecond))
	assert.Nil(t, err)
}

func TestVoucherDebit_NonPositiveAmount(t *testing.T) {
	v := activeVoucher("100.00")

	err := v.Debit(decimal.Zero, time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindValidation, err.Kind)

	err = v.Debit(dec("-5.00"), time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindValidation, err.Kind)
}

func TestVoucherDebit_Conservation(t *testing.T) {
	v := activeVoucher("100.00")
	debits := []string{"12.50", "37.25", "50.25"}

	total := decimal.Zero
	for _, d := range debits {
		require.Nil(t, v.Debit(dec(d), time.Now()))
		total = total.Add(dec(d))
	}

	assert.True(t, total.Add(v.Amount).Equal(dec("100.00")),
		"debits plus remaining balance must equal the original amount")
	assert.Equal(t, VoucherRedeemed, v.State)
}

func activeMandate(cap string) *Mandate {
	return &Mandate{
		ID:        "m-1",
		PlanID:    "p-1",
		CapAmount: dec(cap),
		ValidFrom: time.Now().Add(-time.Hour),
		ValidTo:   time.Now().Add(time.Hour),
		State:     MandateActive,
	}
}

func TestMandateAuthorize_WithinCap(t *testing.T) {
	m := activeMandate("500.00")

	err := m.Authorize(dec("500.00"), time.Now())
	assert.Nil(t, err)

	// Authorize never mutates
	assert.True(t, m.CapAmount.Equal(dec("500.00")))
	assert.Equal(t, MandateActive, m.State)
}

func TestMandateAuthorize_CapExceeded(t *testing.T) {
	m := activeMandate("500.00")

	err := m.Authorize(dec("500.01"), time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindCapExceeded, err.Kind)
	assert.True(t, m.CapAmount.Equal(dec("500.00")), "a rejected execution must leave the cap untouched")
}

func TestMandateAuthorize_OutsideWindow(t *testing.T) {
	now := time.Now()

	m := activeMandate("500.00")
	m.ValidFrom = now.Add(time.Minute)
	err := m.Authorize(dec("10.00"), now)
	require.NotNil(t, err)
	assert.Equal(t, KindExpired, err.Kind)

	m = activeMandate("500.00")
	m.ValidTo = now
	err = m.Authorize(dec("10.00"), now)
	require.NotNil(t, err)
	assert.Equal(t, KindExpired, err.Kind)
}

func TestMandateAuthorize_Inactive(t *testing.T) {
	m := activeMandate("500.00")
	m.State = MandateCancelled

	err := m.Authorize(dec("10.00"), time.Now())
	require.NotNil(t, err)
	assert.Equal(t, KindNotFound, err.Kind)
}

func TestMandateConsume_MonotonicCap(t *testing.T) {
	m := activeMandate("100.00")

	m.Consume(dec("40.00"))
	assert.True(t, m.CapAmount.Equal(dec("60.00")))
	assert.Equal(t, MandateActive, m.State)

	m.Consume(dec("60.00"))
	assert.True(t, m.CapAmount.IsZero())
	assert.Equal(t, MandateExpired, m.State, "mandate expires exactly when the cap reaches zero")
}

func TestPlanValidateWindow(t *testing.T) {
	now := time.Now()
	p := &Plan{ID: "p-1", WindowStart: now, WindowEnd: now.Add(time.Hour)}
	assert.Nil(t, p.ValidateWindow())

	p.WindowEnd = now
	err := p.ValidateWindow()
	require.NotNil(t, err)
	assert.Equal(t, KindValidation, err.Kind)

	p.WindowEnd = now.Add(-time.Hour)
	require.NotNil(t, p.ValidateWindow())
}

func TestTransactionTerminal(t *testing.T) {
	tx := &Transaction{Status: TxPending}
	assert.False(t, tx.Terminal())

	tx.Status = TxCompleted
	assert.True(t, tx.Terminal())

	tx.Status = TxFailed
	assert.True(t, tx.Terminal())
}

func TestLedgerAccounts(t *testing.T) {
	assert.Equal(t, "plan_abc", PlanAccount("abc"))
	assert.Equal(t, "merchant_xyz", MerchantAccount("xyz"))
}

func TestErrorKindOf(t *testing.T) {
	de := E(KindCapExceeded, "m-1", "amount exceeds mandate cap")
	assert.Equal(t, KindCapExceeded, KindOf(de))

	wrapped := fmt.Errorf("execute mandate: %w", de)
	assert.Equal(t, KindCapExceeded, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
}

func TestErrorAsError(t *testing.T) {
	de := AsError(errors.New("boom"))
	require.NotNil(t, de)
	assert.Equal(t, KindInternal, de.Kind)
	assert.Equal(t, "boom", de.Reason)

	orig := E(KindNotFound, "v-9", "voucher not found or inactive")
	assert.Same(t, orig, AsError(fmt.Errorf("redeem: %w", orig)))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "expired (v-1): voucher expired",
		E(KindExpired, "v-1", "voucher expired").Error())
	assert.Equal(t, "validation: amounts required",
		E(KindValidation, "", "amounts required").Error())
}
