package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipphxntom/AeonPay/internal/database"
	"github.com/pipphxntom/AeonPay/internal/idempotency"
	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

// testDB connects to TEST_DATABASE_URL and applies migrations. Tests using
// it are skipped when the variable is unset so the suite runs without a
// database by default.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, stmt := range database.Migrations() {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

type fixture struct {
	db       *sqlx.DB
	plans    *Plans
	vouchers *Vouchers
	mandates *Mandates
	payments *Payments
	ledger   *Ledger

	creatorID  string
	memberID   string
	merchantID string
}

func newFixture(t *testing.T, outcome OutcomePolicy) *fixture {
	t.Helper()
	db := testDB(t)
	ctx := context.Background()

	users := repository.NewUserRepository()
	merchants := repository.NewMerchantRepository()

	f := &fixture{
		db:         db,
		creatorID:  uuid.NewString(),
		memberID:   uuid.NewString(),
		merchantID: uuid.NewString(),
	}

	require.NoError(t, users.UpsertUser(ctx, db, &model.User{
		ID: f.creatorID, Phone: "+91 " + f.creatorID[:10], Name: "Creator",
	}))
	require.NoError(t, users.UpsertUser(ctx, db, &model.User{
		ID: f.memberID, Phone: "+91 " + f.memberID[:10], Name: "Member",
	}))
	require.NoError(t, merchants.UpsertMerchant(ctx, db, &model.Merchant{
		ID: f.merchantID, Name: "Chai Point", Category: "beverages",
	}))

	dir := NewDirectory(db)
	f.ledger = NewLedger(db)
	f.plans = NewPlans(db)
	f.vouchers = NewVouchers(db, dir)
	f.mandates = NewMandates(db, dir, outcome)
	f.payments = NewPayments(db, dir, f.ledger, decimal.NewFromInt(250))
	return f
}

func (f *fixture) createPlan(t *testing.T) *model.Plan {
	t.Helper()
	res, err := f.plans.Create(context.Background(), f.creatorID, PlanParams{
		Name:        "lunch run",
		CapPerHead:  decimal.NewFromInt(500),
		WindowStart: time.Now().Add(-time.Hour),
		WindowEnd:   time.Now().Add(24 * time.Hour),
		MemberIDs:   []string{f.memberID},
	})
	require.NoError(t, err)
	return &res.Plan
}

func TestPlanCreate_CreatorAutoEnrolledAndUnknownsSkipped(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()

	res, err := f.plans.Create(ctx, f.creatorID, PlanParams{
		Name:        "trip",
		CapPerHead:  decimal.NewFromInt(300),
		WindowStart: time.Now(),
		WindowEnd:   time.Now().Add(time.Hour),
		MemberIDs:   []string{f.memberID, "no-such-user"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{f.memberID, f.creatorID}, res.Members)

	// Both the creator and the member can read the plan; a stranger cannot.
	_, err = f.plans.Get(ctx, f.creatorID, res.Plan.ID)
	assert.NoError(t, err)
	_, err = f.plans.Get(ctx, f.memberID, res.Plan.ID)
	assert.NoError(t, err)
	_, err = f.plans.Get(ctx, uuid.NewString(), res.Plan.ID)
	assert.Equal(t, model.KindUnauthorized, model.KindOf(err))
}

func TestVoucherMint_OnlyCreatorAndKnownMembers(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	_, err := f.vouchers.Mint(ctx, f.memberID, MintParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.memberID},
		Amount:        decimal.NewFromInt(100),
		ExpiresAt:     time.Now().Add(time.Hour),
	})
	assert.Equal(t, model.KindUnauthorized, model.KindOf(err))

	minted, err := f.vouchers.Mint(ctx, f.creatorID, MintParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.memberID, "no-such-user", f.memberID},
		Amount:        decimal.NewFromInt(100),
		ExpiresAt:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, minted, 1, "unknown and duplicate member ids are skipped")
	assert.Equal(t, f.memberID, minted[0].MemberUserID)
}

func TestVoucherRedeem_PartialBatchCommitsOnlySuccessfulLegs(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	minted, err := f.vouchers.Mint(ctx, f.creatorID, MintParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.creatorID, f.memberID},
		Amount:        decimal.NewFromInt(100),
		ExpiresAt:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, minted, 2)

	res, err := f.vouchers.Redeem(ctx, f.creatorID, RedeemParams{
		MerchantID: f.merchantID,
		Legs: []RedeemLeg{
			{VoucherID: minted[0].ID, Amount: decimal.NewFromInt(50)},
			{VoucherID: minted[1].ID, Amount: decimal.NewFromInt(75)},
			{VoucherID: minted[1].ID, Amount: decimal.NewFromInt(75)}, // now exceeds remaining 25
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalRedeemed)
	assert.Equal(t, 1, res.TotalFailed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, model.KindInsufficientBalance, res.Failed[0].Kind)

	// The failed leg must not have touched stored balances.
	stored, err := f.vouchers.ListByPlan(ctx, f.creatorID, plan.ID)
	require.NoError(t, err)
	balances := map[string]decimal.Decimal{}
	for _, v := range stored {
		balances[v.ID] = v.Amount
	}
	assert.True(t, balances[minted[0].ID].Equal(decimal.NewFromInt(50)))
	assert.True(t, balances[minted[1].ID].Equal(decimal.NewFromInt(25)))
}

func TestVoucherMint_DefaultsToPlanWhitelist(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()

	res, err := f.plans.Create(ctx, f.creatorID, PlanParams{
		Name:              "snack run",
		CapPerHead:        decimal.NewFromInt(150),
		WindowStart:       time.Now(),
		WindowEnd:         time.Now().Add(time.Hour),
		MerchantWhitelist: []string{f.merchantID},
	})
	require.NoError(t, err)

	minted, err := f.vouchers.Mint(ctx, f.creatorID, MintParams{
		PlanID:        res.Plan.ID,
		MemberUserIDs: []string{f.creatorID},
		Amount:        decimal.NewFromInt(40),
		ExpiresAt:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, minted, 1)
	assert.Equal(t, []string{f.merchantID}, []string(minted[0].MerchantList))
}

func TestVoucherRedemptionTrail(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	minted, err := f.vouchers.Mint(ctx, f.creatorID, MintParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.memberID},
		Amount:        decimal.NewFromInt(100),
		ExpiresAt:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = f.vouchers.Redeem(ctx, f.memberID, RedeemParams{
		MerchantID: f.merchantID,
		Legs: []RedeemLeg{
			{VoucherID: minted[0].ID, Amount: decimal.NewFromInt(30)},
			{VoucherID: minted[0].ID, Amount: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)

	trail, err := f.vouchers.RedemptionTrail(ctx, f.memberID, minted[0].ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, f.merchantID, trail[0].MerchantID)

	_, err = f.vouchers.RedemptionTrail(ctx, uuid.NewString(), minted[0].ID)
	assert.Equal(t, model.KindUnauthorized, model.KindOf(err))
}

func TestVoucherRedeem_UnknownVoucherReportedPerLeg(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()

	res, err := f.vouchers.Redeem(ctx, f.creatorID, RedeemParams{
		MerchantID: f.merchantID,
		Legs:       []RedeemLeg{{VoucherID: uuid.NewString(), Amount: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalRedeemed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, model.KindNotFound, res.Failed[0].Kind)
}

func TestMandateExecute_SuccessConsumesCap(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	created, err := f.mandates.Create(ctx, f.creatorID, CreateParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.memberID},
		CapAmount:     decimal.NewFromInt(200),
		ValidFrom:     time.Now().Add(-time.Minute),
		ValidTo:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	res, err := f.mandates.Execute(ctx, f.memberID, ExecuteParams{
		MandateID:  created[0].ID,
		Amount:     decimal.NewFromInt(80),
		MerchantID: f.merchantID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	assert.True(t, res.RemainingCap.Equal(decimal.NewFromInt(120)))
	assert.NotEmpty(t, res.ExecutionID)
}

func TestMandateExecute_FailedOutcomeLeavesCap(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionFailed))
	ctx := context.Background()
	plan := f.createPlan(t)

	created, err := f.mandates.Create(ctx, f.creatorID, CreateParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.memberID},
		CapAmount:     decimal.NewFromInt(200),
		ValidFrom:     time.Now().Add(-time.Minute),
		ValidTo:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	res, err := f.mandates.Execute(ctx, f.memberID, ExecuteParams{
		MandateID:  created[0].ID,
		Amount:     decimal.NewFromInt(80),
		MerchantID: f.merchantID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionFailed, res.Status)
	assert.True(t, res.RemainingCap.Equal(decimal.NewFromInt(200)))

	// The failed attempt is still auditable.
	execs, err := repository.NewMandateRepository().Executions(ctx, f.db, created[0].ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecutionFailed, execs[0].Status)
}

func TestMandateExecute_CapExceededWritesAuditRow(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	created, err := f.mandates.Create(ctx, f.creatorID, CreateParams{
		PlanID:        plan.ID,
		MemberUserIDs: []string{f.memberID},
		CapAmount:     decimal.NewFromInt(100),
		ValidFrom:     time.Now().Add(-time.Minute),
		ValidTo:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = f.mandates.Execute(ctx, f.memberID, ExecuteParams{
		MandateID:  created[0].ID,
		Amount:     decimal.NewFromInt(101),
		MerchantID: f.merchantID,
	})
	require.Error(t, err)
	assert.Equal(t, model.KindCapExceeded, model.KindOf(err))

	execs, err := repository.NewMandateRepository().Executions(ctx, f.db, created[0].ID)
	require.NoError(t, err)
	require.Len(t, execs, 1, "a cap-exceeded rejection still leaves an audit row")
	assert.Equal(t, model.ExecutionFailed, execs[0].Status)

	// The cap itself is untouched.
	listed, err := f.mandates.ListByPlan(ctx, f.creatorID, plan.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].CapAmount.Equal(decimal.NewFromInt(100)))
}

func TestPaymentLifecycle_ConfirmPostsBalancedLegsExactlyOnce(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	intent, err := f.payments.CreateIntent(ctx, f.creatorID, IntentParams{
		PlanID:     plan.ID,
		MerchantID: f.merchantID,
		Amount:     decimal.NewFromInt(120),
		Mode:       model.ModeVouchers,
	})
	require.NoError(t, err)
	assert.False(t, intent.GuardrailRequired)
	assert.Equal(t, model.TxPending, intent.Transaction.Status)

	fetched, err := f.payments.GetIntent(ctx, f.memberID, intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, model.TxPending, fetched.Status)

	confirmed, err := f.payments.Confirm(ctx, f.creatorID, ConfirmParams{
		IntentID: intent.IntentID,
		Status:   model.TxCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TxCompleted, confirmed.Status)

	// Exactly one debit and one credit of equal amount, against the plan
	// and merchant accounts.
	entries, err := f.ledger.EntriesForTransaction(ctx, confirmed.TransactionID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	legs := map[string]model.LedgerEntry{}
	for _, e := range entries {
		legs[e.Leg] = e
	}
	require.Contains(t, legs, model.LegDebit)
	require.Contains(t, legs, model.LegCredit)
	assert.Equal(t, model.PlanAccount(plan.ID), legs[model.LegDebit].Account)
	assert.Equal(t, model.MerchantAccount(f.merchantID), legs[model.LegCredit].Account)
	assert.True(t, legs[model.LegDebit].Amount.Equal(legs[model.LegCredit].Amount))

	// A second confirm is rejected and posts nothing further.
	_, err = f.payments.Confirm(ctx, f.creatorID, ConfirmParams{
		IntentID: intent.IntentID,
		Status:   model.TxFailed,
	})
	assert.Equal(t, model.KindAlreadyProcessed, model.KindOf(err))

	entries, err = f.ledger.EntriesForTransaction(ctx, confirmed.TransactionID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	balanced, err := f.ledger.IsBalanced(ctx)
	require.NoError(t, err)
	assert.True(t, balanced)
}

func TestPaymentConfirm_FailedPostsNoLegs(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	intent, err := f.payments.CreateIntent(ctx, f.creatorID, IntentParams{
		PlanID:     plan.ID,
		MerchantID: f.merchantID,
		Amount:     decimal.NewFromInt(60),
		Mode:       model.ModeSplitLater,
	})
	require.NoError(t, err)

	confirmed, err := f.payments.Confirm(ctx, f.creatorID, ConfirmParams{
		IntentID: intent.IntentID,
		Status:   model.TxFailed,
	})
	require.NoError(t, err)

	entries, err := f.ledger.EntriesForTransaction(ctx, confirmed.TransactionID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPaymentIntent_GuardrailAboveThreshold(t *testing.T) {
	f := newFixture(t, FixedOutcome(model.ExecutionSuccess))
	ctx := context.Background()
	plan := f.createPlan(t)

	at, err := f.payments.CreateIntent(ctx, f.creatorID, IntentParams{
		PlanID: plan.ID, MerchantID: f.merchantID,
		Amount: decimal.NewFromInt(250), Mode: model.ModeMandates,
	})
	require.NoError(t, err)
	assert.False(t, at.GuardrailRequired, "threshold itself does not trip the guardrail")

	above, err := f.payments.CreateIntent(ctx, f.creatorID, IntentParams{
		PlanID: plan.ID, MerchantID: f.merchantID,
		Amount: decimal.RequireFromString("250.01"), Mode: model.ModeMandates,
	})
	require.NoError(t, err)
	assert.True(t, above.GuardrailRequired)
}

func TestUserUpsert_SamePhoneConvergesOnFirstRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := repository.NewUserRepository()

	phone := "+91 " + uuid.NewString()[:10]
	first := &model.User{ID: uuid.NewString(), Phone: phone, Name: "First"}
	second := &model.User{ID: uuid.NewString(), Phone: phone, Name: "Second"}

	// Two racing first logins both insert; the loser must not error.
	require.NoError(t, users.UpsertUser(ctx, db, first))
	require.NoError(t, users.UpsertUser(ctx, db, second))

	got, err := users.GetUserByPhone(ctx, db, phone)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "First", got.Name)
}

func TestIdempotencyStore_ClaimProtocol(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := idempotency.NewStore(db)
	key := uuid.NewString()

	claimed, cached, err := store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, cached)

	// Second claim while the winner is in flight: not claimed, nothing cached.
	claimed, cached, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Nil(t, cached)

	require.NoError(t, store.Complete(ctx, key, 201, []byte(`{"ok":true}`)))

	claimed, cached, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, cached)
	assert.Equal(t, 201, cached.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(cached.Body))

	// Releasing a completed key is a no-op; the response survives.
	require.NoError(t, store.Release(ctx, key))
	cached, err = store.Lookup(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, cached)
}

func TestIdempotencyStore_StaleClaimIsReclaimable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := idempotency.NewStore(db)
	key := uuid.NewString()

	// An unsettled claim left by a crashed process, well past the
	// takeover age.
	_, err := db.ExecContext(ctx, `
		INSERT INTO idempotent_requests (id, idempotency_key, created_at)
		VALUES ($1, $2, $3)
	`, uuid.NewString(), key, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	claimed, cached, err := store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed, "an abandoned claim must be reclaimable")
	assert.Nil(t, cached)

	// A fresh unsettled claim is still protected.
	freshKey := uuid.NewString()
	claimed, _, err = store.Claim(ctx, freshKey)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, cached, err = store.Claim(ctx, freshKey)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Nil(t, cached)
}

func TestIdempotencyStore_ReleaseReopensUnsettledKey(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := idempotency.NewStore(db)
	key := uuid.NewString()

	claimed, _, err := store.Claim(ctx, key)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.Release(ctx, key))

	claimed, _, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed, "a released key can be claimed again")
}
