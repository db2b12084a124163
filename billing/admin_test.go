package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinswerk/billing-engine/billing"
)

// =============================================================================
// RATE ROLLOVER
// =============================================================================

func TestUpdateRate_FirstRate_OpenEnded(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.UpdateRate(ctx, deptHead, "w1", "math", dec("12.00"), day(2024, time.January, 1))
	require.NoError(t, err)
	assert.Nil(t, record.ValidTo)

	open, err := store.OpenRate(ctx, "w1", "math")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, record.ID, open.ID)
}

func TestUpdateRate_Rollover_ClosesOldWindow(t *testing.T) {
	// GIVEN: An open rate valid from Jan 1
	// WHEN: Rolling it over to 14.00 from Apr 1
	// THEN: The old record is closed at Mar 31 with its amount intact
	//       and the new record is the only open one

	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateRate(ctx, deptHead, "w1", "math", dec("12.00"), day(2024, time.January, 1))
	require.NoError(t, err)
	newRec, err := svc.UpdateRate(ctx, deptHead, "w1", "math", dec("14.00"), day(2024, time.April, 1))
	require.NoError(t, err)

	rates, err := store.Rates(ctx, "w1", "math")
	require.NoError(t, err)
	require.Len(t, rates, 2)

	open, err := store.OpenRate(ctx, "w1", "math")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, newRec.ID, open.ID)

	for _, r := range rates {
		if r.ID == newRec.ID {
			continue
		}
		require.NotNil(t, r.ValidTo)
		assert.True(t, r.ValidTo.Equal(day(2024, time.March, 31)), "closed at %s", r.ValidTo)
		assert.True(t, r.Amount.Equal(dec("12.00")))
	}
}

func TestUpdateRate_BackdatedBeforeOpenStart_Rejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateRate(ctx, deptHead, "w1", "math", dec("12.00"), day(2024, time.March, 1))
	require.NoError(t, err)

	_, err = svc.UpdateRate(ctx, deptHead, "w1", "math", dec("14.00"), day(2024, time.March, 1))
	require.Error(t, err)
	assert.True(t, billing.IsValidation(err))

	_, err = svc.UpdateRate(ctx, deptHead, "w1", "math", dec("14.00"), day(2024, time.February, 1))
	require.Error(t, err)
	assert.True(t, billing.IsValidation(err))
}

func TestUpdateRate_NegativeAmount_Rejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateRate(context.Background(), deptHead, "w1", "math", dec("-1"), day(2024, time.January, 1))
	require.Error(t, err)
	assert.True(t, billing.IsValidation(err))
}

func TestUpdateRate_WorkerForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateRate(context.Background(), worker, "w1", "math", dec("12.00"), day(2024, time.January, 1))
	require.Error(t, err)
	assert.True(t, billing.IsAuthorization(err))
}

func TestRateHistory_WorkerSeesOwn_StrangerDoesNot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateRate(ctx, deptHead, "w1", "math", dec("12.00"), day(2024, time.January, 1))
	require.NoError(t, err)

	rates, err := svc.RateHistory(ctx, worker, "w1", "math")
	require.NoError(t, err)
	assert.Len(t, rates, 1)

	_, err = svc.RateHistory(ctx, worker2, "w1", "math")
	require.Error(t, err)
	assert.True(t, billing.IsAuthorization(err))
}

// =============================================================================
// SURCHARGE RULES
// =============================================================================

func TestCreateSurcharge_AdminOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := billing.SurchargeRuleInput{Multiplier: dec("1.35"), ValidFrom: day(2024, time.January, 1)}

	_, err := svc.CreateSurcharge(ctx, office, in)
	require.Error(t, err)
	assert.True(t, billing.IsAuthorization(err))

	rule, err := svc.CreateSurcharge(ctx, admin, in)
	require.NoError(t, err)
	assert.True(t, rule.Multiplier.Equal(dec("1.35")))
}

func TestCreateSurcharge_MultiplierBelowOne_Rejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateSurcharge(context.Background(), admin, billing.SurchargeRuleInput{
		Multiplier: dec("0.9"), ValidFrom: day(2024, time.January, 1),
	})
	require.Error(t, err)
	assert.True(t, billing.IsValidation(err))
}

func TestDeleteSurcharge_RepricesOnNextRead(t *testing.T) {
	// GIVEN: A paid-out statement whose holiday entry priced at 1.35
	// WHEN: The admin deletes the surcharge rule
	// THEN: The next read of the same statement prices at the base rate

	svc := newHolidayService(t, fixedHolidays{"2024-10-03": true})
	ctx := context.Background()

	rule, err := svc.CreateSurcharge(ctx, admin, billing.SurchargeRuleInput{
		Multiplier: dec("1.35"), ValidFrom: day(2024, time.January, 1),
	})
	require.NoError(t, err)
	_, err = svc.UpdateRate(ctx, deptHead, "w1", "math", dec("12.00"), day(2024, time.January, 1))
	require.NoError(t, err)

	entry := createEntry(t, svc, worker, day(2024, time.October, 3), "09:00", "11:30", "math")
	stmts, err := svc.Assemble(ctx, worker, []string{entry.ID})
	require.NoError(t, err)

	view, err := svc.StatementView(ctx, worker, stmts[0].ID)
	require.NoError(t, err)
	assert.True(t, view.TotalAmount.Equal(dec("40.50")), "with surcharge: %s", view.TotalAmount)

	require.NoError(t, svc.DeleteSurcharge(ctx, admin, rule.ID))

	view, err = svc.StatementView(ctx, worker, stmts[0].ID)
	require.NoError(t, err)
	assert.True(t, view.TotalAmount.Equal(dec("30.00")), "without surcharge: %s", view.TotalAmount)
}

// =============================================================================
// QUARTERS
// =============================================================================

func TestSaveQuarter_AdminOnly_Validated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	q := billing.Quarter{Name: "Q3 2024", Start: day(2024, time.July, 1), End: day(2024, time.September, 30)}

	_, err := svc.SaveQuarter(ctx, office, q)
	require.Error(t, err)
	assert.True(t, billing.IsAuthorization(err))

	inverted := q
	inverted.Start, inverted.End = inverted.End, inverted.Start
	_, err = svc.SaveQuarter(ctx, admin, inverted)
	require.Error(t, err)
	assert.True(t, billing.IsValidation(err))

	saved, err := svc.SaveQuarter(ctx, admin, q)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	quarters, err := svc.Quarters(ctx)
	require.NoError(t, err)
	assert.Len(t, quarters, 4)
}

// =============================================================================
// HOUR LIMITS
// =============================================================================

func TestLimitOverview_SumsHoursPerWorker(t *testing.T) {
	// GIVEN: A 10h quarter limit and two workers with entries in the
	//        running quarter (the fixed clock sits in Q1 2024)
	// WHEN: The office reads the overview
	// THEN: Hours are summed per worker against the limit

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetLimit(ctx, office, billing.Limit{
		Value: dec("10"), ValidFrom: day(2024, time.January, 1),
	})
	require.NoError(t, err)

	createEntry(t, svc, worker, day(2024, time.March, 10), "09:00", "11:00", "math")
	createEntry(t, svc, worker, day(2024, time.March, 11), "09:00", "12:00", "math")
	createEntry(t, svc, worker2, day(2024, time.March, 12), "09:00", "10:00", "sports")

	overview, err := svc.LimitOverview(ctx, office)
	require.NoError(t, err)
	require.Len(t, overview, 2)

	assert.Equal(t, "w1", overview[0].WorkerID)
	assert.True(t, overview[0].Hours.Equal(dec("5")))
	assert.True(t, overview[0].Remaining.Equal(dec("5")))
	assert.Equal(t, "w2", overview[1].WorkerID)
	assert.True(t, overview[1].Hours.Equal(dec("1")))
	assert.True(t, overview[1].Remaining.Equal(dec("9")))
}

func TestLimitOverview_DeptHeadScopedToManagedDepartments(t *testing.T) {
	// GIVEN: Entries in a managed and an unmanaged department
	// WHEN: The head of math/music reads the overview
	// THEN: The sports-only worker does not appear

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createEntry(t, svc, worker, day(2024, time.March, 10), "09:00", "11:00", "math")
	createEntry(t, svc, worker2, day(2024, time.March, 12), "09:00", "10:00", "sports")

	overview, err := svc.LimitOverview(ctx, deptHead)
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, "w1", overview[0].WorkerID)
}

func TestLimitOverview_WorkerForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.LimitOverview(context.Background(), worker)
	require.Error(t, err)
	assert.True(t, billing.IsAuthorization(err))
}
