package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinswerk/billing-engine/billing"
)

// =============================================================================
// CURRENT STATUS DERIVATION
// =============================================================================

func TestCurrentStatus_EmptyLog(t *testing.T) {
	// GIVEN: An entity without any ledger rows
	// WHEN: Deriving the current status
	// THEN: There is none

	assert.Nil(t, billing.CurrentStatus(nil))
	assert.Equal(t, billing.Status(0), billing.CurrentStatusCode(nil))
}

func TestCurrentStatus_MaximalTimestampWins(t *testing.T) {
	// GIVEN: Rows appended out of chronological order
	// WHEN: Deriving the current status
	// THEN: The row with the latest timestamp wins, not the last appended

	base := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	log := []billing.StatusLogEntry{
		{EntityID: "s1", Status: billing.StatusCreated, At: base, Seq: 1},
		{EntityID: "s1", Status: billing.StatusDeptHeadApproved, At: base.Add(2 * time.Hour), Seq: 2},
		{EntityID: "s1", Status: billing.StatusRejected, At: base.Add(time.Hour), Seq: 3},
	}

	current := billing.CurrentStatus(log)
	require.NotNil(t, current)
	assert.Equal(t, billing.StatusDeptHeadApproved, current.Status)
}

func TestCurrentStatus_TimestampTie_InsertionOrderWins(t *testing.T) {
	// GIVEN: Two rows with the identical timestamp
	// WHEN: Deriving the current status
	// THEN: The later-inserted row (higher Seq) wins

	at := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	log := []billing.StatusLogEntry{
		{EntityID: "s1", Status: billing.StatusCreated, At: at, Seq: 1},
		{EntityID: "s1", Status: billing.StatusDeptHeadApproved, At: at, Seq: 2},
	}

	assert.Equal(t, billing.StatusDeptHeadApproved, billing.CurrentStatusCode(log))
}

func TestStatus_CodesAndNames(t *testing.T) {
	for want, s := range map[int]billing.Status{
		10: billing.StatusDraft,
		11: billing.StatusSubmitted,
		12: billing.StatusInvalid,
		20: billing.StatusCreated,
		21: billing.StatusDeptHeadApproved,
		22: billing.StatusReadyForPayment,
		23: billing.StatusPaid,
		24: billing.StatusRejected,
	} {
		assert.Equal(t, want, int(s))
	}
	assert.Equal(t, "dept_head_approved", billing.StatusDeptHeadApproved.String())
	assert.Equal(t, "status(99)", billing.Status(99).String())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, billing.StatusPaid.Terminal())
	assert.True(t, billing.StatusRejected.Terminal())
	assert.False(t, billing.StatusCreated.Terminal())
	assert.False(t, billing.StatusReadyForPayment.Terminal())
	assert.False(t, billing.StatusDraft.Terminal())
}
