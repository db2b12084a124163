package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinswerk/billing-engine/billing"
	"github.com/vereinswerk/billing-engine/store/memory"
)

func seedEntry(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	start, err := billing.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := billing.ParseTimeOfDay("11:30")
	require.NoError(t, err)
	require.NoError(t, store.CreateEntry(context.Background(), billing.TimeEntry{
		ID:           id,
		Date:         time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		Start:        start,
		End:          end,
		Duration:     decimal.RequireFromString("2.5"),
		DepartmentID: "math",
		OwnerID:      "w1",
		Label:        "course",
		CreatedAt:    time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC),
	}))
}

func TestLinkEntry_ClaimsEntryOnce(t *testing.T) {
	// GIVEN: An entry already claimed by one statement
	// WHEN: A second statement tries to link the same entry
	// THEN: The second link fails and the first claim stands

	store := memory.New()
	ctx := context.Background()
	seedEntry(t, store, "e1")

	require.NoError(t, store.LinkEntry(ctx, "e1", "stmt-a"))

	err := store.LinkEntry(ctx, "e1", "stmt-b")
	require.ErrorIs(t, err, billing.ErrEntryLinked)

	got, err := store.Entry(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "stmt-a", got.StatementID)
}

func TestUnlinkEntry_FreesEntryForRelinking(t *testing.T) {
	// GIVEN: An entry linked to a statement
	// WHEN: Unlinking it
	// THEN: Another statement may claim it again

	store := memory.New()
	ctx := context.Background()
	seedEntry(t, store, "e1")

	require.NoError(t, store.LinkEntry(ctx, "e1", "stmt-a"))
	require.NoError(t, store.UnlinkEntry(ctx, "e1"))
	require.NoError(t, store.LinkEntry(ctx, "e1", "stmt-b"))

	got, err := store.Entry(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "stmt-b", got.StatementID)
}
