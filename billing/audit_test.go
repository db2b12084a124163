package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinswerk/billing-engine/billing"
)

func baseEntry() billing.TimeEntry {
	start := billing.TimeOfDay{Hour: 9}
	end := billing.TimeOfDay{Hour: 11}
	return billing.TimeEntry{
		ID:           "e1",
		Date:         day(2024, time.March, 15),
		Start:        start,
		End:          end,
		Duration:     billing.DurationHours(start, end),
		DepartmentID: "math",
		OwnerID:      "w1",
		Label:        "evening course",
	}
}

// =============================================================================
// FIELD CHANGE DETECTION
// =============================================================================

func TestDiffEntry_NoChanges(t *testing.T) {
	old := baseEntry()
	assert.Empty(t, billing.DiffEntry(old, old))
}

func TestDiffEntry_SecondsOnlyTimeChange_Silent(t *testing.T) {
	// GIVEN: The start time moves by 30 seconds within the same minute
	// WHEN: Diffing the staged update
	// THEN: No change is detected; times compare at minute granularity

	old := baseEntry()
	updated := old
	updated.Start = billing.TimeOfDay{Hour: 9, Minute: 0, Second: 30}
	updated.Duration = billing.DurationHours(updated.Start, updated.End)

	assert.Empty(t, billing.DiffEntry(old, updated))
}

func TestDiffEntry_DurationWithinTolerance_Silent(t *testing.T) {
	// GIVEN: The recomputed duration drifts by 0.005h
	// WHEN: Diffing
	// THEN: Drift below 0.01h produces no duration row

	old := baseEntry()
	updated := old
	updated.Duration = old.Duration.Add(dec("0.005"))

	assert.Empty(t, billing.DiffEntry(old, updated))
}

func TestDiffEntry_DurationAboveTolerance_OneRow(t *testing.T) {
	old := baseEntry()
	updated := old
	updated.Duration = old.Duration.Add(dec("0.02"))

	changes := billing.DiffEntry(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, billing.FieldDuration, changes[0].Field)
	assert.Equal(t, "2", changes[0].OldValue)
	assert.Equal(t, "2.02", changes[0].NewValue)
}

func TestDiffEntry_DateComparedByCalendarDay(t *testing.T) {
	// GIVEN: The same calendar day at a different wall-clock instant
	// WHEN: Diffing
	// THEN: No date row; only an actual day change is recorded

	old := baseEntry()
	sameDay := old
	sameDay.Date = time.Date(2024, time.March, 15, 23, 59, 0, 0, time.UTC)
	assert.Empty(t, billing.DiffEntry(old, sameDay))

	moved := old
	moved.Date = day(2024, time.March, 16)
	changes := billing.DiffEntry(old, moved)
	require.Len(t, changes, 1)
	assert.Equal(t, billing.FieldDate, changes[0].Field)
	assert.Equal(t, "2024-03-15", changes[0].OldValue)
	assert.Equal(t, "2024-03-16", changes[0].NewValue)
}

func TestDiffEntry_MultipleFields_OneRowEach(t *testing.T) {
	old := baseEntry()
	updated := old
	updated.End = billing.TimeOfDay{Hour: 12}
	updated.Duration = billing.DurationHours(updated.Start, updated.End)
	updated.Label = "weekend course"

	changes := billing.DiffEntry(old, updated)
	require.Len(t, changes, 3)

	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	assert.ElementsMatch(t, []string{billing.FieldEnd, billing.FieldDuration, billing.FieldLabel}, fields)
}
