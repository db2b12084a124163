/*
audit.go - Field-level change detection for time entry corrections

On update, proposed values are staged against the persisted entry and
compared with per-field normalization before anything is written:

  date      compared as calendar-day strings
  start/end compared truncated to minute granularity
  duration  compared with |delta| < 0.01 tolerance
  others    direct string equality

Only fields that still differ after normalization produce an audit row.
Duration is recomputed server-side from start/end, never taken from the
client, so a pure seconds-level time correction stays silent.
*/
package billing

import "github.com/shopspring/decimal"

// Audit field names, stable identifiers written into the audit log.
const (
	FieldDate       = "date"
	FieldStart      = "start"
	FieldEnd        = "end"
	FieldDuration   = "duration"
	FieldDepartment = "department_id"
	FieldLabel      = "label"
	FieldStatement  = "statement_id"
)

// durationTolerance treats sub-0.01h duration drift (rounding noise from
// recomputation) as no change.
var durationTolerance = decimal.NewFromFloat(0.01)

// FieldChange is one detected difference, already normalized to the
// string form stored in the audit log.
type FieldChange struct {
	Field    string
	OldValue string
	NewValue string
}

// DiffEntry compares the persisted entry against the staged update and
// returns the changes that survive normalization.
func DiffEntry(old, updated TimeEntry) []FieldChange {
	var changes []FieldChange

	if !Day(old.Date).Equal(Day(updated.Date)) {
		changes = append(changes, FieldChange{
			Field:    FieldDate,
			OldValue: old.Date.Format("2006-01-02"),
			NewValue: updated.Date.Format("2006-01-02"),
		})
	}

	if !old.Start.SameMinute(updated.Start) {
		changes = append(changes, FieldChange{
			Field:    FieldStart,
			OldValue: old.Start.String(),
			NewValue: updated.Start.String(),
		})
	}
	if !old.End.SameMinute(updated.End) {
		changes = append(changes, FieldChange{
			Field:    FieldEnd,
			OldValue: old.End.String(),
			NewValue: updated.End.String(),
		})
	}

	if old.Duration.Sub(updated.Duration).Abs().GreaterThanOrEqual(durationTolerance) {
		changes = append(changes, FieldChange{
			Field:    FieldDuration,
			OldValue: old.Duration.Round(2).String(),
			NewValue: updated.Duration.Round(2).String(),
		})
	}

	if old.DepartmentID != updated.DepartmentID {
		changes = append(changes, FieldChange{
			Field:    FieldDepartment,
			OldValue: old.DepartmentID,
			NewValue: updated.DepartmentID,
		})
	}
	if old.Label != updated.Label {
		changes = append(changes, FieldChange{
			Field:    FieldLabel,
			OldValue: old.Label,
			NewValue: updated.Label,
		})
	}

	return changes
}
