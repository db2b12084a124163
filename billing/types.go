/*
Package billing implements the billing-statement life cycle for hourly
worked-time records: drafting time entries, assembling them into
quarter- and department-scoped statements, moving statements through the
worker → department head → business office approval chain, and pricing
every entry from time-varying hourly rates and holiday surcharge rules.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeEntry: a single worked-hours record (date, start/end, duration)
  - Statement: a department+quarter batch of entries awaiting approval
  - StatusLogEntry: one row of the append-only status ledger
  - RateRecord / SurchargeRule: temporal pricing data
  - Actor: the per-request capability object (managed departments, flags)

DESIGN PRINCIPLES:
  1. Derived state: an entity's status is never stored directly; it is
     always the newest row of its status ledger.
  2. Precision: all money math uses decimal.Decimal, never float64.
  3. Fresh pricing: amounts are computed on every read, never persisted.
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS CODES
// =============================================================================

// Status is a workflow state code from the shared status table.
// Entry states live in the 10s, statement states in the 20s.
type Status int

const (
	// Time entry states.
	StatusDraft     Status = 10 // editable, not yet part of a statement
	StatusSubmitted Status = 11 // linked into a statement
	StatusInvalid   Status = 12 // removed or invalidated by a rejection

	// Statement states.
	StatusCreated          Status = 20 // awaiting department head
	StatusDeptHeadApproved Status = 21 // awaiting business office
	StatusReadyForPayment  Status = 22 // approved, awaiting payout
	StatusPaid             Status = 23 // payout done, terminal
	StatusRejected         Status = 24 // terminal
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusSubmitted:
		return "submitted"
	case StatusInvalid:
		return "invalid"
	case StatusCreated:
		return "created"
	case StatusDeptHeadApproved:
		return "dept_head_approved"
	case StatusReadyForPayment:
		return "ready_for_payment"
	case StatusPaid:
		return "paid"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether a statement in this state can still move.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is a wall-clock time within a day, second precision.
// Inputs may carry seconds ("10:00:30") or not ("10:00"); the audit
// comparison only looks at minute granularity.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM or HH:MM:SS)", s)
}

func (t TimeOfDay) Seconds() int { return t.Hour*3600 + t.Minute*60 + t.Second }

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Seconds() < o.Seconds() }

// SameMinute ignores the seconds component, mirroring the audit rule
// that "10:00:00" and "10:00:30" are the same value.
func (t TimeOfDay) SameMinute(o TimeOfDay) bool {
	return t.Hour == o.Hour && t.Minute == o.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Short renders minute precision ("15:04") for API responses.
func (t TimeOfDay) Short() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DurationHours computes the worked duration in decimal hours from the
// start/end clock times. Duration is always server-derived; client input
// for it is never trusted.
func DurationHours(start, end TimeOfDay) decimal.Decimal {
	seconds := end.Seconds() - start.Seconds()
	return decimal.NewFromInt(int64(seconds)).Div(decimal.NewFromInt(3600))
}

// =============================================================================
// ENTITIES
// =============================================================================

// TimeEntry is a single worked-hours record. StatementID is empty while
// the entry is unlinked; unlinking (not deletion) is how entries leave a
// statement, except for never-submitted drafts.
type TimeEntry struct {
	ID           string
	Date         time.Time // calendar day, UTC midnight
	Start        TimeOfDay
	End          TimeOfDay
	Duration     decimal.Decimal // hours, derived from Start/End
	DepartmentID string
	OwnerID      string // the worker the hours belong to
	StatementID  string // empty = unlinked
	Label        string // free-text course/activity label
	CreatedAt    time.Time
}

// Statement is a quarter- and department-scoped batch of time entries.
// Every linked entry shares DepartmentID and dates inside the quarter.
type Statement struct {
	ID           string
	QuarterID    string
	DepartmentID string
	OwnerID      string
	CreatedAt    time.Time
}

// Quarter is a fixed, pre-seeded fiscal period [Start, End].
type Quarter struct {
	ID    string
	Name  string // e.g. "Q1 2024"
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar day d falls inside the quarter.
func (q Quarter) Contains(d time.Time) bool {
	return !d.Before(q.Start) && !d.After(q.End)
}

// StatusLogEntry is one row of the append-only status ledger. Rows are
// never updated or deleted; the current status of an entity is the row
// with the maximal timestamp, ties broken by insertion order (Seq).
type StatusLogEntry struct {
	EntityID string
	Status   Status
	ActorID  string
	At       time.Time
	Comment  string
	Seq      int64 // insertion order, assigned by the store
}

// RateRecord is a worker's hourly rate for one department over a validity
// window. ValidTo == nil means open-ended; at most one open-ended record
// exists per (worker, department) at any instant.
type RateRecord struct {
	ID           string
	WorkerID     string
	DepartmentID string
	Amount       decimal.Decimal
	ValidFrom    time.Time
	ValidTo      *time.Time
}

// Covers reports whether the record's validity window includes day d.
func (r RateRecord) Covers(d time.Time) bool {
	if d.Before(r.ValidFrom) {
		return false
	}
	return r.ValidTo == nil || !d.After(*r.ValidTo)
}

// SurchargeRule is a holiday-pay multiplier (>= 1.0) with a validity
// window. ValidTo == nil means open-ended.
type SurchargeRule struct {
	ID         string
	Multiplier decimal.Decimal
	ValidFrom  time.Time
	ValidTo    *time.Time
	CreatedAt  time.Time
}

// Covers reports whether the rule's validity window includes day d.
func (r SurchargeRule) Covers(d time.Time) bool {
	if d.Before(r.ValidFrom) {
		return false
	}
	return r.ValidTo == nil || !d.After(*r.ValidTo)
}

// AuditLogEntry records one field-level correction to a time entry.
// Written only when the field actually differs after normalization.
type AuditLogEntry struct {
	EntryID  string
	Field    string
	OldValue string
	NewValue string
	ActorID  string
	At       time.Time
	Comment  string
}

// Limit is a temporal cap on hours a worker may bill per quarter.
type Limit struct {
	ID        string
	Value     decimal.Decimal // hours per quarter
	ValidFrom time.Time
	ValidTo   *time.Time
}

// =============================================================================
// ACTOR
// =============================================================================

// Actor is the per-request capability object resolved by the identity
// collaborator: who is calling, which departments they head, and whether
// they act for the business office or as admin. Repeated directory
// lookups are replaced by this one resolved value.
type Actor struct {
	ID                 string
	ManagedDepartments []string
	Office             bool
	Admin              bool
}

// Manages reports whether the actor heads the given department.
// Admins manage everything.
func (a Actor) Manages(departmentID string) bool {
	if a.Admin {
		return true
	}
	for _, d := range a.ManagedDepartments {
		if d == departmentID {
			return true
		}
	}
	return false
}

// IsDeptHead reports whether the actor heads at least one department.
func (a Actor) IsDeptHead() bool { return a.Admin || len(a.ManagedDepartments) > 0 }

// CanActFor reports whether the actor may create or modify records owned
// by ownerID: the owner themselves, the business office, an admin, or a
// department head acting inside one of their departments (checked at the
// call sites that know the department).
func (a Actor) CanActFor(ownerID string) bool {
	return a.ID == ownerID || a.Office || a.Admin
}

// =============================================================================
// HOLIDAY CALENDAR (collaborator)
// =============================================================================

// HolidayCalendar is the external holiday provider. Implementations must
// be pure: same date + jurisdiction always yields the same answer.
type HolidayCalendar interface {
	IsHoliday(date time.Time, jurisdiction string) bool
}

// NoHolidays is a calendar with no holidays, for tests and setups where
// surcharges are disabled.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time, string) bool { return false }

// =============================================================================
// DATE HELPERS
// =============================================================================

// Day normalizes t to UTC midnight. All entry dates and validity window
// bounds are stored at day granularity.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a "2006-01-02" calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}
