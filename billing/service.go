/*
service.go - Billing service: construction and time entry operations

The Service owns every workflow operation. It is the single writer: all
multi-row mutations run inside store.WithTx, so a failure at any step
leaves no orphaned ledger rows or partially linked statements.

Statement assembly lives in assembler.go, the approval chain in
workflow.go, pricing reads in views.go, rate/surcharge/quarter/limit
administration in admin.go.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements the billing workflows over a transactional store,
// an injected clock and the holiday-calendar collaborator.
type Service struct {
	store        TxStore
	clock        Clock
	calendar     HolidayCalendar
	jurisdiction string
	log          *zap.Logger
}

// NewService wires a Service. A nil logger disables logging; a nil
// calendar disables holidays (and with them all surcharges).
func NewService(store TxStore, clock Clock, calendar HolidayCalendar, jurisdiction string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if calendar == nil {
		calendar = NoHolidays{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		store:        store,
		clock:        clock,
		calendar:     calendar,
		jurisdiction: jurisdiction,
		log:          log,
	}
}

// =============================================================================
// TIME ENTRY INPUT
// =============================================================================

// EntryInput carries the client-controlled fields of a time entry.
// Duration is intentionally absent: it is always derived from Start/End.
type EntryInput struct {
	Date         time.Time
	Start        TimeOfDay
	End          TimeOfDay
	DepartmentID string
	Label        string
}

func (in EntryInput) validate() error {
	if in.Date.IsZero() {
		return Validationf("date is required")
	}
	if !in.Start.Before(in.End) {
		return Validationf("end time must be after start time")
	}
	if in.DepartmentID == "" {
		return Validationf("department is required")
	}
	return nil
}

// =============================================================================
// TIME ENTRY OPERATIONS
// =============================================================================

// CreateEntry records a new draft entry owned by the actor and seeds its
// status ledger with Draft(10).
func (s *Service) CreateEntry(ctx context.Context, actor Actor, in EntryInput) (*TimeEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := TimeEntry{
		ID:           uuid.NewString(),
		Date:         Day(in.Date),
		Start:        in.Start,
		End:          in.End,
		Duration:     DurationHours(in.Start, in.End),
		DepartmentID: in.DepartmentID,
		OwnerID:      actor.ID,
		Label:        in.Label,
		CreatedAt:    now,
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateEntry(ctx, entry); err != nil {
			return err
		}
		return tx.AppendEntryStatus(ctx, StatusLogEntry{
			EntityID: entry.ID,
			Status:   StatusDraft,
			ActorID:  actor.ID,
			At:       now,
			Comment:  "entry created",
		})
	})
	if err != nil {
		return nil, Infra("create entry", err)
	}

	s.log.Info("time entry created",
		zap.String("entry_id", entry.ID),
		zap.String("owner_id", entry.OwnerID),
		zap.String("department_id", entry.DepartmentID),
	)
	return &entry, nil
}

// AddStatementEntry lets an approving actor insert an entry directly
// into an existing statement. The entry belongs to the statement's
// owner; the ledger records the approver as acting party.
func (s *Service) AddStatementEntry(ctx context.Context, actor Actor, statementID string, in EntryInput) (*TimeEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	stmt, err := s.store.Statement(ctx, statementID)
	if err != nil {
		return nil, Infra("load statement", err)
	}
	if stmt == nil {
		return nil, fmt.Errorf("statement %s: %w", statementID, ErrNotFound)
	}
	if !actor.Manages(stmt.DepartmentID) && !actor.Office {
		return nil, Authorizationf("not a department head for department %s", stmt.DepartmentID)
	}
	if in.DepartmentID != stmt.DepartmentID {
		return nil, Validationf("entry department must match statement department %s", stmt.DepartmentID)
	}

	quarter, err := s.store.Quarter(ctx, stmt.QuarterID)
	if err != nil {
		return nil, Infra("load quarter", err)
	}
	if quarter == nil || !quarter.Contains(Day(in.Date)) {
		return nil, Validationf("date %s is outside the statement's quarter", in.Date.Format("2006-01-02"))
	}

	log, err := s.store.StatementStatusLog(ctx, statementID)
	if err != nil {
		return nil, Infra("load statement status", err)
	}
	if current := CurrentStatusCode(log); current.Terminal() {
		return nil, &StateError{Op: "add entry to statement", Current: current}
	}

	now := s.clock.Now()
	entry := TimeEntry{
		ID:           uuid.NewString(),
		Date:         Day(in.Date),
		Start:        in.Start,
		End:          in.End,
		Duration:     DurationHours(in.Start, in.End),
		DepartmentID: stmt.DepartmentID,
		OwnerID:      stmt.OwnerID,
		StatementID:  stmt.ID,
		Label:        in.Label,
		CreatedAt:    now,
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateEntry(ctx, entry); err != nil {
			return err
		}
		return tx.AppendEntryStatus(ctx, StatusLogEntry{
			EntityID: entry.ID,
			Status:   StatusSubmitted,
			ActorID:  actor.ID,
			At:       now,
			Comment:  fmt.Sprintf("added to statement %s by approver", stmt.ID),
		})
	})
	if err != nil {
		return nil, Infra("add statement entry", err)
	}
	return &entry, nil
}

// Entry returns one entry for its owner or an approving actor.
func (s *Service) Entry(ctx context.Context, actor Actor, id string) (*TimeEntry, error) {
	entry, err := s.store.Entry(ctx, id)
	if err != nil {
		return nil, Infra("load entry", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err := s.authorizeEntry(actor, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Drafts lists the actor's entries whose current status is Draft(10).
func (s *Service) Drafts(ctx context.Context, actor Actor) ([]TimeEntry, error) {
	entries, err := s.store.EntriesByOwner(ctx, actor.ID)
	if err != nil {
		return nil, Infra("load entries", err)
	}

	drafts := make([]TimeEntry, 0, len(entries))
	for _, e := range entries {
		log, err := s.store.EntryStatusLog(ctx, e.ID)
		if err != nil {
			return nil, Infra("load entry status", err)
		}
		if CurrentStatusCode(log) == StatusDraft {
			drafts = append(drafts, e)
		}
	}
	return drafts, nil
}

// UpdateEntry stages the proposed values against the persisted entry and
// writes one audit row per field that differs after normalization. The
// update and its audit rows commit together or not at all.
func (s *Service) UpdateEntry(ctx context.Context, actor Actor, id string, in EntryInput, comment string) (*TimeEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	entry, err := s.store.Entry(ctx, id)
	if err != nil {
		return nil, Infra("load entry", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err := s.authorizeEntry(actor, *entry); err != nil {
		return nil, err
	}
	// A linked entry is under review; only approving actors correct it,
	// and the correction must keep the entry inside its statement's
	// department and quarter.
	if entry.StatementID != "" {
		if !actor.Manages(entry.DepartmentID) && !actor.Office {
			return nil, Authorizationf("entry is part of a statement; only an approver may correct it")
		}
		if in.DepartmentID != entry.DepartmentID {
			return nil, Validationf("cannot move a billed entry to another department")
		}
		stmt, err := s.store.Statement(ctx, entry.StatementID)
		if err != nil {
			return nil, Infra("load statement", err)
		}
		if stmt != nil {
			quarter, err := s.store.Quarter(ctx, stmt.QuarterID)
			if err != nil {
				return nil, Infra("load quarter", err)
			}
			if quarter != nil && !quarter.Contains(Day(in.Date)) {
				return nil, Validationf("date %s is outside the statement's quarter", in.Date.Format("2006-01-02"))
			}
		}
	}

	updated := *entry
	updated.Date = Day(in.Date)
	updated.Start = in.Start
	updated.End = in.End
	updated.Duration = DurationHours(in.Start, in.End)
	updated.DepartmentID = in.DepartmentID
	updated.Label = in.Label

	changes := DiffEntry(*entry, updated)
	if len(changes) == 0 {
		return entry, nil
	}
	if comment == "" {
		comment = "correction"
	}

	now := s.clock.Now()
	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateEntry(ctx, updated); err != nil {
			return err
		}
		for _, c := range changes {
			audit := AuditLogEntry{
				EntryID:  id,
				Field:    c.Field,
				OldValue: c.OldValue,
				NewValue: c.NewValue,
				ActorID:  actor.ID,
				At:       now,
				Comment:  comment,
			}
			if err := tx.AppendAudit(ctx, audit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, Infra("update entry", err)
	}

	s.log.Info("time entry corrected",
		zap.String("entry_id", id),
		zap.String("actor_id", actor.ID),
		zap.Int("fields_changed", len(changes)),
	)
	return &updated, nil
}

// DeleteEntry removes an entry. A never-submitted draft (unlinked,
// current status Draft) is physically deleted; everything else is
// soft-deleted: unlinked from its statement, audited, and marked
// Invalid(12) so its history survives.
func (s *Service) DeleteEntry(ctx context.Context, actor Actor, id string) error {
	entry, err := s.store.Entry(ctx, id)
	if err != nil {
		return Infra("load entry", err)
	}
	if entry == nil {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err := s.authorizeEntry(actor, *entry); err != nil {
		return err
	}

	log, err := s.store.EntryStatusLog(ctx, id)
	if err != nil {
		return Infra("load entry status", err)
	}

	if entry.StatementID == "" && CurrentStatusCode(log) == StatusDraft {
		if err := s.store.DeleteEntry(ctx, id); err != nil {
			return Infra("delete entry", err)
		}
		return nil
	}

	now := s.clock.Now()
	err = s.store.WithTx(ctx, func(tx Store) error {
		if entry.StatementID != "" {
			audit := AuditLogEntry{
				EntryID:  id,
				Field:    FieldStatement,
				OldValue: entry.StatementID,
				NewValue: "NULL",
				ActorID:  actor.ID,
				At:       now,
				Comment:  "entry removed from statement",
			}
			if err := tx.AppendAudit(ctx, audit); err != nil {
				return err
			}
			if err := tx.UnlinkEntry(ctx, id); err != nil {
				return err
			}
		}
		return tx.AppendEntryStatus(ctx, StatusLogEntry{
			EntityID: id,
			Status:   StatusInvalid,
			ActorID:  actor.ID,
			At:       now,
			Comment:  "entry deleted",
		})
	})
	return Infra("delete entry", err)
}

// EntryAudit returns the field-level correction trail of an entry.
func (s *Service) EntryAudit(ctx context.Context, actor Actor, id string) ([]AuditLogEntry, error) {
	if _, err := s.Entry(ctx, actor, id); err != nil {
		return nil, err
	}
	trail, err := s.store.AuditTrail(ctx, id)
	if err != nil {
		return nil, Infra("load audit trail", err)
	}
	return trail, nil
}

// EntryHistory returns the full status ledger of an entry.
func (s *Service) EntryHistory(ctx context.Context, actor Actor, id string) ([]StatusLogEntry, error) {
	if _, err := s.Entry(ctx, actor, id); err != nil {
		return nil, err
	}
	log, err := s.store.EntryStatusLog(ctx, id)
	if err != nil {
		return nil, Infra("load entry status", err)
	}
	return log, nil
}

// authorizeEntry gates entry reads/writes: the owner, the business
// office, an admin, or the head of the entry's department.
func (s *Service) authorizeEntry(actor Actor, entry TimeEntry) error {
	if actor.ID == entry.OwnerID || actor.Office || actor.Manages(entry.DepartmentID) {
		return nil
	}
	return Authorizationf("no access to entry %s", entry.ID)
}
