/*
store.go - Persistence interface for the billing engine

The store exposes equality and date-range queries over the entities in
types.go. Two invariants are the store's to uphold:

  1. The two status-log tables are APPEND-ONLY. No update, no delete.
  2. WithTx runs a closure against a transactional view; every multi-row
     mutation in this package goes through it, so partial success is
     impossible - either all rows commit or none do.

Lookups for a single record return (nil, nil) when nothing matches;
callers translate that to ErrNotFound with context.
*/
package billing

import (
	"context"
	"time"
)

// Store is the flat persistence surface. store/sqlite implements it on
// SQLite; store/memory implements it in-process for tests.
type Store interface {
	// --- time entries ---
	CreateEntry(ctx context.Context, e TimeEntry) error
	Entry(ctx context.Context, id string) (*TimeEntry, error)
	EntriesByIDs(ctx context.Context, ids []string) ([]TimeEntry, error)
	EntriesByOwner(ctx context.Context, ownerID string) ([]TimeEntry, error)
	EntriesByStatement(ctx context.Context, statementID string) ([]TimeEntry, error)
	EntriesInRange(ctx context.Context, from, to time.Time) ([]TimeEntry, error)
	UpdateEntry(ctx context.Context, e TimeEntry) error
	// LinkEntry attaches an unlinked entry to a statement. It returns
	// ErrEntryLinked when the entry is already attached, so concurrent
	// assemblies cannot claim the same entry twice.
	LinkEntry(ctx context.Context, entryID, statementID string) error
	UnlinkEntry(ctx context.Context, entryID string) error
	// DeleteEntry physically removes an entry. Reserved for
	// never-submitted drafts; everything else is unlinked instead.
	DeleteEntry(ctx context.Context, entryID string) error

	// --- statements ---
	CreateStatement(ctx context.Context, s Statement) error
	Statement(ctx context.Context, id string) (*Statement, error)
	StatementsByOwner(ctx context.Context, ownerID string) ([]Statement, error)
	StatementsByDepartments(ctx context.Context, departmentIDs []string) ([]Statement, error)
	Statements(ctx context.Context) ([]Statement, error)

	// --- status ledger (append-only) ---
	AppendEntryStatus(ctx context.Context, e StatusLogEntry) error
	AppendStatementStatus(ctx context.Context, e StatusLogEntry) error
	EntryStatusLog(ctx context.Context, entryID string) ([]StatusLogEntry, error)
	StatementStatusLog(ctx context.Context, statementID string) ([]StatusLogEntry, error)

	// --- rates ---
	Rates(ctx context.Context, workerID, departmentID string) ([]RateRecord, error)
	OpenRate(ctx context.Context, workerID, departmentID string) (*RateRecord, error)
	OpenRatesByDepartment(ctx context.Context, departmentID string) ([]RateRecord, error)
	CloseRate(ctx context.Context, rateID string, validTo time.Time) error
	InsertRate(ctx context.Context, r RateRecord) error

	// --- surcharge rules ---
	// SurchargeRules returns rules newest-first by ValidFrom; the first
	// covering rule wins (deterministic tie-break for overlaps).
	SurchargeRules(ctx context.Context) ([]SurchargeRule, error)
	SurchargeRule(ctx context.Context, id string) (*SurchargeRule, error)
	SaveSurchargeRule(ctx context.Context, r SurchargeRule) error
	DeleteSurchargeRule(ctx context.Context, id string) error

	// --- quarters ---
	QuarterContaining(ctx context.Context, date time.Time) (*Quarter, error)
	Quarter(ctx context.Context, id string) (*Quarter, error)
	Quarters(ctx context.Context) ([]Quarter, error)
	SaveQuarter(ctx context.Context, q Quarter) error

	// --- audit log (append-only) ---
	AppendAudit(ctx context.Context, e AuditLogEntry) error
	AuditTrail(ctx context.Context, entryID string) ([]AuditLogEntry, error)

	// --- limits ---
	ActiveLimit(ctx context.Context, at time.Time) (*Limit, error)
	SaveLimit(ctx context.Context, l Limit) error
}

// TxStore is a Store that can run a closure atomically. The Store passed
// to fn sees and writes uncommitted state; returning an error rolls the
// whole transaction back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
