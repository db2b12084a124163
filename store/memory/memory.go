/*
memory.go - In-memory implementation of billing.TxStore

Backs the service tests and local experiments. WithTx runs the closure
against a deep copy of the state and swaps the copy in only on success,
so a mid-closure failure rolls everything back, matching the SQLite
store's transaction semantics.

The exported *Hook fields inject failures at specific write points to
exercise rollback paths.
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vereinswerk/billing-engine/billing"
)

type state struct {
	entries    map[string]billing.TimeEntry
	statements map[string]billing.Statement
	entryLog   []billing.StatusLogEntry
	stmtLog    []billing.StatusLogEntry
	rates      map[string]billing.RateRecord
	rules      map[string]billing.SurchargeRule
	quarters   map[string]billing.Quarter
	audit      []billing.AuditLogEntry
	limits     map[string]billing.Limit
	seq        int64
}

func newState() *state {
	return &state{
		entries:    map[string]billing.TimeEntry{},
		statements: map[string]billing.Statement{},
		rates:      map[string]billing.RateRecord{},
		rules:      map[string]billing.SurchargeRule{},
		quarters:   map[string]billing.Quarter{},
		limits:     map[string]billing.Limit{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.statements {
		c.statements[k] = v
	}
	for k, v := range s.rates {
		c.rates[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.quarters {
		c.quarters[k] = v
	}
	for k, v := range s.limits {
		c.limits[k] = v
	}
	c.entryLog = append([]billing.StatusLogEntry(nil), s.entryLog...)
	c.stmtLog = append([]billing.StatusLogEntry(nil), s.stmtLog...)
	c.audit = append([]billing.AuditLogEntry(nil), s.audit...)
	c.seq = s.seq
	return c
}

// Store is the in-memory billing.TxStore.
type Store struct {
	mu sync.RWMutex
	st *state

	// Fault injection for tests. A non-nil hook runs before the write
	// and its error aborts the surrounding transaction.
	AppendEntryStatusHook     func(billing.StatusLogEntry) error
	AppendStatementStatusHook func(billing.StatusLogEntry) error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

// WithTx clones the state, runs fn against the clone, and commits by
// swapping the clone in. Any error from fn discards the clone.
func (s *Store) WithTx(_ context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{
		st:                        s.st.clone(),
		AppendEntryStatusHook:     s.AppendEntryStatusHook,
		AppendStatementStatusHook: s.AppendStatementStatusHook,
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (s *Store) CreateEntry(_ context.Context, e billing.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.entries[e.ID] = e
	return nil
}

func (s *Store) Entry(_ context.Context, id string) (*billing.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.st.entries[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *Store) EntriesByIDs(_ context.Context, ids []string) ([]billing.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.TimeEntry
	for _, id := range ids {
		if e, ok := s.st.entries[id]; ok {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) EntriesByOwner(_ context.Context, ownerID string) ([]billing.TimeEntry, error) {
	return s.selectEntries(func(e billing.TimeEntry) bool { return e.OwnerID == ownerID })
}

func (s *Store) EntriesByStatement(_ context.Context, statementID string) ([]billing.TimeEntry, error) {
	return s.selectEntries(func(e billing.TimeEntry) bool { return e.StatementID == statementID })
}

func (s *Store) EntriesInRange(_ context.Context, from, to time.Time) ([]billing.TimeEntry, error) {
	return s.selectEntries(func(e billing.TimeEntry) bool {
		return !e.Date.Before(from) && !e.Date.After(to)
	})
}

func (s *Store) selectEntries(match func(billing.TimeEntry) bool) ([]billing.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.TimeEntry
	for _, e := range s.st.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) UpdateEntry(_ context.Context, e billing.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.entries[e.ID]; !ok {
		return nil
	}
	s.st.entries[e.ID] = e
	return nil
}

func (s *Store) LinkEntry(_ context.Context, entryID, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.entries[entryID]
	if !ok || e.StatementID != "" {
		return billing.ErrEntryLinked
	}
	e.StatementID = statementID
	s.st.entries[entryID] = e
	return nil
}

func (s *Store) UnlinkEntry(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.st.entries[entryID]; ok {
		e.StatementID = ""
		s.st.entries[entryID] = e
	}
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.entries, entryID)
	return nil
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (s *Store) CreateStatement(_ context.Context, st billing.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.statements[st.ID] = st
	return nil
}

func (s *Store) Statement(_ context.Context, id string) (*billing.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.st.statements[id]; ok {
		return &st, nil
	}
	return nil, nil
}

func (s *Store) StatementsByOwner(_ context.Context, ownerID string) ([]billing.Statement, error) {
	return s.selectStatements(func(st billing.Statement) bool { return st.OwnerID == ownerID })
}

func (s *Store) StatementsByDepartments(_ context.Context, departmentIDs []string) ([]billing.Statement, error) {
	set := make(map[string]struct{}, len(departmentIDs))
	for _, d := range departmentIDs {
		set[d] = struct{}{}
	}
	return s.selectStatements(func(st billing.Statement) bool {
		_, ok := set[st.DepartmentID]
		return ok
	})
}

func (s *Store) Statements(_ context.Context) ([]billing.Statement, error) {
	return s.selectStatements(func(billing.Statement) bool { return true })
}

func (s *Store) selectStatements(match func(billing.Statement) bool) ([]billing.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Statement
	for _, st := range s.st.statements {
		if match(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// STATUS LEDGER
// =============================================================================

func (s *Store) AppendEntryStatus(_ context.Context, e billing.StatusLogEntry) error {
	if s.AppendEntryStatusHook != nil {
		if err := s.AppendEntryStatusHook(e); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.seq++
	e.Seq = s.st.seq
	s.st.entryLog = append(s.st.entryLog, e)
	return nil
}

func (s *Store) AppendStatementStatus(_ context.Context, e billing.StatusLogEntry) error {
	if s.AppendStatementStatusHook != nil {
		if err := s.AppendStatementStatusHook(e); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.seq++
	e.Seq = s.st.seq
	s.st.stmtLog = append(s.st.stmtLog, e)
	return nil
}

func (s *Store) EntryStatusLog(_ context.Context, entryID string) ([]billing.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterLog(s.st.entryLog, entryID), nil
}

func (s *Store) StatementStatusLog(_ context.Context, statementID string) ([]billing.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterLog(s.st.stmtLog, statementID), nil
}

func filterLog(log []billing.StatusLogEntry, entityID string) []billing.StatusLogEntry {
	var out []billing.StatusLogEntry
	for _, e := range log {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// RATES
// =============================================================================

func (s *Store) Rates(_ context.Context, workerID, departmentID string) ([]billing.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.RateRecord
	for _, r := range s.st.rates {
		if r.WorkerID == workerID && r.DepartmentID == departmentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.After(out[j].ValidFrom) })
	return out, nil
}

func (s *Store) OpenRate(_ context.Context, workerID, departmentID string) (*billing.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.st.rates {
		if r.WorkerID == workerID && r.DepartmentID == departmentID && r.ValidTo == nil {
			rr := r
			return &rr, nil
		}
	}
	return nil, nil
}

func (s *Store) OpenRatesByDepartment(_ context.Context, departmentID string) ([]billing.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.RateRecord
	for _, r := range s.st.rates {
		if r.DepartmentID == departmentID && r.ValidTo == nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out, nil
}

func (s *Store) CloseRate(_ context.Context, rateID string, validTo time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.st.rates[rateID]; ok {
		to := validTo
		r.ValidTo = &to
		s.st.rates[rateID] = r
	}
	return nil
}

func (s *Store) InsertRate(_ context.Context, r billing.RateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rates[r.ID] = r
	return nil
}

// =============================================================================
// SURCHARGE RULES
// =============================================================================

func (s *Store) SurchargeRules(_ context.Context) ([]billing.SurchargeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.SurchargeRule
	for _, r := range s.st.rules {
		out = append(out, r)
	}
	// Newest validity first; creation time breaks exact ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ValidFrom.After(out[j].ValidFrom)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SurchargeRule(_ context.Context, id string) (*billing.SurchargeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.st.rules[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *Store) SaveSurchargeRule(_ context.Context, r billing.SurchargeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rules[r.ID] = r
	return nil
}

func (s *Store) DeleteSurchargeRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.rules, id)
	return nil
}

// =============================================================================
// QUARTERS
// =============================================================================

func (s *Store) QuarterContaining(_ context.Context, date time.Time) (*billing.Quarter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.st.quarters {
		if q.Contains(date) {
			qq := q
			return &qq, nil
		}
	}
	return nil, nil
}

func (s *Store) Quarter(_ context.Context, id string) (*billing.Quarter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.st.quarters[id]; ok {
		return &q, nil
	}
	return nil, nil
}

func (s *Store) Quarters(_ context.Context) ([]billing.Quarter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Quarter
	for _, q := range s.st.quarters {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) SaveQuarter(_ context.Context, q billing.Quarter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.quarters[q.ID] = q
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(_ context.Context, e billing.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.audit = append(s.st.audit, e)
	return nil
}

func (s *Store) AuditTrail(_ context.Context, entryID string) ([]billing.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.AuditLogEntry
	for _, e := range s.st.audit {
		if e.EntryID == entryID {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// LIMITS
// =============================================================================

func (s *Store) ActiveLimit(_ context.Context, at time.Time) (*billing.Limit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active *billing.Limit
	for _, l := range s.st.limits {
		if l.ValidFrom.After(at) {
			continue
		}
		if l.ValidTo != nil && l.ValidTo.Before(at) {
			continue
		}
		ll := l
		if active == nil || ll.ValidFrom.After(active.ValidFrom) {
			active = &ll
		}
	}
	return active, nil
}

func (s *Store) SaveLimit(_ context.Context, l billing.Limit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.limits[l.ID] = l
	return nil
}

func sortEntries(entries []billing.TimeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		if entries[i].Start.Seconds() != entries[j].Start.Seconds() {
			return entries[i].Start.Seconds() < entries[j].Start.Seconds()
		}
		return entries[i].ID < entries[j].ID
	})
}
