/*
views.go - Priced statement views

Statements store no amounts. Every read prices its entries live against
the rate records and surcharge rules valid at each entry date, so a rate
rollover or a new holiday rule is reflected immediately in historic and
pending views alike.
*/
package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StatementView is a fully priced read model of one statement.
type StatementView struct {
	Statement   Statement
	Quarter     *Quarter
	Status      Status
	StatusLog   []StatusLogEntry
	Entries     []PricedEntry
	TotalHours  decimal.Decimal
	TotalAmount decimal.Decimal
}

// StatementView prices a single statement for the actor.
func (s *Service) StatementView(ctx context.Context, actor Actor, statementID string) (*StatementView, error) {
	stmt, err := s.store.Statement(ctx, statementID)
	if err != nil {
		return nil, Infra("load statement", err)
	}
	if stmt == nil {
		return nil, fmt.Errorf("statement %s: %w", statementID, ErrNotFound)
	}
	if stmt.OwnerID != actor.ID && !actor.Office && !actor.Manages(stmt.DepartmentID) {
		return nil, Authorizationf("no access to statement %s", statementID)
	}

	rules, err := s.store.SurchargeRules(ctx)
	if err != nil {
		return nil, Infra("load surcharge rules", err)
	}
	return s.buildView(ctx, *stmt, rules)
}

// MyStatements lists the actor's own statements, priced, newest first.
func (s *Service) MyStatements(ctx context.Context, actor Actor) ([]StatementView, error) {
	stmts, err := s.store.StatementsByOwner(ctx, actor.ID)
	if err != nil {
		return nil, Infra("load statements", err)
	}
	return s.buildViews(ctx, stmts, nil)
}

// PendingForDeptHead lists the Created(20) statements of the actor's
// departments, awaiting first approval.
func (s *Service) PendingForDeptHead(ctx context.Context, actor Actor) ([]StatementView, error) {
	if !actor.IsDeptHead() {
		return nil, Authorizationf("not a department head")
	}
	stmts, err := s.departmentStatements(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.buildViews(ctx, stmts, func(st Status) bool { return st == StatusCreated })
}

// ApprovedForOffice lists the DeptHeadApproved(21) statements awaiting
// the business office's payment approval.
func (s *Service) ApprovedForOffice(ctx context.Context, actor Actor) ([]StatementView, error) {
	if !actor.Office && !actor.Admin {
		return nil, Authorizationf("business office only")
	}
	stmts, err := s.store.Statements(ctx)
	if err != nil {
		return nil, Infra("load statements", err)
	}
	return s.buildViews(ctx, stmts, func(st Status) bool { return st == StatusDeptHeadApproved })
}

// Payouts lists the ReadyForPayment(22) statements due for transfer.
func (s *Service) Payouts(ctx context.Context, actor Actor) ([]StatementView, error) {
	if !actor.Office && !actor.Admin {
		return nil, Authorizationf("business office only")
	}
	stmts, err := s.store.Statements(ctx)
	if err != nil {
		return nil, Infra("load statements", err)
	}
	return s.buildViews(ctx, stmts, func(st Status) bool { return st == StatusReadyForPayment })
}

// History lists past statements within the actor's visibility scope,
// optionally narrowed to one quarter by name.
func (s *Service) History(ctx context.Context, actor Actor, quarterName string) ([]StatementView, error) {
	var stmts []Statement
	var err error
	switch {
	case actor.Office || actor.Admin:
		stmts, err = s.store.Statements(ctx)
	case actor.IsDeptHead():
		stmts, err = s.departmentStatements(ctx, actor)
	default:
		stmts, err = s.store.StatementsByOwner(ctx, actor.ID)
	}
	if err != nil {
		return nil, Infra("load statements", err)
	}

	if quarterName != "" {
		filtered := stmts[:0]
		for _, st := range stmts {
			q, err := s.store.Quarter(ctx, st.QuarterID)
			if err != nil {
				return nil, Infra("load quarter", err)
			}
			if q != nil && q.Name == quarterName {
				filtered = append(filtered, st)
			}
		}
		stmts = filtered
	}
	return s.buildViews(ctx, stmts, func(st Status) bool { return st.Terminal() })
}

func (s *Service) departmentStatements(ctx context.Context, actor Actor) ([]Statement, error) {
	if actor.Admin {
		stmts, err := s.store.Statements(ctx)
		if err != nil {
			return nil, Infra("load statements", err)
		}
		return stmts, nil
	}
	stmts, err := s.store.StatementsByDepartments(ctx, actor.ManagedDepartments)
	if err != nil {
		return nil, Infra("load statements", err)
	}
	return stmts, nil
}

// buildViews prices a batch of statements, keeping only those whose
// current status passes the filter. Surcharge rules are loaded once for
// the whole batch.
func (s *Service) buildViews(ctx context.Context, stmts []Statement, keep func(Status) bool) ([]StatementView, error) {
	rules, err := s.store.SurchargeRules(ctx)
	if err != nil {
		return nil, Infra("load surcharge rules", err)
	}

	views := make([]StatementView, 0, len(stmts))
	for _, stmt := range stmts {
		view, err := s.buildView(ctx, stmt, rules)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(view.Status) {
			continue
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *Service) buildView(ctx context.Context, stmt Statement, rules []SurchargeRule) (*StatementView, error) {
	log, err := s.store.StatementStatusLog(ctx, stmt.ID)
	if err != nil {
		return nil, Infra("load statement status", err)
	}
	quarter, err := s.store.Quarter(ctx, stmt.QuarterID)
	if err != nil {
		return nil, Infra("load quarter", err)
	}
	entries, err := s.store.EntriesByStatement(ctx, stmt.ID)
	if err != nil {
		return nil, Infra("load statement entries", err)
	}
	rates, err := s.store.Rates(ctx, stmt.OwnerID, stmt.DepartmentID)
	if err != nil {
		return nil, Infra("load rates", err)
	}

	priced := PriceEntries(entries, rates, rules, s.calendar, s.jurisdiction)
	return &StatementView{
		Statement:   stmt,
		Quarter:     quarter,
		Status:      CurrentStatusCode(log),
		StatusLog:   log,
		Entries:     priced,
		TotalHours:  TotalHours(entries),
		TotalAmount: Total(priced),
	}, nil
}

// PriceEntry prices a single standalone entry at its own date, for the
// entry detail view.
func (s *Service) PriceEntry(ctx context.Context, actor Actor, id string) (*PricedEntry, error) {
	entry, err := s.Entry(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	rates, err := s.store.Rates(ctx, entry.OwnerID, entry.DepartmentID)
	if err != nil {
		return nil, Infra("load rates", err)
	}
	rules, err := s.store.SurchargeRules(ctx)
	if err != nil {
		return nil, Infra("load surcharge rules", err)
	}
	priced := PriceEntries([]TimeEntry{*entry}, rates, rules, s.calendar, s.jurisdiction)
	return &priced[0], nil
}
