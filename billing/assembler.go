/*
assembler.go - Statement assembly

Assembly collects unbilled entries, resolves the billing quarter from
the earliest entry date, and produces one statement per department.
Everything commits in a single transaction: either every statement
exists and every entry is linked and Submitted(11), or none are.
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Assemble builds statements from the given entry IDs on behalf of the
// actor. Workers assemble their own entries; the business office and
// admins may assemble on behalf of a single other owner.
func (s *Service) Assemble(ctx context.Context, actor Actor, entryIDs []string) ([]Statement, error) {
	ids := dedupe(entryIDs)
	if len(ids) == 0 {
		return nil, Validationf("no entries selected")
	}

	entries, err := s.store.EntriesByIDs(ctx, ids)
	if err != nil {
		return nil, Infra("load entries", err)
	}
	// Any missing or already linked entry aborts the whole assembly.
	if len(entries) != len(ids) {
		return nil, Validationf("some selected entries do not exist")
	}

	owner := entries[0].OwnerID
	for _, e := range entries {
		if e.StatementID != "" {
			return nil, Validationf("entry %s is already part of a statement", e.ID)
		}
		if e.OwnerID != owner {
			return nil, Validationf("selected entries belong to more than one worker")
		}
	}
	if !actor.CanActFor(owner) {
		return nil, Authorizationf("cannot assemble statements for another worker")
	}

	first, last := entries[0].Date, entries[0].Date
	for _, e := range entries[1:] {
		if e.Date.Before(first) {
			first = e.Date
		}
		if e.Date.After(last) {
			last = e.Date
		}
	}

	quarter, err := s.store.QuarterContaining(ctx, first)
	if err != nil {
		return nil, Infra("resolve quarter", err)
	}
	if quarter == nil {
		return nil, Validationf("no billing quarter configured for %s", first.Format("2006-01-02"))
	}
	if last.After(quarter.End) {
		return nil, Validationf("selected entries span more than one quarter (%s)", quarter.Name)
	}

	byDept := make(map[string][]TimeEntry)
	for _, e := range entries {
		byDept[e.DepartmentID] = append(byDept[e.DepartmentID], e)
	}
	depts := make([]string, 0, len(byDept))
	for d := range byDept {
		depts = append(depts, d)
	}
	sort.Strings(depts)

	now := s.clock.Now()
	statements := make([]Statement, 0, len(depts))

	err = s.store.WithTx(ctx, func(tx Store) error {
		for _, dept := range depts {
			stmt := Statement{
				ID:           uuid.NewString(),
				QuarterID:    quarter.ID,
				DepartmentID: dept,
				OwnerID:      owner,
				CreatedAt:    now,
			}
			if err := tx.CreateStatement(ctx, stmt); err != nil {
				return err
			}
			if err := tx.AppendStatementStatus(ctx, StatusLogEntry{
				EntityID: stmt.ID,
				Status:   StatusCreated,
				ActorID:  actor.ID,
				At:       now,
				Comment:  fmt.Sprintf("statement created for %s", quarter.Name),
			}); err != nil {
				return err
			}
			for _, e := range byDept[dept] {
				// The conditional link is the race guard: if a concurrent
				// assembly claimed this entry after our precondition scan,
				// the whole transaction rolls back.
				if err := tx.LinkEntry(ctx, e.ID, stmt.ID); err != nil {
					if errors.Is(err, ErrEntryLinked) {
						return Validationf("entry %s is already part of a statement", e.ID)
					}
					return err
				}
				if err := tx.AppendEntryStatus(ctx, StatusLogEntry{
					EntityID: e.ID,
					Status:   StatusSubmitted,
					ActorID:  actor.ID,
					At:       now,
					Comment:  fmt.Sprintf("included in statement %s", stmt.ID),
				}); err != nil {
					return err
				}
			}
			statements = append(statements, stmt)
		}
		return nil
	})
	if err != nil {
		return nil, Infra("assemble statements", err)
	}

	for _, stmt := range statements {
		s.log.Info("statement assembled",
			zap.String("statement_id", stmt.ID),
			zap.String("quarter", quarter.Name),
			zap.String("department_id", stmt.DepartmentID),
		)
	}
	return statements, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
