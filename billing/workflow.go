/*
workflow.go - Statement approval chain

Three parties move a statement through its lifecycle:

	worker          assembles               -> Created(20)
	department head approves                -> DeptHeadApproved(21)
	business office approves for payment    -> ReadyForPayment(22)
	business office confirms payout         -> Paid(23)

Rejection is possible from any non-terminal state and cascades to the
linked entries: each is marked Invalid(12) and unlinked so the worker
can correct and resubmit it. Every transition is an appended ledger
row; nothing is ever updated in place.
*/
package billing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const minRejectionReason = 5

// Approve records the department head's approval: Created(20) to
// DeptHeadApproved(21).
func (s *Service) Approve(ctx context.Context, actor Actor, statementID string) error {
	stmt, current, err := s.statementState(ctx, statementID)
	if err != nil {
		return err
	}
	if !actor.Manages(stmt.DepartmentID) {
		return Authorizationf("not a department head for department %s", stmt.DepartmentID)
	}
	if current != StatusCreated {
		return &StateError{Op: "approve statement", Current: current}
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := ensureStatementStatus(ctx, tx, "approve statement", statementID, StatusCreated); err != nil {
			return err
		}
		return tx.AppendStatementStatus(ctx, StatusLogEntry{
			EntityID: statementID,
			Status:   StatusDeptHeadApproved,
			ActorID:  actor.ID,
			At:       s.clock.Now(),
			Comment:  "approved by department head",
		})
	})
	if err != nil {
		return Infra("approve statement", err)
	}
	s.log.Info("statement approved",
		zap.String("statement_id", statementID),
		zap.String("actor_id", actor.ID),
	)
	return nil
}

// Reject terminates a statement with Rejected(24) and, in the same
// transaction, marks every linked entry Invalid(12) and unlinks it.
func (s *Service) Reject(ctx context.Context, actor Actor, statementID, reason string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) < minRejectionReason {
		return Validationf("a rejection reason of at least %d characters is required", minRejectionReason)
	}

	stmt, current, err := s.statementState(ctx, statementID)
	if err != nil {
		return err
	}
	if !actor.Manages(stmt.DepartmentID) && !actor.Office {
		return Authorizationf("not authorized to reject statements of department %s", stmt.DepartmentID)
	}
	if current.Terminal() {
		return &StateError{Op: "reject statement", Current: current}
	}

	now := s.clock.Now()
	var entries []TimeEntry
	err = s.store.WithTx(ctx, func(tx Store) error {
		log, err := tx.StatementStatusLog(ctx, statementID)
		if err != nil {
			return err
		}
		if current := CurrentStatusCode(log); current.Terminal() {
			return &StateError{Op: "reject statement", Current: current}
		}
		entries, err = tx.EntriesByStatement(ctx, statementID)
		if err != nil {
			return err
		}
		if err := tx.AppendStatementStatus(ctx, StatusLogEntry{
			EntityID: statementID,
			Status:   StatusRejected,
			ActorID:  actor.ID,
			At:       now,
			Comment:  "REJECTED: " + reason,
		}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := tx.AppendEntryStatus(ctx, StatusLogEntry{
				EntityID: e.ID,
				Status:   StatusInvalid,
				ActorID:  actor.ID,
				At:       now,
				Comment:  fmt.Sprintf("statement %s rejected", statementID),
			}); err != nil {
				return err
			}
			if err := tx.UnlinkEntry(ctx, e.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Infra("reject statement", err)
	}
	s.log.Info("statement rejected",
		zap.String("statement_id", statementID),
		zap.String("actor_id", actor.ID),
		zap.Int("entries_invalidated", len(entries)),
	)
	return nil
}

// Finalize advances a statement by one business-office step:
// DeptHeadApproved(21) to ReadyForPayment(22), or ReadyForPayment(22)
// to Paid(23). Any other current status is a state conflict.
func (s *Service) Finalize(ctx context.Context, actor Actor, statementID string) (Status, error) {
	if !actor.Office && !actor.Admin {
		return 0, Authorizationf("only the business office may finalize statements")
	}
	_, current, err := s.statementState(ctx, statementID)
	if err != nil {
		return 0, err
	}

	var next Status
	var comment string
	switch current {
	case StatusDeptHeadApproved:
		next, comment = StatusReadyForPayment, "approved for payment by business office"
	case StatusReadyForPayment:
		next, comment = StatusPaid, "payout completed"
	default:
		return 0, &StateError{Op: "finalize statement", Current: current}
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := ensureStatementStatus(ctx, tx, "finalize statement", statementID, current); err != nil {
			return err
		}
		return tx.AppendStatementStatus(ctx, StatusLogEntry{
			EntityID: statementID,
			Status:   next,
			ActorID:  actor.ID,
			At:       s.clock.Now(),
			Comment:  comment,
		})
	})
	if err != nil {
		return 0, Infra("finalize statement", err)
	}
	s.log.Info("statement finalized",
		zap.String("statement_id", statementID),
		zap.String("status", next.String()),
	)
	return next, nil
}

// FinalizeBulk marks every listed statement currently ReadyForPayment(22)
// as Paid(23) in one transaction and returns how many advanced.
// Statements in any other status are skipped, not failed.
func (s *Service) FinalizeBulk(ctx context.Context, actor Actor, statementIDs []string) (int, error) {
	if !actor.Office && !actor.Admin {
		return 0, Authorizationf("only the business office may finalize statements")
	}
	ids := dedupe(statementIDs)
	if len(ids) == 0 {
		return 0, Validationf("no statements selected")
	}

	for _, id := range ids {
		stmt, err := s.store.Statement(ctx, id)
		if err != nil {
			return 0, Infra("load statement", err)
		}
		if stmt == nil {
			return 0, fmt.Errorf("statement %s: %w", id, ErrNotFound)
		}
	}

	now := s.clock.Now()
	paid := 0
	err := s.store.WithTx(ctx, func(tx Store) error {
		// The payable set is decided inside the transaction. A statement
		// rejected by a concurrent request drops out here instead of
		// collecting a Paid row on top of a terminal one.
		paid = 0
		for _, id := range ids {
			log, err := tx.StatementStatusLog(ctx, id)
			if err != nil {
				return err
			}
			if CurrentStatusCode(log) != StatusReadyForPayment {
				continue
			}
			if err := tx.AppendStatementStatus(ctx, StatusLogEntry{
				EntityID: id,
				Status:   StatusPaid,
				ActorID:  actor.ID,
				At:       now,
				Comment:  "payout completed (bulk)",
			}); err != nil {
				return err
			}
			paid++
		}
		return nil
	})
	if err != nil {
		return 0, Infra("finalize statements", err)
	}
	s.log.Info("bulk payout recorded",
		zap.Int("requested", len(ids)),
		zap.Int("paid", paid),
	)
	return paid, nil
}

// ensureStatementStatus re-reads the ledger through the transaction and
// confirms the statement still sits at want. The pre-transaction check
// gives the caller a fast answer; this one makes the transition safe
// against a concurrent append between that check and the commit.
func ensureStatementStatus(ctx context.Context, tx Store, op, statementID string, want Status) error {
	log, err := tx.StatementStatusLog(ctx, statementID)
	if err != nil {
		return err
	}
	if current := CurrentStatusCode(log); current != want {
		return &StateError{Op: op, Current: current}
	}
	return nil
}

// statementState loads a statement together with its current status.
func (s *Service) statementState(ctx context.Context, id string) (*Statement, Status, error) {
	stmt, err := s.store.Statement(ctx, id)
	if err != nil {
		return nil, 0, Infra("load statement", err)
	}
	if stmt == nil {
		return nil, 0, fmt.Errorf("statement %s: %w", id, ErrNotFound)
	}
	log, err := s.store.StatementStatusLog(ctx, id)
	if err != nil {
		return nil, 0, Infra("load statement status", err)
	}
	return stmt, CurrentStatusCode(log), nil
}
