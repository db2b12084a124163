/*
admin.go - Rate, surcharge, quarter and hour-limit administration

Rates are temporal records: updating a worker's rate never touches the
old record's amount, it closes the old validity window and opens a new
one, so historic statements keep pricing against the rate that was in
force. Surcharge rules and hour limits follow the same validity-window
shape.
*/
package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// RATES
// =============================================================================

// RateHistory returns a worker's rate records for one department, most
// recent validity first. Workers see their own history; approvers see
// their departments'.
func (s *Service) RateHistory(ctx context.Context, actor Actor, workerID, departmentID string) ([]RateRecord, error) {
	if actor.ID != workerID && !actor.Manages(departmentID) && !actor.Office {
		return nil, Authorizationf("no access to rates of worker %s", workerID)
	}
	rates, err := s.store.Rates(ctx, workerID, departmentID)
	if err != nil {
		return nil, Infra("load rates", err)
	}
	return rates, nil
}

// CurrentRates lists the open-ended rate records of one department.
func (s *Service) CurrentRates(ctx context.Context, actor Actor, departmentID string) ([]RateRecord, error) {
	if !actor.Manages(departmentID) && !actor.Office {
		return nil, Authorizationf("no access to rates of department %s", departmentID)
	}
	rates, err := s.store.OpenRatesByDepartment(ctx, departmentID)
	if err != nil {
		return nil, Infra("load rates", err)
	}
	return rates, nil
}

// UpdateRate rolls a worker's rate over: the currently open record is
// closed at the day before validFrom and a new open-ended record is
// inserted. validFrom must lie strictly after the open record's start,
// otherwise the windows would overlap or invert.
func (s *Service) UpdateRate(ctx context.Context, actor Actor, workerID, departmentID string, amount decimal.Decimal, validFrom time.Time) (*RateRecord, error) {
	if !actor.Manages(departmentID) && !actor.Office {
		return nil, Authorizationf("no access to rates of department %s", departmentID)
	}
	if amount.IsNegative() {
		return nil, Validationf("rate amount must not be negative")
	}
	validFrom = Day(validFrom)

	record := RateRecord{
		ID:           uuid.NewString(),
		WorkerID:     workerID,
		DepartmentID: departmentID,
		Amount:       amount,
		ValidFrom:    validFrom,
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		open, err := tx.OpenRate(ctx, workerID, departmentID)
		if err != nil {
			return err
		}
		if open != nil {
			if !validFrom.After(open.ValidFrom) {
				return Validationf("new rate must start after %s", open.ValidFrom.Format("2006-01-02"))
			}
			if err := tx.CloseRate(ctx, open.ID, validFrom.AddDate(0, 0, -1)); err != nil {
				return err
			}
		}
		return tx.InsertRate(ctx, record)
	})
	if err != nil {
		return nil, Infra("update rate", err)
	}

	s.log.Info("rate rolled over",
		zap.String("worker_id", workerID),
		zap.String("department_id", departmentID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Time("valid_from", validFrom),
	)
	return &record, nil
}

// =============================================================================
// SURCHARGE RULES
// =============================================================================

// SurchargeRuleInput carries the client-controlled fields of a rule.
type SurchargeRuleInput struct {
	Multiplier decimal.Decimal
	ValidFrom  time.Time
	ValidTo    *time.Time
}

func (in SurchargeRuleInput) validate() error {
	if in.Multiplier.LessThan(decimal.NewFromInt(1)) {
		return Validationf("surcharge multiplier must be at least 1.0")
	}
	if in.ValidFrom.IsZero() {
		return Validationf("valid_from is required")
	}
	if in.ValidTo != nil && in.ValidTo.Before(in.ValidFrom) {
		return Validationf("valid_to must not be before valid_from")
	}
	return nil
}

// Surcharges lists all surcharge rules, newest validity first.
func (s *Service) Surcharges(ctx context.Context, actor Actor) ([]SurchargeRule, error) {
	rules, err := s.store.SurchargeRules(ctx)
	if err != nil {
		return nil, Infra("load surcharge rules", err)
	}
	return rules, nil
}

// CreateSurcharge adds a holiday surcharge rule. Admin only.
func (s *Service) CreateSurcharge(ctx context.Context, actor Actor, in SurchargeRuleInput) (*SurchargeRule, error) {
	if !actor.Admin {
		return nil, Authorizationf("admin only")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	rule := SurchargeRule{
		ID:         uuid.NewString(),
		Multiplier: in.Multiplier,
		ValidFrom:  Day(in.ValidFrom),
		CreatedAt:  s.clock.Now(),
	}
	if in.ValidTo != nil {
		to := Day(*in.ValidTo)
		rule.ValidTo = &to
	}
	if err := s.store.SaveSurchargeRule(ctx, rule); err != nil {
		return nil, Infra("save surcharge rule", err)
	}
	return &rule, nil
}

// UpdateSurcharge replaces an existing rule's fields. Admin only.
func (s *Service) UpdateSurcharge(ctx context.Context, actor Actor, id string, in SurchargeRuleInput) (*SurchargeRule, error) {
	if !actor.Admin {
		return nil, Authorizationf("admin only")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	rule, err := s.store.SurchargeRule(ctx, id)
	if err != nil {
		return nil, Infra("load surcharge rule", err)
	}
	if rule == nil {
		return nil, fmt.Errorf("surcharge rule %s: %w", id, ErrNotFound)
	}
	rule.Multiplier = in.Multiplier
	rule.ValidFrom = Day(in.ValidFrom)
	rule.ValidTo = nil
	if in.ValidTo != nil {
		to := Day(*in.ValidTo)
		rule.ValidTo = &to
	}
	if err := s.store.SaveSurchargeRule(ctx, *rule); err != nil {
		return nil, Infra("save surcharge rule", err)
	}
	return rule, nil
}

// DeleteSurcharge removes a rule. Pricing of affected dates falls back
// to the plain rate from the next read on.
func (s *Service) DeleteSurcharge(ctx context.Context, actor Actor, id string) error {
	if !actor.Admin {
		return Authorizationf("admin only")
	}
	rule, err := s.store.SurchargeRule(ctx, id)
	if err != nil {
		return Infra("load surcharge rule", err)
	}
	if rule == nil {
		return fmt.Errorf("surcharge rule %s: %w", id, ErrNotFound)
	}
	return Infra("delete surcharge rule", s.store.DeleteSurchargeRule(ctx, id))
}

// =============================================================================
// QUARTERS
// =============================================================================

// Quarters lists the configured billing quarters.
func (s *Service) Quarters(ctx context.Context) ([]Quarter, error) {
	quarters, err := s.store.Quarters(ctx)
	if err != nil {
		return nil, Infra("load quarters", err)
	}
	return quarters, nil
}

// SaveQuarter creates or replaces a billing quarter. Admin only.
func (s *Service) SaveQuarter(ctx context.Context, actor Actor, q Quarter) (*Quarter, error) {
	if !actor.Admin {
		return nil, Authorizationf("admin only")
	}
	if q.Name == "" {
		return nil, Validationf("quarter name is required")
	}
	if !q.Start.Before(q.End) {
		return nil, Validationf("quarter end must be after its start")
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Start = Day(q.Start)
	q.End = Day(q.End)
	if err := s.store.SaveQuarter(ctx, q); err != nil {
		return nil, Infra("save quarter", err)
	}
	return &q, nil
}

// =============================================================================
// HOUR LIMITS
// =============================================================================

// LimitUsage is one worker's hours in the running quarter against the
// active limit.
type LimitUsage struct {
	WorkerID  string
	Hours     decimal.Decimal
	Limit     decimal.Decimal
	Remaining decimal.Decimal
}

// SetLimit records a new hour limit window. Admin or business office.
func (s *Service) SetLimit(ctx context.Context, actor Actor, l Limit) (*Limit, error) {
	if !actor.Admin && !actor.Office {
		return nil, Authorizationf("business office only")
	}
	if l.Value.IsNegative() {
		return nil, Validationf("limit must not be negative")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.ValidFrom = Day(l.ValidFrom)
	if l.ValidTo != nil {
		to := Day(*l.ValidTo)
		l.ValidTo = &to
	}
	if err := s.store.SaveLimit(ctx, l); err != nil {
		return nil, Infra("save limit", err)
	}
	return &l, nil
}

// LimitOverview sums each worker's hours in the running quarter against
// the active limit. Department heads see their departments' workers,
// the business office and admins see everyone.
func (s *Service) LimitOverview(ctx context.Context, actor Actor) ([]LimitUsage, error) {
	if !actor.IsDeptHead() && !actor.Office {
		return nil, Authorizationf("approvers only")
	}

	now := s.clock.Now()
	quarter, err := s.store.QuarterContaining(ctx, Day(now))
	if err != nil {
		return nil, Infra("resolve quarter", err)
	}
	if quarter == nil {
		return []LimitUsage{}, nil
	}

	limit, err := s.store.ActiveLimit(ctx, Day(now))
	if err != nil {
		return nil, Infra("load limit", err)
	}
	limitValue := decimal.Zero
	if limit != nil {
		limitValue = limit.Value
	}

	entries, err := s.store.EntriesInRange(ctx, quarter.Start, quarter.End)
	if err != nil {
		return nil, Infra("load entries", err)
	}

	hours := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if !actor.Office && !actor.Manages(e.DepartmentID) {
			continue
		}
		hours[e.OwnerID] = hours[e.OwnerID].Add(e.Duration)
	}

	workers := make([]string, 0, len(hours))
	for w := range hours {
		workers = append(workers, w)
	}
	sort.Strings(workers)

	overview := make([]LimitUsage, 0, len(workers))
	for _, w := range workers {
		overview = append(overview, LimitUsage{
			WorkerID:  w,
			Hours:     hours[w],
			Limit:     limitValue,
			Remaining: limitValue.Sub(hours[w]),
		})
	}
	return overview, nil
}
