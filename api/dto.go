/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND HOURS:
  Decimal values travel as strings ("40.50"), never floats, so clients
  do not inherit binary rounding artifacts.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain model behind them
*/
package api

import (
	"time"

	"github.com/vereinswerk/billing-engine/billing"
)

// =============================================================================
// TIME ENTRIES
// =============================================================================

// EntryDTO represents a time entry in API responses.
type EntryDTO struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Duration     string `json:"duration"`
	DepartmentID string `json:"department_id"`
	OwnerID      string `json:"owner_id"`
	StatementID  string `json:"statement_id,omitempty"`
	Label        string `json:"label,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// PricedEntryDTO is an entry with its computed line amount.
type PricedEntryDTO struct {
	EntryDTO
	Rate       string `json:"rate"`
	Multiplier string `json:"multiplier"`
	IsHoliday  bool   `json:"is_holiday"`
	Amount     string `json:"amount"`
}

// EntryRequest is the body for creating or updating an entry.
type EntryRequest struct {
	Date         string `json:"date"`
	Start        string `json:"start"`
	End          string `json:"end"`
	DepartmentID string `json:"department_id"`
	Label        string `json:"label"`
	// Comment annotates the audit rows of an update; ignored on create.
	Comment string `json:"comment,omitempty"`
}

// =============================================================================
// STATEMENTS
// =============================================================================

// StatusLogDTO is one row of a status ledger.
type StatusLogDTO struct {
	Status     int    `json:"status"`
	StatusName string `json:"status_name"`
	ActorID    string `json:"actor_id"`
	At         string `json:"at"`
	Comment    string `json:"comment,omitempty"`
}

// AuditDTO is one field-level correction.
type AuditDTO struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	ActorID  string `json:"actor_id"`
	At       string `json:"at"`
	Comment  string `json:"comment,omitempty"`
}

// StatementDTO is a fully priced statement view.
type StatementDTO struct {
	ID           string           `json:"id"`
	QuarterID    string           `json:"quarter_id"`
	QuarterName  string           `json:"quarter_name,omitempty"`
	DepartmentID string           `json:"department_id"`
	OwnerID      string           `json:"owner_id"`
	Status       int              `json:"status"`
	StatusName   string           `json:"status_name"`
	CreatedAt    string           `json:"created_at"`
	Entries      []PricedEntryDTO `json:"entries"`
	TotalHours   string           `json:"total_hours"`
	TotalAmount  string           `json:"total_amount"`
	History      []StatusLogDTO   `json:"history"`
}

// AssembleRequest is the body for assembling statements from entries.
type AssembleRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// FinalizeResponse reports the status a finalize call advanced to.
type FinalizeResponse struct {
	Status     int    `json:"status"`
	StatusName string `json:"status_name"`
}

// BulkFinalizeRequest lists statements for batch payout.
type BulkFinalizeRequest struct {
	StatementIDs []string `json:"statement_ids"`
}

// BulkFinalizeResponse reports how many statements advanced to Paid.
type BulkFinalizeResponse struct {
	Finalized int `json:"finalized"`
}

// =============================================================================
// RATES / SURCHARGES / QUARTERS / LIMITS
// =============================================================================

// RateDTO represents a temporal rate record.
type RateDTO struct {
	ID           string `json:"id"`
	WorkerID     string `json:"worker_id"`
	DepartmentID string `json:"department_id"`
	Amount       string `json:"amount"`
	ValidFrom    string `json:"valid_from"`
	ValidTo      string `json:"valid_to,omitempty"`
}

// UpdateRateRequest triggers a rate rollover.
type UpdateRateRequest struct {
	WorkerID     string `json:"worker_id"`
	DepartmentID string `json:"department_id"`
	Amount       string `json:"amount"`
	ValidFrom    string `json:"valid_from"`
}

// SurchargeDTO represents a holiday surcharge rule.
type SurchargeDTO struct {
	ID         string `json:"id"`
	Multiplier string `json:"multiplier"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// SurchargeRequest is the body for creating or updating a rule.
type SurchargeRequest struct {
	Multiplier string `json:"multiplier"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to,omitempty"`
}

// QuarterDTO represents a billing quarter.
type QuarterDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// QuarterRequest is the admin payload to create or replace a quarter.
type QuarterRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// LimitRequest is the payload to record a new hour limit window.
type LimitRequest struct {
	Value     string `json:"value"`
	ValidFrom string `json:"valid_from"`
	ValidTo   string `json:"valid_to,omitempty"`
}

// LimitUsageDTO is one worker's hours against the active limit.
type LimitUsageDTO struct {
	WorkerID  string `json:"worker_id"`
	Hours     string `json:"hours"`
	Limit     string `json:"limit"`
	Remaining string `json:"remaining"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toEntryDTO(e billing.TimeEntry) EntryDTO {
	return EntryDTO{
		ID:           e.ID,
		Date:         e.Date.Format("2006-01-02"),
		Start:        e.Start.String(),
		End:          e.End.String(),
		Duration:     e.Duration.Round(2).String(),
		DepartmentID: e.DepartmentID,
		OwnerID:      e.OwnerID,
		StatementID:  e.StatementID,
		Label:        e.Label,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []billing.TimeEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toPricedEntryDTO(p billing.PricedEntry) PricedEntryDTO {
	return PricedEntryDTO{
		EntryDTO:   toEntryDTO(p.Entry),
		Rate:       p.Rate.StringFixed(2),
		Multiplier: p.Multiplier.String(),
		IsHoliday:  p.IsHoliday,
		Amount:     p.Amount.StringFixed(2),
	}
}

func toStatusLogDTOs(log []billing.StatusLogEntry) []StatusLogDTO {
	dtos := make([]StatusLogDTO, len(log))
	for i, e := range log {
		dtos[i] = StatusLogDTO{
			Status:     int(e.Status),
			StatusName: e.Status.String(),
			ActorID:    e.ActorID,
			At:         e.At.Format(time.RFC3339),
			Comment:    e.Comment,
		}
	}
	return dtos
}

func toAuditDTOs(trail []billing.AuditLogEntry) []AuditDTO {
	dtos := make([]AuditDTO, len(trail))
	for i, e := range trail {
		dtos[i] = AuditDTO{
			Field:    e.Field,
			OldValue: e.OldValue,
			NewValue: e.NewValue,
			ActorID:  e.ActorID,
			At:       e.At.Format(time.RFC3339),
			Comment:  e.Comment,
		}
	}
	return dtos
}

func toStatementDTO(v billing.StatementView) StatementDTO {
	entries := make([]PricedEntryDTO, len(v.Entries))
	for i, p := range v.Entries {
		entries[i] = toPricedEntryDTO(p)
	}
	dto := StatementDTO{
		ID:           v.Statement.ID,
		QuarterID:    v.Statement.QuarterID,
		DepartmentID: v.Statement.DepartmentID,
		OwnerID:      v.Statement.OwnerID,
		Status:       int(v.Status),
		StatusName:   v.Status.String(),
		CreatedAt:    v.Statement.CreatedAt.Format(time.RFC3339),
		Entries:      entries,
		TotalHours:   v.TotalHours.String(),
		TotalAmount:  v.TotalAmount.StringFixed(2),
		History:      toStatusLogDTOs(v.StatusLog),
	}
	if v.Quarter != nil {
		dto.QuarterName = v.Quarter.Name
	}
	return dto
}

func toStatementDTOs(views []billing.StatementView) []StatementDTO {
	dtos := make([]StatementDTO, len(views))
	for i, v := range views {
		dtos[i] = toStatementDTO(v)
	}
	return dtos
}

func toRateDTO(r billing.RateRecord) RateDTO {
	dto := RateDTO{
		ID:           r.ID,
		WorkerID:     r.WorkerID,
		DepartmentID: r.DepartmentID,
		Amount:       r.Amount.StringFixed(2),
		ValidFrom:    r.ValidFrom.Format("2006-01-02"),
	}
	if r.ValidTo != nil {
		dto.ValidTo = r.ValidTo.Format("2006-01-02")
	}
	return dto
}

func toRateDTOs(rates []billing.RateRecord) []RateDTO {
	dtos := make([]RateDTO, len(rates))
	for i, r := range rates {
		dtos[i] = toRateDTO(r)
	}
	return dtos
}

func toSurchargeDTO(r billing.SurchargeRule) SurchargeDTO {
	dto := SurchargeDTO{
		ID:         r.ID,
		Multiplier: r.Multiplier.String(),
		ValidFrom:  r.ValidFrom.Format("2006-01-02"),
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
	if r.ValidTo != nil {
		dto.ValidTo = r.ValidTo.Format("2006-01-02")
	}
	return dto
}
