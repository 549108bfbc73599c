/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Shifts:
    ShiftDTO, ImportShiftsRequest, ImportShiftsResponse

  Runs:
    RunRequest, RunResultDTO, ContractorResultDTO, BonusRunResultDTO

  Periods and bonuses:
    PeriodDTO, BonusDTO

  Placement:
    PlacementDTO, FeedbackRequest, CreditRequest

VALIDATION:
  Request types carry validator/v10 tags, checked by Handler.decode.
  Domain rules (negative hours, unknown roles) are checked by the payroll
  package so the CLI import and the API reject the same records.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// SHIFTS
// =============================================================================

// ShiftDTO is one shift as reported by the scheduling system.
type ShiftDTO struct {
	ID           string          `json:"id" validate:"required"`
	ContractorID string          `json:"contractor_id" validate:"required"`
	Role         string          `json:"role" validate:"required"`
	Date         string          `json:"date" validate:"required,datetime=2006-01-02"`
	Hours        decimal.Decimal `json:"hours"`
	Status       string          `json:"status" validate:"required,oneof=scheduled completed cancelled"`
	Institution  string          `json:"institution,omitempty"`
}

// ToShift converts the DTO and applies the payroll shift rules.
func (d ShiftDTO) ToShift() (payroll.WorkShift, error) {
	date, err := generic.ParseDate(d.Date)
	if err != nil {
		return payroll.WorkShift{}, fmt.Errorf("%w: shift %s: date %q", payroll.ErrInvalidShiftData, d.ID, d.Date)
	}
	s := payroll.WorkShift{
		ID:           d.ID,
		ContractorID: payroll.ContractorID(d.ContractorID),
		Role:         payroll.Role(d.Role),
		Date:         date,
		Hours:        d.Hours,
		Status:       payroll.ShiftStatus(d.Status),
		Institution:  d.Institution,
	}
	if err := payroll.ValidateShift(s); err != nil {
		return payroll.WorkShift{}, err
	}
	return s, nil
}

func toShiftDTO(s payroll.WorkShift) ShiftDTO {
	return ShiftDTO{
		ID:           s.ID,
		ContractorID: string(s.ContractorID),
		Role:         string(s.Role),
		Date:         s.Date.String(),
		Hours:        s.Hours,
		Status:       string(s.Status),
		Institution:  s.Institution,
	}
}

// ImportShiftsRequest is the shift feed payload. The CLI import-shifts
// command reads the same shape from a file.
type ImportShiftsRequest struct {
	Shifts []ShiftDTO `json:"shifts" validate:"required,min=1"`
}

// ImportShiftsResponse reports per-shift outcomes. A rejected shift doesn't
// stop the rest of the batch.
type ImportShiftsResponse struct {
	Saved    int               `json:"saved"`
	Rejected map[string]string `json:"rejected,omitempty"` // shift id -> reason
}

// =============================================================================
// RUNS
// =============================================================================

// RunRequest triggers a weekly run or bonus pass. AsOf defaults to today.
type RunRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type ContractorResultDTO struct {
	ContractorID string     `json:"contractor_id"`
	OK           bool       `json:"ok"`
	Stage        string     `json:"stage"`
	Existing     bool       `json:"existing,omitempty"`
	Period       *PeriodDTO `json:"period,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type RunResultDTO struct {
	AsOf      string                `json:"as_of"`
	WeekStart string                `json:"week_start"`
	WeekEnd   string                `json:"week_end"`
	Results   []ContractorResultDTO `json:"results"`
	Rejected  []string              `json:"rejected,omitempty"`
}

func toRunResultDTO(r payroll.RunResult) RunResultDTO {
	dto := RunResultDTO{
		AsOf:      r.AsOf.String(),
		WeekStart: r.Week.Start.String(),
		WeekEnd:   r.Week.End.String(),
		Results:   []ContractorResultDTO{},
	}
	groups := make(map[payroll.ContractorID][]payroll.WorkShift, len(r.Results))
	for c := range r.Results {
		groups[c] = nil
	}
	for _, c := range payroll.Contractors(groups) {
		res := r.Results[c]
		item := ContractorResultDTO{
			ContractorID: string(c),
			OK:           res.OK(),
			Stage:        string(res.Stage),
			Existing:     res.Existing,
		}
		if res.Period != nil {
			p := toPeriodDTO(*res.Period)
			item.Period = &p
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		dto.Results = append(dto.Results, item)
	}
	for _, err := range r.Rejected {
		dto.Rejected = append(dto.Rejected, err.Error())
	}
	return dto
}

type BonusRunResultDTO struct {
	WeekStart string            `json:"week_start"`
	Processed []BonusDTO        `json:"processed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

func toBonusRunResultDTO(r payroll.BonusRunResult) BonusRunResultDTO {
	dto := BonusRunResultDTO{
		WeekStart: r.Week.Start.String(),
		Processed: toBonusDTOs(r.Processed),
	}
	if len(r.Failures) > 0 {
		dto.Failures = make(map[string]string, len(r.Failures))
		for c, err := range r.Failures {
			dto.Failures[string(c)] = err.Error()
		}
	}
	return dto
}

// =============================================================================
// PERIODS AND BONUSES
// =============================================================================

// PeriodDTO is a pay period. Money is a fixed two-decimal string.
type PeriodDTO struct {
	ID           string     `json:"id"`
	ContractorID string     `json:"contractor_id"`
	WeekStart    string     `json:"week_start"`
	WeekEnd      string     `json:"week_end"`
	Status       string     `json:"status"`
	ShiftIDs     []string   `json:"shift_ids"`
	Bonuses      []BonusDTO `json:"bonuses"`
	Earnings     string     `json:"earnings"`
	BonusTotal   string     `json:"bonus_total"`
	Total        string     `json:"total"`
	AsOf         string     `json:"as_of"`
	CreatedAt    string     `json:"created_at"`
}

func toPeriodDTO(p payroll.PayPeriod) PeriodDTO {
	shiftIDs := p.ShiftIDs
	if shiftIDs == nil {
		shiftIDs = []string{}
	}
	return PeriodDTO{
		ID:           p.ID,
		ContractorID: string(p.ContractorID),
		WeekStart:    p.Start.String(),
		WeekEnd:      p.End.String(),
		Status:       string(p.Status),
		ShiftIDs:     shiftIDs,
		Bonuses:      toBonusDTOs(p.Bonuses),
		Earnings:     p.Earnings.String(),
		BonusTotal:   p.BonusTotal.String(),
		Total:        p.Total.String(),
		AsOf:         p.AsOf.String(),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func toPeriodDTOs(periods []payroll.PayPeriod) []PeriodDTO {
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	return dtos
}

type BonusDTO struct {
	ID           string `json:"id"`
	ContractorID string `json:"contractor_id"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	AwardedAt    string `json:"awarded_at"`
	Status       string `json:"status"`
	PeriodID     string `json:"period_id,omitempty"`
}

func toBonusDTOs(bonuses []payroll.Bonus) []BonusDTO {
	dtos := make([]BonusDTO, len(bonuses))
	for i, b := range bonuses {
		dtos[i] = BonusDTO{
			ID:           b.ID,
			ContractorID: string(b.ContractorID),
			Type:         string(b.Type),
			Amount:       b.Amount.String(),
			AwardedAt:    b.AwardedAt.String(),
			Status:       string(b.Status),
			PeriodID:     b.PeriodID,
		}
	}
	return dtos
}

// =============================================================================
// PLACEMENT AND ADMIN
// =============================================================================

type PlacementDTO struct {
	ContractorID       string   `json:"contractor_id"`
	TotalAssignments   int      `json:"total_assignments"`
	UniqueInstitutions []string `json:"unique_institutions"`
	Status             string   `json:"status"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
	BonusCounter       int      `json:"bonus_counter"`
}

func toPlacementDTO(p payroll.PlacementProgress, counter int) PlacementDTO {
	dto := PlacementDTO{
		ContractorID:       string(p.ContractorID),
		TotalAssignments:   p.TotalAssignments,
		UniqueInstitutions: p.Institutions(),
		Status:             string(p.Status),
		BonusCounter:       counter,
	}
	if !p.UpdatedAt.IsZero() {
		dto.UpdatedAt = p.UpdatedAt.String()
	}
	return dto
}

// FeedbackRequest records a contractor's average review score.
type FeedbackRequest struct {
	Score *float64 `json:"score" validate:"required,gte=0,lte=5"`
}

// CreditRequest credits completed assignments reported outside the shift feed.
type CreditRequest struct {
	Count int    `json:"count" validate:"required,gt=0"`
	AsOf  string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type AuditEntryDTO struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	ActorID   string            `json:"actor_id"`
	Action    string            `json:"action"`
	EntityID  string            `json:"entity_id"`
	Payload   map[string]string `json:"payload,omitempty"`
}

func toAuditDTOs(entries []generic.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			EntityID:  string(e.EntityID),
			Payload:   e.Payload,
		}
	}
	return dtos
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
