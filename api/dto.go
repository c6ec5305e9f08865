/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

ENVELOPE:
  Every response is wrapped in:
    {"status": "success"|"error", "message": ..., "code": ..., "data": ...}
  message and code appear on errors; data on success.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/timeclock/clock"
	"github.com/warp/timeclock/payroll"
	"github.com/warp/timeclock/track"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the uniform response wrapper.
type Envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// =============================================================================
// WORKERS
// =============================================================================

// WorkerDTO represents a worker in API responses.
type WorkerDTO struct {
	Username        string `json:"username"`
	Name            string `json:"name"`
	CumulativeHours string `json:"cumulative_hours"`
	CumulativeWage  string `json:"cumulative_wage"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateWorkerRequest is the request to create a worker.
type CreateWorkerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

func toWorkerDTO(w track.Worker) WorkerDTO {
	return WorkerDTO{
		Username:        w.Username,
		Name:            w.Name,
		CumulativeHours: w.CumulativeHours.StringFixed(2),
		CumulativeWage:  w.CumulativeWage.StringFixed(2),
		CreatedAt:       w.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a work segment in API responses.
type SessionDTO struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	CalendarDay  string  `json:"calendar_day"`
	StartedAt    string  `json:"started_at"`
	EndedAt      *string `json:"ended_at,omitempty"`
	AccruedHours string  `json:"accrued_hours"`
	Status       string  `json:"status"`
}

// StatusDTO is the reconstructed current-state view of a worker.
type StatusDTO struct {
	Username     string      `json:"username"`
	Status       string      `json:"status"`
	ElapsedHours string      `json:"elapsed_hours"`
	OpenSession  *SessionDTO `json:"open_session,omitempty"`
}

func toSessionDTO(s track.WorkSession) SessionDTO {
	dto := SessionDTO{
		ID:           s.ID,
		Username:     s.Username,
		CalendarDay:  s.CalendarDay.Format("2006-01-02"),
		StartedAt:    s.StartedAt.Format(time.RFC3339),
		AccruedHours: s.AccruedHours.StringFixed(2),
		Status:       string(s.Status),
	}
	if s.EndedAt != nil {
		ended := s.EndedAt.Format(time.RFC3339)
		dto.EndedAt = &ended
	}
	return dto
}

func toStatusDTO(st *clock.WorkerStatus) StatusDTO {
	dto := StatusDTO{
		Username:     st.Username,
		Status:       string(st.Status),
		ElapsedHours: st.ElapsedHours.StringFixed(2),
	}
	if st.Open != nil {
		open := toSessionDTO(*st.Open)
		dto.OpenSession = &open
	}
	return dto
}

// =============================================================================
// POLICY
// =============================================================================

// PolicyFieldDTO is one resolved policy value with its provenance.
type PolicyFieldDTO struct {
	Value  any    `json:"value"`
	Source string `json:"source"`
}

// EffectivePolicyDTO is the resolved policy with per-field provenance.
type EffectivePolicyDTO struct {
	HourlyRate       PolicyFieldDTO `json:"hourly_rate"`
	AutoPauseMinutes PolicyFieldDTO `json:"auto_pause_minutes"`
	AutoPauseEnabled PolicyFieldDTO `json:"auto_pause_enabled"`
}

// GlobalPolicyDTO is the raw global singleton.
type GlobalPolicyDTO struct {
	HourlyRate       string `json:"hourly_rate"`
	AutoPauseMinutes int    `json:"auto_pause_minutes"`
	AutoPauseEnabled bool   `json:"auto_pause_enabled"`
}

// PolicyPatchRequest is a partial policy update; absent fields inherit.
type PolicyPatchRequest struct {
	HourlyRate       *float64 `json:"hourly_rate,omitempty"`
	AutoPauseMinutes *int     `json:"auto_pause_minutes,omitempty"`
	AutoPauseEnabled *bool    `json:"auto_pause_enabled,omitempty"`
}

func toEffectivePolicyDTO(eff *track.EffectivePolicy) EffectivePolicyDTO {
	return EffectivePolicyDTO{
		HourlyRate:       PolicyFieldDTO{Value: eff.HourlyRate.StringFixed(2), Source: string(eff.HourlyRateSource)},
		AutoPauseMinutes: PolicyFieldDTO{Value: eff.AutoPauseMinutes, Source: string(eff.AutoPauseMinutesSource)},
		AutoPauseEnabled: PolicyFieldDTO{Value: eff.AutoPauseEnabled, Source: string(eff.AutoPauseEnabledSource)},
	}
}

func toGlobalPolicyDTO(g *track.GlobalPolicy) GlobalPolicyDTO {
	return GlobalPolicyDTO{
		HourlyRate:       g.HourlyRate.StringFixed(2),
		AutoPauseMinutes: g.AutoPauseMinutes,
		AutoPauseEnabled: g.AutoPauseEnabled,
	}
}

// =============================================================================
// PAYROLL
// =============================================================================

// PaymentDTO represents a salary payment in API responses.
type PaymentDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Amount   string `json:"amount"`
	Note     string `json:"note,omitempty"`
	PaidAt   string `json:"paid_at"`
}

// CreatePaymentRequest is the request to record a payment.
type CreatePaymentRequest struct {
	Amount float64 `json:"amount"`
	Note   string  `json:"note,omitempty"`
}

// RevisePaymentRequest is the request to revise a payment.
type RevisePaymentRequest struct {
	Amount *float64 `json:"amount,omitempty"`
	Note   *string  `json:"note,omitempty"`
}

// WorkerSummaryDTO is the per-worker payroll position.
type WorkerSummaryDTO struct {
	Username          string `json:"username"`
	HourlyRate        string `json:"hourly_rate"`
	HoursAccrued      string `json:"hours_accrued_all_time"`
	WageAccrued       string `json:"wage_accrued_all_time"`
	AmountPaid        string `json:"amount_paid_all_time"`
	AmountOutstanding string `json:"amount_outstanding"`
}

// AggregateSummaryDTO is the company-wide payroll position for a period.
type AggregateSummaryDTO struct {
	Period      string `json:"period"`
	Accrued     string `json:"accrued"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`
}

func toPaymentDTO(p track.SalaryPayment) PaymentDTO {
	return PaymentDTO{
		ID:       p.ID,
		Username: p.Username,
		Amount:   p.Amount.StringFixed(2),
		Note:     p.Note,
		PaidAt:   p.PaidAt.Format(time.RFC3339),
	}
}

func toWorkerSummaryDTO(s *payroll.WorkerSummary) WorkerSummaryDTO {
	return WorkerSummaryDTO{
		Username:          s.Username,
		HourlyRate:        s.HourlyRate.StringFixed(2),
		HoursAccrued:      s.HoursAccrued.StringFixed(2),
		WageAccrued:       s.WageAccrued.StringFixed(2),
		AmountPaid:        s.AmountPaid.StringFixed(2),
		AmountOutstanding: s.AmountOutstanding.StringFixed(2),
	}
}

func toAggregateSummaryDTO(s *payroll.AggregateSummary) AggregateSummaryDTO {
	return AggregateSummaryDTO{
		Period:      string(s.Period),
		Accrued:     s.Accrued.StringFixed(2),
		Paid:        s.Paid.StringFixed(2),
		Outstanding: s.Outstanding.StringFixed(2),
	}
}
