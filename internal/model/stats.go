package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStatsValidity is the cache window applied when none is configured.
const DefaultStatsValidity = time.Hour

// DoctorStats is the denormalized per-doctor aggregate row. One row per
// doctor, overwritten wholesale on each recomputation; always reproducible
// from the token and schedule tables.
type DoctorStats struct {
	DoctorID uuid.UUID `db:"doctor_id" json:"doctor_id"`

	TodayTotal     int `db:"today_total" json:"today_total"`
	TodayConsulted int `db:"today_consulted" json:"today_consulted"`
	TodayCancelled int `db:"today_cancelled" json:"today_cancelled"`
	TodayMissed    int `db:"today_missed" json:"today_missed"`
	TodayReferred  int `db:"today_referred" json:"today_referred"`

	MonthTotal     int `db:"month_total" json:"month_total"`
	MonthConsulted int `db:"month_consulted" json:"month_consulted"`
	MonthCancelled int `db:"month_cancelled" json:"month_cancelled"`
	MonthMissed    int `db:"month_missed" json:"month_missed"`

	TotalAppointments int `db:"total_appointments" json:"total_appointments"`
	TotalConsulted    int `db:"total_consulted" json:"total_consulted"`

	Revenue float64 `db:"revenue" json:"revenue"`

	WorkingDaysThisMonth int `db:"working_days_this_month" json:"working_days_this_month"`
	LeaveDaysThisMonth   int `db:"leave_days_this_month" json:"leave_days_this_month"`

	LastCalculated time.Time `db:"last_calculated" json:"last_calculated"`
	CacheExpiresAt time.Time `db:"cache_expires_at" json:"cache_expires_at"`
}

// NeedsRefresh reports whether the cached row is past its validity window.
func (s *DoctorStats) NeedsRefresh(now time.Time) bool {
	return now.After(s.CacheExpiresAt)
}

// StatusCounts is the per-outcome breakdown returned by the token repository
// for a date window.
type StatusCounts struct {
	Total     int `db:"total"`
	Consulted int `db:"consulted"`
	Cancelled int `db:"cancelled"`
	Missed    int `db:"missed"`
	Referred  int `db:"referred"`
}
