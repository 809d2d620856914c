package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
)

func (r *statsRepository) Get(ctx context.Context, doctorID uuid.UUID) (*model.DoctorStats, error) {
	query := `
		SELECT doctor_id, today_total, today_consulted, today_cancelled,
			   today_missed, today_referred, month_total, month_consulted,
			   month_cancelled, month_missed, total_appointments,
			   total_consulted, revenue, working_days_this_month,
			   leave_days_this_month, last_calculated, cache_expires_at
		FROM doctor_stats
		WHERE doctor_id = $1
	`
	var stats model.DoctorStats
	err := r.db.GetContext(ctx, &stats, query, doctorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor stats: %w", err)
	}
	return &stats, nil
}

// Upsert replaces the whole row; there is no partial patching, so a lost
// race between concurrent refreshes still leaves a consistent record.
func (r *statsRepository) Upsert(ctx context.Context, stats *model.DoctorStats) error {
	query := `
		INSERT INTO doctor_stats (
			doctor_id, today_total, today_consulted, today_cancelled,
			today_missed, today_referred, month_total, month_consulted,
			month_cancelled, month_missed, total_appointments, total_consulted,
			revenue, working_days_this_month, leave_days_this_month,
			last_calculated, cache_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (doctor_id) DO UPDATE SET
			today_total = EXCLUDED.today_total,
			today_consulted = EXCLUDED.today_consulted,
			today_cancelled = EXCLUDED.today_cancelled,
			today_missed = EXCLUDED.today_missed,
			today_referred = EXCLUDED.today_referred,
			month_total = EXCLUDED.month_total,
			month_consulted = EXCLUDED.month_consulted,
			month_cancelled = EXCLUDED.month_cancelled,
			month_missed = EXCLUDED.month_missed,
			total_appointments = EXCLUDED.total_appointments,
			total_consulted = EXCLUDED.total_consulted,
			revenue = EXCLUDED.revenue,
			working_days_this_month = EXCLUDED.working_days_this_month,
			leave_days_this_month = EXCLUDED.leave_days_this_month,
			last_calculated = EXCLUDED.last_calculated,
			cache_expires_at = EXCLUDED.cache_expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		stats.DoctorID,
		stats.TodayTotal,
		stats.TodayConsulted,
		stats.TodayCancelled,
		stats.TodayMissed,
		stats.TodayReferred,
		stats.MonthTotal,
		stats.MonthConsulted,
		stats.MonthCancelled,
		stats.MonthMissed,
		stats.TotalAppointments,
		stats.TotalConsulted,
		stats.Revenue,
		stats.WorkingDaysThisMonth,
		stats.LeaveDaysThisMonth,
		stats.LastCalculated,
		stats.CacheExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert doctor stats: %w", err)
	}
	return nil
}

func (r *statsRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT doctor_id
		FROM doctor_stats
		WHERE cache_expires_at < $1
		ORDER BY cache_expires_at ASC
		LIMIT $2
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired stats: %w", err)
	}
	return ids, nil
}
