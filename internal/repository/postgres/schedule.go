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

const scheduleColumns = `
	id, doctor_id, date, is_available, work_start, work_end, break_start,
	break_end, slot_duration, patients_per_slot, leave_reason, notes,
	created_at, updated_at`

func (r *scheduleRepository) Get(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.DoctorSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM doctor_schedules WHERE doctor_id = $1 AND date = $2`

	var schedule model.DoctorSchedule
	err := r.db.GetContext(ctx, &schedule, query, doctorID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// Upsert relies on the (doctor_id, date) unique index; concurrent writers
// for the same day converge on a single row instead of racing inserts.
func (r *scheduleRepository) Upsert(ctx context.Context, schedule *model.DoctorSchedule) error {
	query := `
		INSERT INTO doctor_schedules (
			id, doctor_id, date, is_available, work_start, work_end,
			break_start, break_end, slot_duration, patients_per_slot,
			leave_reason, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (doctor_id, date) DO UPDATE SET
			is_available = EXCLUDED.is_available,
			work_start = EXCLUDED.work_start,
			work_end = EXCLUDED.work_end,
			break_start = EXCLUDED.break_start,
			break_end = EXCLUDED.break_end,
			slot_duration = EXCLUDED.slot_duration,
			patients_per_slot = EXCLUDED.patients_per_slot,
			leave_reason = EXCLUDED.leave_reason,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
	`
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.DoctorID,
		schedule.Date,
		schedule.IsAvailable,
		schedule.WorkStart,
		schedule.WorkEnd,
		schedule.BreakStart,
		schedule.BreakEnd,
		schedule.SlotDuration,
		schedule.PatientsPerSlot,
		schedule.LeaveReason,
		schedule.Notes,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) ListRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.DoctorSchedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM doctor_schedules
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`

	var schedules []*model.DoctorSchedule
	err := r.db.SelectContext(ctx, &schedules, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

func (r *scheduleRepository) CountDays(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_available) AS working,
			COUNT(*) FILTER (WHERE NOT is_available) AS leave
		FROM doctor_schedules
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3
	`
	var row struct {
		Working int `db:"working"`
		Leave   int `db:"leave"`
	}
	if err := r.db.GetContext(ctx, &row, query, doctorID, from, to); err != nil {
		return 0, 0, fmt.Errorf("failed to count schedule days: %w", err)
	}
	return row.Working, row.Leave, nil
}
