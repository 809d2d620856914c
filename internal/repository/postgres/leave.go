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

const leaveColumns = `
	id, doctor_id, leave_type, start_date, end_date, session, reason, status,
	admin_comment, cancelled_at, created_at, updated_at`

func (r *leaveRepository) Create(ctx context.Context, leave *model.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (
			id, doctor_id, leave_type, start_date, end_date, session, reason,
			status, admin_comment, cancelled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if leave.ID == uuid.Nil {
		leave.ID = uuid.New()
	}
	leave.CreatedAt = time.Now()
	leave.UpdatedAt = leave.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		leave.ID,
		leave.DoctorID,
		leave.Type,
		leave.StartDate,
		leave.EndDate,
		leave.Session,
		leave.Reason,
		leave.Status,
		leave.AdminComment,
		leave.CancelledAt,
		leave.CreatedAt,
		leave.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

func (r *leaveRepository) Get(ctx context.Context, id uuid.UUID) (*model.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests WHERE id = $1`

	var leave model.LeaveRequest
	err := r.db.GetContext(ctx, &leave, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}
	return &leave, nil
}

func (r *leaveRepository) Update(ctx context.Context, leave *model.LeaveRequest) error {
	query := `
		UPDATE leave_requests
		SET status = $1, admin_comment = $2, cancelled_at = $3, updated_at = $4
		WHERE id = $5
	`
	leave.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		leave.Status,
		leave.AdminComment,
		leave.CancelledAt,
		leave.UpdatedAt,
		leave.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *leaveRepository) List(ctx context.Context, filters *model.LeaveFilters) ([]*model.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil && filters.DoctorID != nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, *filters.DoctorID)
		argCount++
	}

	if filters != nil && filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filters.Status)
		argCount++
	}

	query += " ORDER BY start_date DESC, created_at DESC"

	var leaves []*model.LeaveRequest
	err := r.db.SelectContext(ctx, &leaves, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests: %w", err)
	}
	return leaves, nil
}

// FindOverlapping uses closed-interval comparison: an existing row overlaps
// when existing.start <= new.end AND existing.end >= new.start.
func (r *leaveRepository) FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + `
		FROM leave_requests
		WHERE doctor_id = $1
		AND status IN ('pending', 'approved')
		AND start_date <= $2
		AND end_date >= $3
		ORDER BY start_date ASC`

	var leaves []*model.LeaveRequest
	err := r.db.SelectContext(ctx, &leaves, query, doctorID, end, start)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping leave: %w", err)
	}
	return leaves, nil
}
