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

const changeRequestColumns = `
	id, doctor_id, start_date, end_date, is_available, reason, status,
	admin_comment, decided_by, decided_at, created_at, updated_at`

func (r *changeRequestRepository) Create(ctx context.Context, req *model.ScheduleChangeRequest) error {
	query := `
		INSERT INTO schedule_change_requests (
			id, doctor_id, start_date, end_date, is_available, reason, status,
			admin_comment, decided_by, decided_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.DoctorID,
		req.StartDate,
		req.EndDate,
		req.IsAvailable,
		req.Reason,
		req.Status,
		req.AdminComment,
		req.DecidedBy,
		req.DecidedAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create change request: %w", err)
	}
	return nil
}

func (r *changeRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM schedule_change_requests WHERE id = $1`

	var req model.ScheduleChangeRequest
	err := r.db.GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get change request: %w", err)
	}
	return &req, nil
}

func (r *changeRequestRepository) Update(ctx context.Context, req *model.ScheduleChangeRequest) error {
	query := `
		UPDATE schedule_change_requests
		SET status = $1, admin_comment = $2, decided_by = $3, decided_at = $4, updated_at = $5
		WHERE id = $6
	`
	req.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		req.Status,
		req.AdminComment,
		req.DecidedBy,
		req.DecidedAt,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update change request: %w", err)
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

func (r *changeRequestRepository) List(ctx context.Context, doctorID *uuid.UUID, status *model.ChangeRequestStatus) ([]*model.ScheduleChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM schedule_change_requests`
	args := []interface{}{}
	where := ""

	if doctorID != nil {
		args = append(args, *doctorID)
		where = fmt.Sprintf(" WHERE doctor_id = $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		clause := fmt.Sprintf("status = $%d", len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	query += where

	query += " ORDER BY created_at DESC"

	var requests []*model.ScheduleChangeRequest
	err := r.db.SelectContext(ctx, &requests, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list change requests: %w", err)
	}
	return requests, nil
}

func (r *changeRequestRepository) DeleteDecidedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM schedule_change_requests
		WHERE status IN ('approved', 'rejected')
		AND decided_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge change requests: %w", err)
	}
	return result.RowsAffected()
}
