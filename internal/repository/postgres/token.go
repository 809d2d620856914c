package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
)

const tokenColumns = `
	id, doctor_id, patient_id, family_member_id, booking_date, time_slot,
	token_number, status, notes, diagnosis, fee, paid, cancellation_reason,
	consultation_started_at, consultation_ended_at, skipped_at, meeting_link,
	created_at, updated_at`

func (r *tokenRepository) Get(ctx context.Context, id uuid.UUID) (*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`

	var token model.Token
	err := r.db.GetContext(ctx, &token, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

func (r *tokenRepository) GetOwned(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1 AND doctor_id = $2`

	var token model.Token
	err := r.db.GetContext(ctx, &token, query, tokenID, doctorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

func (r *tokenRepository) Update(ctx context.Context, token *model.Token) error {
	query := `
		UPDATE tokens
		SET status = $1, notes = $2, diagnosis = $3, cancellation_reason = $4,
			consultation_started_at = $5, consultation_ended_at = $6,
			skipped_at = $7, meeting_link = $8, paid = $9, updated_at = $10
		WHERE id = $11
	`
	token.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		token.Status,
		token.Notes,
		token.Diagnosis,
		token.CancellationReason,
		token.ConsultationStartedAt,
		token.ConsultationEndedAt,
		token.SkippedAt,
		token.MeetingLink,
		token.Paid,
		token.UpdatedAt,
		token.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
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

func (r *tokenRepository) ListForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Token, error) {
	query := `SELECT ` + tokenColumns + `
		FROM tokens
		WHERE doctor_id = $1 AND booking_date = $2
		ORDER BY time_slot ASC, created_at ASC`

	var tokens []*model.Token
	err := r.db.SelectContext(ctx, &tokens, query, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

func (r *tokenRepository) ListActiveForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Token, error) {
	// Status participates in the sort so 'booked' outranks 'in_queue' on
	// equal slots; skipped tokens sink via skipped_at.
	query := `SELECT ` + tokenColumns + `
		FROM tokens
		WHERE doctor_id = $1 AND booking_date = $2
		AND status IN ('booked', 'in_queue')
		ORDER BY COALESCE(skipped_at, 'epoch'::timestamptz) ASC, status ASC, time_slot ASC, created_at ASC`

	var tokens []*model.Token
	err := r.db.SelectContext(ctx, &tokens, query, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	return tokens, nil
}

func (r *tokenRepository) BatchUpdateStatus(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID, status model.TokenStatus, notes string) (int64, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `
		UPDATE tokens
		SET status = $1,
			notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END,
			updated_at = $3
		WHERE doctor_id = $4
		AND id = ANY($5::uuid[])
		AND status IN ('booked', 'in_queue')
	`
	result, err := r.db.ExecContext(ctx, query, status, notes, time.Now(), doctorID, pq.Array(strIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to batch update tokens: %w", err)
	}

	modified, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return modified, nil
}

func (r *tokenRepository) CancelActiveForDay(ctx context.Context, doctorID uuid.UUID, date time.Time, status model.TokenStatus, reason string) ([]*model.Token, error) {
	query := `
		UPDATE tokens
		SET status = $1, cancellation_reason = $2, updated_at = $3
		WHERE doctor_id = $4 AND booking_date = $5
		AND status IN ('booked', 'in_queue')
		RETURNING ` + tokenColumns

	var affected []*model.Token
	err := r.db.SelectContext(ctx, &affected, query, status, reason, time.Now(), doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel active tokens: %w", err)
	}
	return affected, nil
}

func (r *tokenRepository) CountByStatus(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*model.StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'consulted') AS consulted,
			COUNT(*) FILTER (WHERE status IN ('cancelled', 'cancelled_by_hospital')) AS cancelled,
			COUNT(*) FILTER (WHERE status = 'missed') AS missed,
			COUNT(*) FILTER (WHERE status = 'referred') AS referred
		FROM tokens
		WHERE doctor_id = $1 AND booking_date >= $2 AND booking_date <= $3
	`
	var counts model.StatusCounts
	if err := r.db.GetContext(ctx, &counts, query, doctorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}
	return &counts, nil
}

func (r *tokenRepository) Totals(ctx context.Context, doctorID uuid.UUID) (*model.StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'consulted') AS consulted,
			COUNT(*) FILTER (WHERE status IN ('cancelled', 'cancelled_by_hospital')) AS cancelled,
			COUNT(*) FILTER (WHERE status = 'missed') AS missed,
			COUNT(*) FILTER (WHERE status = 'referred') AS referred
		FROM tokens
		WHERE doctor_id = $1
	`
	var counts model.StatusCounts
	if err := r.db.GetContext(ctx, &counts, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to total tokens: %w", err)
	}
	return &counts, nil
}

func (r *tokenRepository) SumRevenue(ctx context.Context, doctorID uuid.UUID) (float64, error) {
	query := `
		SELECT COALESCE(SUM(fee), 0)
		FROM tokens
		WHERE doctor_id = $1 AND status = 'consulted' AND paid = TRUE
	`
	var revenue float64
	if err := r.db.GetContext(ctx, &revenue, query, doctorID); err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return revenue, nil
}

func (r *tokenRepository) MarkMissedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE tokens
		SET status = 'missed', updated_at = $1
		WHERE booking_date < $2
		AND status IN ('booked', 'in_queue')
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale tokens missed: %w", err)
	}
	return result.RowsAffected()
}
