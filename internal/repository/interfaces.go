package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
)

// ErrNotFound is returned when a query matches no record. Service code maps
// it to a not-found response; it also covers ownership misses, so a token
// belonging to another doctor is indistinguishable from a missing one.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// TokenRepository owns the appointment/token rows. Tokens are never
	// deleted; terminal transitions are plain updates.
	TokenRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Token, error)
		GetOwned(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error)
		Update(ctx context.Context, token *model.Token) error
		ListForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Token, error)
		ListActiveForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Token, error)
		// BatchUpdateStatus applies one status to every listed token owned by
		// the doctor in a single statement and reports the matched count.
		BatchUpdateStatus(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID, status model.TokenStatus, notes string) (int64, error)
		// CancelActiveForDay transitions every active token for the
		// doctor/date to the given terminal status and returns the rows it
		// touched.
		CancelActiveForDay(ctx context.Context, doctorID uuid.UUID, date time.Time, status model.TokenStatus, reason string) ([]*model.Token, error)
		CountByStatus(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*model.StatusCounts, error)
		Totals(ctx context.Context, doctorID uuid.UUID) (*model.StatusCounts, error)
		SumRevenue(ctx context.Context, doctorID uuid.UUID) (float64, error)
		// MarkMissedBefore flips tokens still active on dates before cutoff
		// to missed. Used by the end-of-day sweep.
		MarkMissedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// ScheduleRepository owns the per-doctor, per-day schedule rows.
	// Uniqueness on (doctor_id, date) is the consistency backstop; writes
	// go through upsert-on-conflict.
	ScheduleRepository interface {
		Get(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.DoctorSchedule, error)
		Upsert(ctx context.Context, schedule *model.DoctorSchedule) error
		ListRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.DoctorSchedule, error)
		CountDays(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (working, leave int, err error)
	}

	LeaveRepository interface {
		Create(ctx context.Context, leave *model.LeaveRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.LeaveRequest, error)
		Update(ctx context.Context, leave *model.LeaveRequest) error
		List(ctx context.Context, filters *model.LeaveFilters) ([]*model.LeaveRequest, error)
		// FindOverlapping returns pending/approved requests for the doctor
		// whose closed [start_date, end_date] interval overlaps [start, end].
		FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.LeaveRequest, error)
	}

	// StatsRepository holds one denormalized row per doctor, replaced
	// wholesale on every recomputation.
	StatsRepository interface {
		Get(ctx context.Context, doctorID uuid.UUID) (*model.DoctorStats, error)
		Upsert(ctx context.Context, stats *model.DoctorStats) error
		ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	}

	ChangeRequestRepository interface {
		Create(ctx context.Context, req *model.ScheduleChangeRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.ScheduleChangeRequest, error)
		Update(ctx context.Context, req *model.ScheduleChangeRequest) error
		List(ctx context.Context, doctorID *uuid.UUID, status *model.ChangeRequestStatus) ([]*model.ScheduleChangeRequest, error)
		DeleteDecidedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
