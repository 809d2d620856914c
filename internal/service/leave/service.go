package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/email"
	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	"github.com/jwalitptl/clinic-queue-api/internal/service/availability"
	"github.com/jwalitptl/clinic-queue-api/internal/service/notification"
	syncsvc "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	apperrors "github.com/jwalitptl/clinic-queue-api/pkg/errors"
)

// DoctorDirectory resolves a doctor's contact address for leave decision
// mail. Kept narrow so the admin directory can live anywhere.
type DoctorDirectory interface {
	Email(ctx context.Context, doctorID uuid.UUID) (string, error)
}

// Service owns the leave ledger: submission with overlap rejection, and
// admin decisions that drive the availability cascade on approval.
type Service struct {
	repo         repository.LeaveRepository
	availability *availability.Service
	notifSvc     notification.Service
	broadcaster  *syncsvc.Broadcaster
	dispatcher   *syncsvc.Dispatcher
	email        email.Service
	directory    DoctorDirectory
}

func NewService(
	repo repository.LeaveRepository,
	availabilitySvc *availability.Service,
	notifSvc notification.Service,
	broadcaster *syncsvc.Broadcaster,
	dispatcher *syncsvc.Dispatcher,
	emailSvc email.Service,
	directory DoctorDirectory,
) *Service {
	return &Service{
		repo:         repo,
		availability: availabilitySvc,
		notifSvc:     notifSvc,
		broadcaster:  broadcaster,
		dispatcher:   dispatcher,
		email:        emailSvc,
		directory:    directory,
	}
}

// Submit validates and records a leave request. The overlap check treats
// both pending and approved requests as blocking; the ranges are closed
// intervals, so sharing a single day is an overlap.
func (s *Service) Submit(ctx context.Context, doctorID uuid.UUID, req *model.SubmitLeaveRequest) (*model.LeaveRequest, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, apperrors.BadRequest("invalid start_date", err)
	}
	end := start
	if req.EndDate != "" {
		end, err = parseDate(req.EndDate)
		if err != nil {
			return nil, apperrors.BadRequest("invalid end_date", err)
		}
	}
	if end.Before(start) {
		return nil, apperrors.BadRequest("end_date before start_date", nil)
	}

	leave := &model.LeaveRequest{
		DoctorID:  doctorID,
		Type:      req.Type,
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
		Status:    model.LeaveStatusPending,
	}
	if req.Type == model.LeaveTypeHalfDay {
		if req.Session == "" {
			return nil, apperrors.BadRequest("session is required for half-day leave", nil)
		}
		if !start.Equal(end) {
			return nil, apperrors.BadRequest("half-day leave must cover a single date", nil)
		}
		session := req.Session
		leave.Session = &session
	}

	overlapping, err := s.repo.FindOverlapping(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to check leave overlap: %w", err)
	}
	if len(overlapping) > 0 {
		existing := overlapping[0]
		return nil, apperrors.Conflict(fmt.Sprintf(
			"leave overlaps an existing %s request covering %s to %s",
			existing.Status,
			existing.StartDate.Format("2006-01-02"),
			existing.EndDate.Format("2006-01-02"),
		), nil)
	}

	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, fmt.Errorf("failed to create leave request: %w", err)
	}
	return leave, nil
}

// Cancel withdraws a pending request. Only the submitting doctor may
// cancel, and only while the request is still pending.
func (s *Service) Cancel(ctx context.Context, doctorID, leaveID uuid.UUID) (*model.LeaveRequest, error) {
	leave, err := s.getOwned(ctx, doctorID, leaveID)
	if err != nil {
		return nil, err
	}
	if leave.Status != model.LeaveStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot cancel a %s leave request", leave.Status), nil)
	}

	now := time.Now()
	leave.Status = model.LeaveStatusCancelled
	leave.CancelledAt = &now
	if err := s.repo.Update(ctx, leave); err != nil {
		return nil, fmt.Errorf("failed to cancel leave request: %w", err)
	}
	return leave, nil
}

// Approve marks the request approved, flips every day in its range to
// unavailable, and cascades the active tokens on those days. The cancelled
// tokens carry the hospital-initiated status so patients can distinguish
// them from self-cancellations.
func (s *Service) Approve(ctx context.Context, leaveID uuid.UUID, comment string) (*model.LeaveRequest, []model.AffectedToken, error) {
	leave, err := s.getPending(ctx, leaveID)
	if err != nil {
		return nil, nil, err
	}

	leave.Status = model.LeaveStatusApproved
	if comment != "" {
		leave.AdminComment = &comment
	}
	if err := s.repo.Update(ctx, leave); err != nil {
		return nil, nil, fmt.Errorf("failed to approve leave request: %w", err)
	}

	var affected []model.AffectedToken
	for day := leave.StartDate; !day.After(leave.EndDate); day = day.AddDate(0, 0, 1) {
		dayAffected, err := s.availability.BlockDay(ctx, leave.DoctorID, day, leave.Reason)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to block %s: %w", day.Format("2006-01-02"), err)
		}
		affected = append(affected, dayAffected...)
	}

	s.dispatcher.Dispatch(syncsvc.Effect{
		Kind: "broadcast",
		Run: func(ctx context.Context) error {
			s.broadcaster.LeaveDecided(ctx, leave, affected)
			return nil
		},
	})
	s.notifyDoctor(leave, true)

	return leave, affected, nil
}

// Reject closes the request without touching any schedule.
func (s *Service) Reject(ctx context.Context, leaveID uuid.UUID, comment string) (*model.LeaveRequest, error) {
	leave, err := s.getPending(ctx, leaveID)
	if err != nil {
		return nil, err
	}

	leave.Status = model.LeaveStatusRejected
	if comment != "" {
		leave.AdminComment = &comment
	}
	if err := s.repo.Update(ctx, leave); err != nil {
		return nil, fmt.Errorf("failed to reject leave request: %w", err)
	}

	s.dispatcher.Dispatch(syncsvc.Effect{
		Kind: "broadcast",
		Run: func(ctx context.Context) error {
			s.broadcaster.LeaveDecided(ctx, leave, nil)
			return nil
		},
	})
	s.notifyDoctor(leave, false)

	return leave, nil
}

func (s *Service) Get(ctx context.Context, leaveID uuid.UUID) (*model.LeaveRequest, error) {
	leave, err := s.repo.Get(ctx, leaveID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("leave request", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}
	return leave, nil
}

// GetOwned returns the doctor's own leave request.
func (s *Service) GetOwned(ctx context.Context, doctorID, leaveID uuid.UUID) (*model.LeaveRequest, error) {
	return s.getOwned(ctx, doctorID, leaveID)
}

func (s *Service) List(ctx context.Context, filters *model.LeaveFilters) ([]*model.LeaveRequest, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) getOwned(ctx context.Context, doctorID, leaveID uuid.UUID) (*model.LeaveRequest, error) {
	leave, err := s.Get(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if leave.DoctorID != doctorID {
		// Cross-doctor probes look identical to a missing row.
		return nil, apperrors.NotFound("leave request", nil)
	}
	return leave, nil
}

func (s *Service) getPending(ctx context.Context, leaveID uuid.UUID) (*model.LeaveRequest, error) {
	leave, err := s.Get(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if leave.Status != model.LeaveStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("leave request already %s", leave.Status), nil)
	}
	return leave, nil
}

// notifyDoctor mails the decision best-effort; a dead SMTP relay must
// never fail an approval.
func (s *Service) notifyDoctor(leave *model.LeaveRequest, approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	s.dispatcher.Dispatch(
		syncsvc.Effect{
			Kind: "notification",
			Run: func(ctx context.Context) error {
				leaveID := leave.ID
				return s.notifSvc.Create(ctx, &model.Notification{
					RecipientID:   leave.DoctorID,
					RecipientType: model.RecipientDoctor,
					Title:         fmt.Sprintf("Leave request %s", decision),
					Message: fmt.Sprintf("Your leave from %s to %s was %s.",
						leave.StartDate.Format("2006-01-02"), leave.EndDate.Format("2006-01-02"), decision),
					Type:        "leave_decided",
					Priority:    model.PriorityNormal,
					RelatedID:   &leaveID,
					RelatedType: "leave_request",
				})
			},
		},
		syncsvc.Effect{
			Kind: "email",
			Run: func(ctx context.Context) error {
				if s.email == nil || s.directory == nil {
					return nil
				}
				to, err := s.directory.Email(ctx, leave.DoctorID)
				if err != nil {
					return err
				}
				subject := fmt.Sprintf("Leave request %s", decision)
				body := fmt.Sprintf("<p>Your leave from <b>%s</b> to <b>%s</b> was <b>%s</b>.</p>",
					leave.StartDate.Format("2006-01-02"), leave.EndDate.Format("2006-01-02"), decision)
				return s.email.Send(ctx, to, subject, body)
			},
		},
	)
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	return t, nil
}
