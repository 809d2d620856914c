package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	"github.com/jwalitptl/clinic-queue-api/internal/service/notification"
	syncsvc "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	apperrors "github.com/jwalitptl/clinic-queue-api/pkg/errors"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

// CancelReasonUnavailable is stamped on every token a cascade touches.
const CancelReasonUnavailable = "Doctor unavailable"

// Service computes effective availability for (doctor, date) pairs and is
// the single enforcement point for the cascade invariant: a doctor cannot
// be marked unavailable while active bookings remain for that date.
type Service struct {
	schedules      repository.ScheduleRepository
	tokens         repository.TokenRepository
	changeRequests repository.ChangeRequestRepository
	notifSvc       notification.Service
	broadcaster    *syncsvc.Broadcaster
	dispatcher     *syncsvc.Dispatcher
	cache          *gocache.Cache
	metrics        *metrics.Metrics
}

func NewService(
	schedules repository.ScheduleRepository,
	tokens repository.TokenRepository,
	changeRequests repository.ChangeRequestRepository,
	notifSvc notification.Service,
	broadcaster *syncsvc.Broadcaster,
	dispatcher *syncsvc.Dispatcher,
	cacheTTL time.Duration,
	m *metrics.Metrics,
) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		schedules:      schedules,
		tokens:         tokens,
		changeRequests: changeRequests,
		notifSvc:       notifSvc,
		broadcaster:    broadcaster,
		dispatcher:     dispatcher,
		cache:          gocache.New(cacheTTL, 2*cacheTTL),
		metrics:        m,
	}
}

// Resolve returns the effective availability for a (doctor, date) pair.
// Absence of a schedule row means not available: the booking subsystem
// fails closed, never open.
func (s *Service) Resolve(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.Availability, error) {
	date = DateOnly(date)
	key := cacheKey(doctorID, date)

	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.Availability), nil
	}

	schedule, err := s.schedules.Get(ctx, doctorID, date)
	if errors.Is(err, repository.ErrNotFound) {
		availability := &model.Availability{
			DoctorID:    doctorID,
			Date:        date,
			IsAvailable: false,
		}
		s.cache.SetDefault(key, availability)
		return availability, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve availability: %w", err)
	}

	availability := &model.Availability{
		DoctorID:     doctorID,
		Date:         date,
		IsAvailable:  schedule.IsAvailable,
		WorkingHours: model.TimeWindow{Start: schedule.WorkStart, End: schedule.WorkEnd},
		BreakWindow:  model.TimeWindow{Start: schedule.BreakStart, End: schedule.BreakEnd},
		SlotDuration: schedule.SlotDuration,
		LeaveReason:  schedule.LeaveReason,
	}
	s.cache.SetDefault(key, availability)
	return availability, nil
}

// SetAvailability upserts the schedule row for one day. Marking the day
// unavailable cascades into the token queue before the result is returned,
// so the cancelled count is part of the committed mutation.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, req *model.SetScheduleRequest) (*model.DoctorSchedule, int, error) {
	schedule, affected, err := s.apply(ctx, doctorID, date, req, model.TokenStatusCancelled)
	if err != nil {
		return nil, 0, err
	}
	return schedule, len(affected), nil
}

// BlockDay marks one day unavailable on behalf of the clinic (leave
// approval). Its cascade uses the hospital-initiated status so patients
// can tell these cancellations apart from their own.
func (s *Service) BlockDay(ctx context.Context, doctorID uuid.UUID, date time.Time, reason string) ([]model.AffectedToken, error) {
	unavailable := false
	_, affected, err := s.apply(ctx, doctorID, date, &model.SetScheduleRequest{
		IsAvailable: &unavailable,
		LeaveReason: &reason,
	}, model.TokenStatusCancelledByHospital)
	return affected, err
}

func (s *Service) apply(ctx context.Context, doctorID uuid.UUID, date time.Time, req *model.SetScheduleRequest, cascadeStatus model.TokenStatus) (*model.DoctorSchedule, []model.AffectedToken, error) {
	date = DateOnly(date)

	schedule, err := s.buildSchedule(ctx, doctorID, date, req)
	if err != nil {
		return nil, nil, err
	}

	if err := s.schedules.Upsert(ctx, schedule); err != nil {
		return nil, nil, fmt.Errorf("failed to set availability: %w", err)
	}
	s.cache.Delete(cacheKey(doctorID, date))

	var affected []model.AffectedToken
	if !schedule.IsAvailable {
		affected, err = s.CascadeCancel(ctx, doctorID, date, cascadeStatus, CancelReasonUnavailable)
		if err != nil {
			return nil, nil, err
		}
	}

	s.dispatcher.Dispatch(syncsvc.Effect{
		Kind: "broadcast",
		Run: func(ctx context.Context) error {
			s.broadcaster.ScheduleChanged(ctx, doctorID, date, schedule.IsAvailable, schedule.LeaveReason)
			return nil
		},
	})

	return schedule, affected, nil
}

// SetAvailabilityRange applies the update day by day. Each day's cascade is
// independent; a failure on day N is recorded and does not roll back the
// days before it.
func (s *Service) SetAvailabilityRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time, req *model.SetScheduleRequest) ([]model.DayResult, error) {
	from, to = DateOnly(from), DateOnly(to)
	if to.Before(from) {
		return nil, apperrors.BadRequest("end date before start date", nil)
	}
	if to.Sub(from) > 366*24*time.Hour {
		return nil, apperrors.BadRequest("date range exceeds one year", nil)
	}

	var results []model.DayResult
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		_, cancelled, err := s.SetAvailability(ctx, doctorID, day, req)
		result := model.DayResult{Date: day, Cancelled: cancelled}
		if err != nil {
			result.Err = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

// CascadeCancel bulk-transitions every active token for the doctor/date to
// the given terminal status in one statement and returns the affected list.
// Patient notifications are dispatched here; broadcasting is the caller's
// concern because the event shape differs per path.
func (s *Service) CascadeCancel(ctx context.Context, doctorID uuid.UUID, date time.Time, status model.TokenStatus, reason string) ([]model.AffectedToken, error) {
	if status != model.TokenStatusCancelled && status != model.TokenStatusCancelledByHospital {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid cascade status %q", status), nil)
	}

	cancelled, err := s.tokens.CancelActiveForDay(ctx, doctorID, DateOnly(date), status, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to cascade cancel: %w", err)
	}

	s.metrics.CascadeRuns.Inc()
	s.metrics.CascadeCancelled.Add(float64(len(cancelled)))

	affected := make([]model.AffectedToken, 0, len(cancelled))
	effects := make([]syncsvc.Effect, 0, len(cancelled))
	for _, token := range cancelled {
		affected = append(affected, model.AffectedToken{
			TokenID:     token.ID,
			PatientID:   token.PatientID,
			BookingDate: token.BookingDate,
			TimeSlot:    token.TimeSlot,
			Reason:      reason,
		})

		tokenID := token.ID
		patientID := token.PatientID
		slot := token.TimeSlot
		effects = append(effects, syncsvc.Effect{
			Kind: "notification",
			Run: func(ctx context.Context) error {
				return s.notifSvc.Create(ctx, &model.Notification{
					RecipientID:   patientID,
					RecipientType: model.RecipientPatient,
					Title:         "Appointment cancelled",
					Message:       fmt.Sprintf("Your %s appointment was cancelled: %s.", slot, reason),
					Type:          "token_cancelled",
					Priority:      model.PriorityHigh,
					RelatedID:     &tokenID,
					RelatedType:   "token",
				})
			},
		})
	}
	s.dispatcher.Dispatch(effects...)

	return affected, nil
}

// GetSchedule returns the raw schedule row for one day.
func (s *Service) GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.DoctorSchedule, error) {
	schedule, err := s.schedules.Get(ctx, doctorID, DateOnly(date))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("schedule", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// ListSchedules returns the schedule rows in a date range.
func (s *Service) ListSchedules(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.DoctorSchedule, error) {
	return s.schedules.ListRange(ctx, doctorID, DateOnly(from), DateOnly(to))
}

// SubmitChangeRequest records an ad-hoc availability change for admin
// review. Requests are durable rows, not process memory.
func (s *Service) SubmitChangeRequest(ctx context.Context, doctorID uuid.UUID, start, end time.Time, available bool, reason string) (*model.ScheduleChangeRequest, error) {
	start, end = DateOnly(start), DateOnly(end)
	if end.Before(start) {
		return nil, apperrors.BadRequest("end date before start date", nil)
	}
	if reason == "" {
		return nil, apperrors.BadRequest("reason is required", nil)
	}

	req := &model.ScheduleChangeRequest{
		DoctorID:    doctorID,
		StartDate:   start,
		EndDate:     end,
		IsAvailable: available,
		Reason:      reason,
		Status:      model.ChangeRequestPending,
	}
	if err := s.changeRequests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to submit change request: %w", err)
	}
	return req, nil
}

func (s *Service) ListChangeRequests(ctx context.Context, doctorID *uuid.UUID, status *model.ChangeRequestStatus) ([]*model.ScheduleChangeRequest, error) {
	return s.changeRequests.List(ctx, doctorID, status)
}

// DecideChangeRequest approves or rejects a pending request. Approval
// applies the requested change through SetAvailabilityRange, so cascades
// and broadcasts follow the normal path.
func (s *Service) DecideChangeRequest(ctx context.Context, adminID, requestID uuid.UUID, approve bool, comment string) (*model.ScheduleChangeRequest, error) {
	req, err := s.changeRequests.Get(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("change request", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get change request: %w", err)
	}

	if req.Status != model.ChangeRequestPending {
		return nil, apperrors.Conflict(fmt.Sprintf("change request already %s", req.Status), nil)
	}

	now := time.Now()
	req.DecidedBy = &adminID
	req.DecidedAt = &now
	if comment != "" {
		req.AdminComment = &comment
	}

	if approve {
		req.Status = model.ChangeRequestApproved
		update := &model.SetScheduleRequest{
			IsAvailable: &req.IsAvailable,
		}
		if !req.IsAvailable {
			update.LeaveReason = &req.Reason
		}
		if _, err := s.SetAvailabilityRange(ctx, req.DoctorID, req.StartDate, req.EndDate, update); err != nil {
			return nil, err
		}
	} else {
		req.Status = model.ChangeRequestRejected
	}

	if err := s.changeRequests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to decide change request: %w", err)
	}
	return req, nil
}

// buildSchedule merges the request onto the existing row, or onto defaults
// when the day has never been scheduled.
func (s *Service) buildSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time, req *model.SetScheduleRequest) (*model.DoctorSchedule, error) {
	schedule, err := s.schedules.Get(ctx, doctorID, date)
	if errors.Is(err, repository.ErrNotFound) {
		schedule = &model.DoctorSchedule{
			DoctorID:        doctorID,
			Date:            date,
			IsAvailable:     true,
			WorkStart:       model.DefaultWorkStart,
			WorkEnd:         model.DefaultWorkEnd,
			BreakStart:      model.DefaultBreakStart,
			BreakEnd:        model.DefaultBreakEnd,
			SlotDuration:    model.DefaultSlotDuration,
			PatientsPerSlot: model.DefaultPatientsPerSlot,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	if req.IsAvailable != nil {
		schedule.IsAvailable = *req.IsAvailable
	}
	for _, w := range []struct {
		value  string
		target *string
	}{
		{req.WorkStart, &schedule.WorkStart},
		{req.WorkEnd, &schedule.WorkEnd},
		{req.BreakStart, &schedule.BreakStart},
		{req.BreakEnd, &schedule.BreakEnd},
	} {
		if w.value == "" {
			continue
		}
		if _, err := model.SlotMinutes(w.value); err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		*w.target = w.value
	}
	if req.SlotDuration > 0 {
		schedule.SlotDuration = req.SlotDuration
	}
	if req.PatientsPerSlot > 0 {
		schedule.PatientsPerSlot = req.PatientsPerSlot
	}
	if req.LeaveReason != nil {
		schedule.LeaveReason = req.LeaveReason
	}
	if schedule.IsAvailable {
		schedule.LeaveReason = nil
	}
	if req.Notes != "" {
		schedule.Notes = req.Notes
	}
	return schedule, nil
}

// DateOnly truncates a timestamp to its calendar day in UTC; schedule and
// token rows key on the day, never the time.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cacheKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + date.Format("2006-01-02")
}
