package leave

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	"github.com/jwalitptl/clinic-queue-api/internal/service/availability"
	syncsvc "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	apperrors "github.com/jwalitptl/clinic-queue-api/pkg/errors"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("leave_service_test")

type fakeLeaveRepo struct {
	rows map[uuid.UUID]*model.LeaveRequest
}

func newFakeLeaveRepo() *fakeLeaveRepo {
	return &fakeLeaveRepo{rows: make(map[uuid.UUID]*model.LeaveRequest)}
}

func (r *fakeLeaveRepo) Create(_ context.Context, leave *model.LeaveRequest) error {
	if leave.ID == uuid.Nil {
		leave.ID = uuid.New()
	}
	cp := *leave
	r.rows[leave.ID] = &cp
	return nil
}

func (r *fakeLeaveRepo) Get(_ context.Context, id uuid.UUID) (*model.LeaveRequest, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeLeaveRepo) Update(_ context.Context, leave *model.LeaveRequest) error {
	cp := *leave
	r.rows[leave.ID] = &cp
	return nil
}

func (r *fakeLeaveRepo) List(_ context.Context, filters *model.LeaveFilters) ([]*model.LeaveRequest, error) {
	var out []*model.LeaveRequest
	for _, row := range r.rows {
		if filters != nil && filters.DoctorID != nil && row.DoctorID != *filters.DoctorID {
			continue
		}
		if filters != nil && filters.Status != nil && row.Status != *filters.Status {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeLeaveRepo) FindOverlapping(_ context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.LeaveRequest, error) {
	var out []*model.LeaveRequest
	for _, row := range r.rows {
		if row.DoctorID != doctorID {
			continue
		}
		if row.Status != model.LeaveStatusPending && row.Status != model.LeaveStatusApproved {
			continue
		}
		if row.Overlaps(start, end) {
			out = append(out, row)
		}
	}
	return out, nil
}

type scheduleKey struct {
	doctorID uuid.UUID
	day      string
}

type fakeScheduleRepo struct {
	rows map[scheduleKey]*model.DoctorSchedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{rows: make(map[scheduleKey]*model.DoctorSchedule)}
}

func (r *fakeScheduleRepo) key(doctorID uuid.UUID, date time.Time) scheduleKey {
	return scheduleKey{doctorID: doctorID, day: date.Format("2006-01-02")}
}

func (r *fakeScheduleRepo) Get(_ context.Context, doctorID uuid.UUID, date time.Time) (*model.DoctorSchedule, error) {
	row, ok := r.rows[r.key(doctorID, date)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeScheduleRepo) Upsert(_ context.Context, schedule *model.DoctorSchedule) error {
	cp := *schedule
	r.rows[r.key(schedule.DoctorID, schedule.Date)] = &cp
	return nil
}

func (r *fakeScheduleRepo) ListRange(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.DoctorSchedule, error) {
	return nil, nil
}

func (r *fakeScheduleRepo) CountDays(_ context.Context, _ uuid.UUID, _, _ time.Time) (int, int, error) {
	return 0, 0, nil
}

type fakeTokenRepo struct {
	tokens map[uuid.UUID]*model.Token
}

func newFakeTokenRepo(tokens ...*model.Token) *fakeTokenRepo {
	r := &fakeTokenRepo{tokens: make(map[uuid.UUID]*model.Token)}
	for _, t := range tokens {
		r.tokens[t.ID] = t
	}
	return r
}

func (r *fakeTokenRepo) Get(_ context.Context, id uuid.UUID) (*model.Token, error) {
	t, ok := r.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r *fakeTokenRepo) GetOwned(_ context.Context, _, tokenID uuid.UUID) (*model.Token, error) {
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r *fakeTokenRepo) Update(_ context.Context, token *model.Token) error {
	r.tokens[token.ID] = token
	return nil
}

func (r *fakeTokenRepo) ListForDay(_ context.Context, _ uuid.UUID, _ time.Time) ([]*model.Token, error) {
	return nil, nil
}

func (r *fakeTokenRepo) ListActiveForDay(_ context.Context, _ uuid.UUID, _ time.Time) ([]*model.Token, error) {
	return nil, nil
}

func (r *fakeTokenRepo) BatchUpdateStatus(_ context.Context, _ uuid.UUID, ids []uuid.UUID, _ model.TokenStatus, _ string) (int64, error) {
	return int64(len(ids)), nil
}

func (r *fakeTokenRepo) CancelActiveForDay(_ context.Context, doctorID uuid.UUID, date time.Time, status model.TokenStatus, reason string) ([]*model.Token, error) {
	var out []*model.Token
	for _, t := range r.tokens {
		if t.DoctorID == doctorID && t.BookingDate.Equal(date) && t.Status.Active() {
			t.Status = status
			t.CancellationReason = &reason
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTokenRepo) CountByStatus(_ context.Context, _ uuid.UUID, _, _ time.Time) (*model.StatusCounts, error) {
	return &model.StatusCounts{}, nil
}

func (r *fakeTokenRepo) Totals(_ context.Context, _ uuid.UUID) (*model.StatusCounts, error) {
	return &model.StatusCounts{}, nil
}

func (r *fakeTokenRepo) SumRevenue(_ context.Context, _ uuid.UUID) (float64, error) { return 0, nil }

func (r *fakeTokenRepo) MarkMissedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeChangeRequestRepo struct{}

func (r *fakeChangeRequestRepo) Create(_ context.Context, req *model.ScheduleChangeRequest) error {
	return nil
}

func (r *fakeChangeRequestRepo) Get(_ context.Context, _ uuid.UUID) (*model.ScheduleChangeRequest, error) {
	return nil, repository.ErrNotFound
}

func (r *fakeChangeRequestRepo) Update(_ context.Context, _ *model.ScheduleChangeRequest) error {
	return nil
}

func (r *fakeChangeRequestRepo) List(_ context.Context, _ *uuid.UUID, _ *model.ChangeRequestStatus) ([]*model.ScheduleChangeRequest, error) {
	return nil, nil
}

func (r *fakeChangeRequestRepo) DeleteDecidedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct{}

func (b *fakeBroker) Publish(context.Context, string, interface{}) error { return nil }
func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}
func (b *fakeBroker) Close() error { return nil }

type fakeNotifSvc struct{}

func (s *fakeNotifSvc) Create(context.Context, *model.Notification) error { return nil }
func (s *fakeNotifSvc) ListForRecipient(context.Context, uuid.UUID, int) ([]*model.Notification, error) {
	return nil, nil
}
func (s *fakeNotifSvc) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func newTestService(leaves *fakeLeaveRepo, tokens *fakeTokenRepo) (*Service, *fakeScheduleRepo) {
	logger := zerolog.Nop()
	broadcaster := syncsvc.NewBroadcaster(&fakeBroker{}, &logger, testMetrics)
	dispatcher := syncsvc.NewDispatcher(&logger, testMetrics)
	schedules := newFakeScheduleRepo()
	availabilitySvc := availability.NewService(
		schedules, tokens, &fakeChangeRequestRepo{},
		&fakeNotifSvc{}, broadcaster, dispatcher, time.Minute, testMetrics)
	svc := NewService(leaves, availabilitySvc, &fakeNotifSvc{}, broadcaster, dispatcher, nil, nil)
	return svc, schedules
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func activeToken(doctorID uuid.UUID, date time.Time, slot string) *model.Token {
	return &model.Token{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PatientID:   uuid.New(),
		BookingDate: date,
		TimeSlot:    slot,
		Status:      model.TokenStatusBooked,
	}
}

func TestSubmitFullDay(t *testing.T) {
	svc, _ := newTestService(newFakeLeaveRepo(), newFakeTokenRepo())
	doctorID := uuid.New()

	leave, err := svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		EndDate:   "2026-04-08",
		Reason:    "conference",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.LeaveStatusPending, leave.Status)
	assert.Equal(t, day("2026-04-06"), leave.StartDate)
	assert.Equal(t, day("2026-04-08"), leave.EndDate)
	assert.Nil(t, leave.Session)
}

func TestSubmitDefaultsEndDate(t *testing.T) {
	svc, _ := newTestService(newFakeLeaveRepo(), newFakeTokenRepo())

	leave, err := svc.Submit(context.Background(), uuid.New(), &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		Reason:    "personal",
	})
	assert.NoError(t, err)
	assert.Equal(t, leave.StartDate, leave.EndDate)
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(newFakeLeaveRepo(), newFakeTokenRepo())
	doctorID := uuid.New()

	tests := []struct {
		name string
		req  *model.SubmitLeaveRequest
	}{
		{"bad start date", &model.SubmitLeaveRequest{Type: model.LeaveTypeFullDay, StartDate: "06/04/2026", Reason: "x"}},
		{"end before start", &model.SubmitLeaveRequest{Type: model.LeaveTypeFullDay, StartDate: "2026-04-08", EndDate: "2026-04-06", Reason: "x"}},
		{"half day without session", &model.SubmitLeaveRequest{Type: model.LeaveTypeHalfDay, StartDate: "2026-04-06", Reason: "x"}},
		{"half day over a range", &model.SubmitLeaveRequest{Type: model.LeaveTypeHalfDay, StartDate: "2026-04-06", EndDate: "2026-04-07", Session: model.LeaveSessionMorning, Reason: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), doctorID, tt.req)
			assert.Error(t, err)
			assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
		})
	}
}

func TestSubmitOverlapConflict(t *testing.T) {
	repo := newFakeLeaveRepo()
	svc, _ := newTestService(repo, newFakeTokenRepo())
	doctorID := uuid.New()

	_, err := svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		EndDate:   "2026-04-08",
		Reason:    "conference",
	})
	assert.NoError(t, err)

	// sharing a single boundary day counts as an overlap
	_, err = svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-08",
		EndDate:   "2026-04-10",
		Reason:    "family",
	})
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	// another doctor's overlap does not block
	_, err = svc.Submit(context.Background(), uuid.New(), &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-08",
		EndDate:   "2026-04-10",
		Reason:    "family",
	})
	assert.NoError(t, err)
}

func TestSubmitIgnoresDecidedOverlaps(t *testing.T) {
	repo := newFakeLeaveRepo()
	svc, _ := newTestService(repo, newFakeTokenRepo())
	doctorID := uuid.New()

	rejected := &model.LeaveRequest{
		DoctorID:  doctorID,
		Type:      model.LeaveTypeFullDay,
		StartDate: day("2026-04-06"),
		EndDate:   day("2026-04-08"),
		Status:    model.LeaveStatusRejected,
		Reason:    "old",
	}
	assert.NoError(t, repo.Create(context.Background(), rejected))

	_, err := svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-07",
		Reason:    "retry",
	})
	assert.NoError(t, err)
}

func TestCancelPendingOnly(t *testing.T) {
	repo := newFakeLeaveRepo()
	svc, _ := newTestService(repo, newFakeTokenRepo())
	doctorID := uuid.New()

	leave, err := svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		Reason:    "personal",
	})
	assert.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), doctorID, leave.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.LeaveStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Cancel(context.Background(), doctorID, leave.ID)
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestCancelCrossDoctorLooksMissing(t *testing.T) {
	repo := newFakeLeaveRepo()
	svc, _ := newTestService(repo, newFakeTokenRepo())

	leave, err := svc.Submit(context.Background(), uuid.New(), &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		Reason:    "personal",
	})
	assert.NoError(t, err)

	_, err = svc.Cancel(context.Background(), uuid.New(), leave.ID)
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestApproveCascadesRange(t *testing.T) {
	doctorID := uuid.New()
	day1 := activeToken(doctorID, day("2026-04-06"), "09:30")
	day2 := activeToken(doctorID, day("2026-04-07"), "10:00")
	day3 := activeToken(doctorID, day("2026-04-08"), "11:00")
	outside := activeToken(doctorID, day("2026-04-09"), "09:00")
	tokens := newFakeTokenRepo(day1, day2, day3, outside)
	repo := newFakeLeaveRepo()
	svc, schedules := newTestService(repo, tokens)

	leave, err := svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		EndDate:   "2026-04-08",
		Reason:    "medical",
	})
	assert.NoError(t, err)

	approved, affected, err := svc.Approve(context.Background(), leave.ID, "get well")
	assert.NoError(t, err)
	assert.Equal(t, model.LeaveStatusApproved, approved.Status)
	assert.Equal(t, "get well", *approved.AdminComment)
	assert.Len(t, affected, 3)

	for _, tok := range []*model.Token{day1, day2, day3} {
		assert.Equal(t, model.TokenStatusCancelledByHospital, tokens.tokens[tok.ID].Status)
	}
	// the day after the leave range is untouched
	assert.Equal(t, model.TokenStatusBooked, tokens.tokens[outside.ID].Status)

	// every leave day got an unavailable schedule row
	for _, d := range []string{"2026-04-06", "2026-04-07", "2026-04-08"} {
		row, err := schedules.Get(context.Background(), doctorID, day(d))
		assert.NoError(t, err)
		assert.False(t, row.IsAvailable)
		if assert.NotNil(t, row.LeaveReason) {
			assert.Equal(t, "medical", *row.LeaveReason)
		}
	}
}

func TestApproveNonPending(t *testing.T) {
	repo := newFakeLeaveRepo()
	svc, _ := newTestService(repo, newFakeTokenRepo())

	leave, err := svc.Submit(context.Background(), uuid.New(), &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		Reason:    "personal",
	})
	assert.NoError(t, err)

	_, err = svc.Reject(context.Background(), leave.ID, "coverage gap")
	assert.NoError(t, err)

	_, _, err = svc.Approve(context.Background(), leave.ID, "")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestRejectLeavesScheduleAlone(t *testing.T) {
	doctorID := uuid.New()
	tok := activeToken(doctorID, day("2026-04-06"), "09:30")
	tokens := newFakeTokenRepo(tok)
	repo := newFakeLeaveRepo()
	svc, schedules := newTestService(repo, tokens)

	leave, err := svc.Submit(context.Background(), doctorID, &model.SubmitLeaveRequest{
		Type:      model.LeaveTypeFullDay,
		StartDate: "2026-04-06",
		Reason:    "personal",
	})
	assert.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), leave.ID, "short staffed")
	assert.NoError(t, err)
	assert.Equal(t, model.LeaveStatusRejected, rejected.Status)

	assert.Equal(t, model.TokenStatusBooked, tokens.tokens[tok.ID].Status)
	_, err = schedules.Get(context.Background(), doctorID, day("2026-04-06"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
