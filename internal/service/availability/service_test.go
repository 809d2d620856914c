package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	syncsvc "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	apperrors "github.com/jwalitptl/clinic-queue-api/pkg/errors"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("availability_service_test")

type scheduleKey struct {
	doctorID uuid.UUID
	day      string
}

type fakeScheduleRepo struct {
	rows map[scheduleKey]*model.DoctorSchedule
	gets int
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{rows: make(map[scheduleKey]*model.DoctorSchedule)}
}

func (r *fakeScheduleRepo) key(doctorID uuid.UUID, date time.Time) scheduleKey {
	return scheduleKey{doctorID: doctorID, day: date.Format("2006-01-02")}
}

func (r *fakeScheduleRepo) Get(_ context.Context, doctorID uuid.UUID, date time.Time) (*model.DoctorSchedule, error) {
	r.gets++
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

func (r *fakeScheduleRepo) ListRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.DoctorSchedule, error) {
	var out []*model.DoctorSchedule
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if row, ok := r.rows[r.key(doctorID, day)]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeScheduleRepo) CountDays(_ context.Context, doctorID uuid.UUID, from, to time.Time) (int, int, error) {
	working, leave := 0, 0
	for _, row := range r.rows {
		if row.DoctorID != doctorID {
			continue
		}
		if row.IsAvailable {
			working++
		} else {
			leave++
		}
	}
	return working, leave, nil
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

func (r *fakeTokenRepo) GetOwned(_ context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	t, ok := r.tokens[tokenID]
	if !ok || t.DoctorID != doctorID {
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

type fakeChangeRequestRepo struct {
	rows map[uuid.UUID]*model.ScheduleChangeRequest
}

func newFakeChangeRequestRepo() *fakeChangeRequestRepo {
	return &fakeChangeRequestRepo{rows: make(map[uuid.UUID]*model.ScheduleChangeRequest)}
}

func (r *fakeChangeRequestRepo) Create(_ context.Context, req *model.ScheduleChangeRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	cp := *req
	r.rows[req.ID] = &cp
	return nil
}

func (r *fakeChangeRequestRepo) Get(_ context.Context, id uuid.UUID) (*model.ScheduleChangeRequest, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeChangeRequestRepo) Update(_ context.Context, req *model.ScheduleChangeRequest) error {
	cp := *req
	r.rows[req.ID] = &cp
	return nil
}

func (r *fakeChangeRequestRepo) List(_ context.Context, doctorID *uuid.UUID, status *model.ChangeRequestStatus) ([]*model.ScheduleChangeRequest, error) {
	var out []*model.ScheduleChangeRequest
	for _, row := range r.rows {
		if doctorID != nil && row.DoctorID != *doctorID {
			continue
		}
		if status != nil && row.Status != *status {
			continue
		}
		out = append(out, row)
	}
	return out, nil
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

func newTestService(schedules *fakeScheduleRepo, tokens *fakeTokenRepo, requests *fakeChangeRequestRepo) *Service {
	logger := zerolog.Nop()
	broadcaster := syncsvc.NewBroadcaster(&fakeBroker{}, &logger, testMetrics)
	dispatcher := syncsvc.NewDispatcher(&logger, testMetrics)
	return NewService(schedules, tokens, requests, &fakeNotifSvc{}, broadcaster, dispatcher, time.Minute, testMetrics)
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

func TestResolveFailsClosed(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	got, err := svc.Resolve(context.Background(), uuid.New(), day("2026-03-02"))
	assert.NoError(t, err)
	assert.False(t, got.IsAvailable)
}

func TestResolveCachesAbsence(t *testing.T) {
	schedules := newFakeScheduleRepo()
	svc := newTestService(schedules, newFakeTokenRepo(), newFakeChangeRequestRepo())
	doctorID := uuid.New()

	_, err := svc.Resolve(context.Background(), doctorID, day("2026-03-02"))
	assert.NoError(t, err)
	_, err = svc.Resolve(context.Background(), doctorID, day("2026-03-02"))
	assert.NoError(t, err)
	assert.Equal(t, 1, schedules.gets)
}

func TestResolveMapsScheduleRow(t *testing.T) {
	schedules := newFakeScheduleRepo()
	doctorID := uuid.New()
	date := day("2026-03-02")
	_ = schedules.Upsert(context.Background(), &model.DoctorSchedule{
		DoctorID:     doctorID,
		Date:         date,
		IsAvailable:  true,
		WorkStart:    "10:00",
		WorkEnd:      "16:00",
		BreakStart:   "13:00",
		BreakEnd:     "14:00",
		SlotDuration: 20,
	})
	svc := newTestService(schedules, newFakeTokenRepo(), newFakeChangeRequestRepo())

	got, err := svc.Resolve(context.Background(), doctorID, date)
	assert.NoError(t, err)
	assert.True(t, got.IsAvailable)
	assert.Equal(t, model.TimeWindow{Start: "10:00", End: "16:00"}, got.WorkingHours)
	assert.Equal(t, 20, got.SlotDuration)
}

func TestSetAvailabilityUnavailableCascades(t *testing.T) {
	doctorID := uuid.New()
	date := day("2026-03-02")
	active1 := activeToken(doctorID, date, "09:30")
	active2 := activeToken(doctorID, date, "10:00")
	done := activeToken(doctorID, date, "09:00")
	done.Status = model.TokenStatusConsulted
	tokens := newFakeTokenRepo(active1, active2, done)
	svc := newTestService(newFakeScheduleRepo(), tokens, newFakeChangeRequestRepo())

	unavailable := false
	reason := "personal emergency"
	schedule, cancelled, err := svc.SetAvailability(context.Background(), doctorID, date, &model.SetScheduleRequest{
		IsAvailable: &unavailable,
		LeaveReason: &reason,
	})
	assert.NoError(t, err)
	assert.False(t, schedule.IsAvailable)
	assert.Equal(t, 2, cancelled)
	assert.Equal(t, model.TokenStatusCancelled, tokens.tokens[active1.ID].Status)
	assert.Equal(t, CancelReasonUnavailable, *tokens.tokens[active1.ID].CancellationReason)
	assert.Equal(t, model.TokenStatusConsulted, tokens.tokens[done.ID].Status)
}

func TestSetAvailabilityAvailableClearsLeaveReason(t *testing.T) {
	doctorID := uuid.New()
	date := day("2026-03-02")
	schedules := newFakeScheduleRepo()
	reason := "conference"
	_ = schedules.Upsert(context.Background(), &model.DoctorSchedule{
		DoctorID:    doctorID,
		Date:        date,
		IsAvailable: false,
		LeaveReason: &reason,
		WorkStart:   model.DefaultWorkStart,
		WorkEnd:     model.DefaultWorkEnd,
	})
	svc := newTestService(schedules, newFakeTokenRepo(), newFakeChangeRequestRepo())

	available := true
	schedule, cancelled, err := svc.SetAvailability(context.Background(), doctorID, date, &model.SetScheduleRequest{
		IsAvailable: &available,
	})
	assert.NoError(t, err)
	assert.True(t, schedule.IsAvailable)
	assert.Nil(t, schedule.LeaveReason)
	assert.Zero(t, cancelled)
}

func TestSetAvailabilityInvalidatesResolveCache(t *testing.T) {
	doctorID := uuid.New()
	date := day("2026-03-02")
	schedules := newFakeScheduleRepo()
	svc := newTestService(schedules, newFakeTokenRepo(), newFakeChangeRequestRepo())

	before, err := svc.Resolve(context.Background(), doctorID, date)
	assert.NoError(t, err)
	assert.False(t, before.IsAvailable)

	available := true
	_, _, err = svc.SetAvailability(context.Background(), doctorID, date, &model.SetScheduleRequest{
		IsAvailable: &available,
	})
	assert.NoError(t, err)

	after, err := svc.Resolve(context.Background(), doctorID, date)
	assert.NoError(t, err)
	assert.True(t, after.IsAvailable)
}

func TestSetAvailabilityRejectsBadTimeSlot(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	_, _, err := svc.SetAvailability(context.Background(), uuid.New(), day("2026-03-02"), &model.SetScheduleRequest{
		WorkStart: "25:00",
	})
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestBlockDayUsesHospitalStatus(t *testing.T) {
	doctorID := uuid.New()
	date := day("2026-03-02")
	tok := activeToken(doctorID, date, "11:00")
	tokens := newFakeTokenRepo(tok)
	svc := newTestService(newFakeScheduleRepo(), tokens, newFakeChangeRequestRepo())

	affected, err := svc.BlockDay(context.Background(), doctorID, date, "approved leave")
	assert.NoError(t, err)
	assert.Len(t, affected, 1)
	assert.Equal(t, tok.ID, affected[0].TokenID)
	assert.Equal(t, model.TokenStatusCancelledByHospital, tokens.tokens[tok.ID].Status)
}

func TestSetAvailabilityRange(t *testing.T) {
	doctorID := uuid.New()
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	available := true
	results, err := svc.SetAvailabilityRange(context.Background(), doctorID, day("2026-03-02"), day("2026-03-04"), &model.SetScheduleRequest{
		IsAvailable: &available,
	})
	assert.NoError(t, err)
	// the range is inclusive on both ends
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.Empty(t, r.Err)
	}
}

func TestSetAvailabilityRangeValidation(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	_, err := svc.SetAvailabilityRange(context.Background(), uuid.New(), day("2026-03-04"), day("2026-03-02"), &model.SetScheduleRequest{})
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	_, err = svc.SetAvailabilityRange(context.Background(), uuid.New(), day("2026-01-01"), day("2027-06-01"), &model.SetScheduleRequest{})
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestCascadeCancelRejectsNonCancelStatus(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	_, err := svc.CascadeCancel(context.Background(), uuid.New(), day("2026-03-02"), model.TokenStatusMissed, "nope")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestSubmitChangeRequestRequiresReason(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	_, err := svc.SubmitChangeRequest(context.Background(), uuid.New(), day("2026-03-02"), day("2026-03-03"), false, "")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestDecideChangeRequestApprove(t *testing.T) {
	doctorID := uuid.New()
	requests := newFakeChangeRequestRepo()
	schedules := newFakeScheduleRepo()
	tokens := newFakeTokenRepo(activeToken(doctorID, day("2026-03-02"), "10:00"))
	svc := newTestService(schedules, tokens, requests)

	req, err := svc.SubmitChangeRequest(context.Background(), doctorID, day("2026-03-02"), day("2026-03-03"), false, "family event")
	assert.NoError(t, err)
	assert.Equal(t, model.ChangeRequestPending, req.Status)

	adminID := uuid.New()
	decided, err := svc.DecideChangeRequest(context.Background(), adminID, req.ID, true, "ok")
	assert.NoError(t, err)
	assert.Equal(t, model.ChangeRequestApproved, decided.Status)
	assert.Equal(t, adminID, *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)

	// the approved change was applied through the schedule path
	row, err := schedules.Get(context.Background(), doctorID, day("2026-03-02"))
	assert.NoError(t, err)
	assert.False(t, row.IsAvailable)
	for _, tok := range tokens.tokens {
		assert.Equal(t, model.TokenStatusCancelled, tok.Status)
	}
}

func TestDecideChangeRequestTwice(t *testing.T) {
	doctorID := uuid.New()
	svc := newTestService(newFakeScheduleRepo(), newFakeTokenRepo(), newFakeChangeRequestRepo())

	req, err := svc.SubmitChangeRequest(context.Background(), doctorID, day("2026-03-02"), day("2026-03-02"), true, "back early")
	assert.NoError(t, err)

	_, err = svc.DecideChangeRequest(context.Background(), uuid.New(), req.ID, false, "")
	assert.NoError(t, err)

	_, err = svc.DecideChangeRequest(context.Background(), uuid.New(), req.ID, true, "")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2026, 3, 2, 18, 45, 12, 0, time.FixedZone("IST", 5*3600+1800))
	got := DateOnly(in)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), got)

	// a timestamp past UTC midnight in its own zone rolls to the UTC day
	late := time.Date(2026, 3, 2, 1, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), DateOnly(late))
}
