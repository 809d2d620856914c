package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	"github.com/jwalitptl/clinic-queue-api/internal/service/notification"
	syncsvc "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	apperrors "github.com/jwalitptl/clinic-queue-api/pkg/errors"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

// Service drives the token lifecycle. Every operation checks doctor
// ownership first, applies exactly one validated transition, and reports
// the committed result before side effects are dispatched.
type Service struct {
	repo        repository.TokenRepository
	notifSvc    notification.Service
	broadcaster *syncsvc.Broadcaster
	dispatcher  *syncsvc.Dispatcher
	metrics     *metrics.Metrics
}

func NewService(
	repo repository.TokenRepository,
	notifSvc notification.Service,
	broadcaster *syncsvc.Broadcaster,
	dispatcher *syncsvc.Dispatcher,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:        repo,
		notifSvc:    notifSvc,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		metrics:     m,
	}
}

// Get returns an owned token.
func (s *Service) Get(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	return s.getOwned(ctx, doctorID, tokenID)
}

// StartConsultation moves an owned token to in_queue and stamps the start
// time.
func (s *Service) StartConsultation(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(token, model.TokenStatusInQueue); err != nil {
		return nil, err
	}
	now := time.Now()
	token.ConsultationStartedAt = &now

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to start consultation: %w", err)
	}

	s.afterTransition(token, "Consultation started", "Your consultation has started. Please proceed to the doctor's room.")
	return token, nil
}

// CompleteConsultation moves an owned token to consulted. Re-completing an
// already terminal token is rejected; the transition table has no edge out
// of a terminal state.
func (s *Service) CompleteConsultation(ctx context.Context, doctorID, tokenID uuid.UUID, req *model.CompleteConsultationRequest) (*model.Token, error) {
	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(token, model.TokenStatusConsulted); err != nil {
		return nil, err
	}
	now := time.Now()
	token.ConsultationEndedAt = &now
	if req != nil {
		if req.Notes != "" {
			token.Notes = req.Notes
		}
		if req.Diagnosis != "" {
			token.Diagnosis = req.Diagnosis
		}
	}

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to complete consultation: %w", err)
	}

	s.afterTransition(token, "Consultation completed", "Your consultation has been completed. Get well soon!")
	return token, nil
}

// MarkNoShow transitions an owned token to missed.
func (s *Service) MarkNoShow(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(token, model.TokenStatusMissed); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to mark no-show: %w", err)
	}

	s.afterTransition(token, "Appointment missed", "You missed your appointment. Please book a new one if needed.")
	return token, nil
}

// Skip does not change status. It bumps the reorder timestamp that sinks
// the token behind the rest of the active queue.
func (s *Service) Skip(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if !token.Status.Active() {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot skip token in status %s", token.Status), nil)
	}

	now := time.Now()
	token.SkippedAt = &now

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to skip token: %w", err)
	}

	s.dispatcher.Dispatch(syncsvc.Effect{
		Kind: "broadcast",
		Run: func(ctx context.Context) error {
			s.broadcaster.TokenUpdated(ctx, token)
			return nil
		},
	})
	return token, nil
}

// UpdateStatus is the generic status-patch operation used by the single
// PATCH endpoint.
func (s *Service) UpdateStatus(ctx context.Context, doctorID, tokenID uuid.UUID, status model.TokenStatus, reason string) (*model.Token, error) {
	if !status.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid status %q", status), nil)
	}

	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(token, status); err != nil {
		return nil, err
	}
	if status == model.TokenStatusCancelled || status == model.TokenStatusCancelledByHospital {
		if reason == "" {
			reason = "Cancelled by clinic"
		}
		token.CancellationReason = &reason
	}

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to update token status: %w", err)
	}

	s.afterTransition(token, "Appointment updated", fmt.Sprintf("Your appointment status changed to %s.", status))
	return token, nil
}

// BatchUpdateStatus applies one status to many tokens scoped to the acting
// doctor. Ids owned by another doctor are silently skipped; the result is a
// match-and-set count, not all-or-nothing.
func (s *Service) BatchUpdateStatus(ctx context.Context, doctorID uuid.UUID, req *model.BatchUpdateRequest) (*model.BatchUpdateResult, error) {
	if !req.Status.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid status %q", req.Status), nil)
	}
	if req.Status == model.TokenStatusBooked {
		return nil, apperrors.Conflict("cannot move tokens back to booked", nil)
	}

	modified, err := s.repo.BatchUpdateStatus(ctx, doctorID, req.TokenIDs, req.Status, req.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to batch update tokens: %w", err)
	}
	s.metrics.TokenTransitions.WithLabelValues(string(req.Status)).Add(float64(modified))

	s.dispatcher.Dispatch(syncsvc.Effect{
		Kind: "broadcast",
		Run: func(ctx context.Context) error {
			s.broadcaster.TokensBatchUpdated(ctx, doctorID, req.TokenIDs, req.Status)
			return nil
		},
	})

	return &model.BatchUpdateResult{ModifiedCount: int(modified)}, nil
}

// JoinVideo marks the doctor as present in the meeting.
func (s *Service) JoinVideo(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if token.MeetingLink == nil {
		return nil, apperrors.Conflict("token has no meeting link", nil)
	}
	if token.MeetingLink.MeetingEnded {
		return nil, apperrors.Conflict("meeting already ended", nil)
	}

	now := time.Now()
	token.MeetingLink.DoctorJoined = true
	token.MeetingLink.DoctorJoinedAt = &now

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to join video: %w", err)
	}

	s.afterTransition(token, "Doctor joined", "Your doctor has joined the video consultation.")
	return token, nil
}

// CloseVideo ends the meeting and forces the token to consulted.
func (s *Service) CloseVideo(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	token, err := s.getOwned(ctx, doctorID, tokenID)
	if err != nil {
		return nil, err
	}

	if token.MeetingLink == nil {
		return nil, apperrors.Conflict("token has no meeting link", nil)
	}

	token.MeetingLink.DoctorJoined = false
	token.MeetingLink.MeetingEnded = true

	if token.Status != model.TokenStatusConsulted {
		if err := s.transition(token, model.TokenStatusConsulted); err != nil {
			return nil, err
		}
		now := time.Now()
		token.ConsultationEndedAt = &now
	}

	if err := s.repo.Update(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to close video: %w", err)
	}

	s.afterTransition(token, "Consultation completed", "Your video consultation has ended.")
	return token, nil
}

// Queue returns a day's tokens grouped into session buckets.
func (s *Service) Queue(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.TokenQueue, error) {
	tokens, err := s.repo.ListForDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	queue := &model.TokenQueue{
		DoctorID: doctorID,
		Date:     date,
	}
	for _, token := range tokens {
		switch model.SessionFor(token.TimeSlot) {
		case model.SessionMorning:
			queue.Morning = append(queue.Morning, token)
		case model.SessionAfternoon:
			queue.Afternoon = append(queue.Afternoon, token)
		default:
			queue.Evening = append(queue.Evening, token)
		}
	}
	return queue, nil
}

// NextPatient returns the earliest active token by (skip order, status,
// slot, creation order). The repository sort puts booked before in_queue on
// equal slots.
func (s *Service) NextPatient(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.Token, error) {
	tokens, err := s.repo.ListActiveForDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load active tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, apperrors.NotFound("next patient", nil)
	}
	return tokens[0], nil
}

// getOwned maps an ownership miss to not-found: a token belonging to
// another doctor looks exactly like a missing one.
func (s *Service) getOwned(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error) {
	token, err := s.repo.GetOwned(ctx, doctorID, tokenID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("token", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (s *Service) transition(token *model.Token, to model.TokenStatus) error {
	if !model.CanTransition(token.Status, to) {
		return apperrors.Conflict(
			fmt.Sprintf("illegal transition from %s to %s", token.Status, to), nil)
	}
	token.Status = to
	s.metrics.TokenTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

// afterTransition dispatches the patient notification and the broadcast
// for a committed mutation. Neither can fail the caller.
func (s *Service) afterTransition(token *model.Token, title, message string) {
	tokenID := token.ID
	s.dispatcher.Dispatch(
		syncsvc.Effect{
			Kind: "notification",
			Run: func(ctx context.Context) error {
				return s.notifSvc.Create(ctx, &model.Notification{
					RecipientID:   token.PatientID,
					RecipientType: model.RecipientPatient,
					Title:         title,
					Message:       message,
					Type:          "token_status",
					Priority:      model.PriorityNormal,
					RelatedID:     &tokenID,
					RelatedType:   "token",
				})
			},
		},
		syncsvc.Effect{
			Kind: "broadcast",
			Run: func(ctx context.Context) error {
				s.broadcaster.TokenUpdated(ctx, token)
				return nil
			},
		},
	)
}
