package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/pkg/messaging"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

// Broadcaster fans business events out to role- and identity-scoped topics.
// It holds no state beyond the transport handle. Every emit is best-effort:
// transport failures are logged and counted, never returned, because the
// underlying mutation has already committed.
type Broadcaster struct {
	broker  messaging.Broker
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

func NewBroadcaster(broker messaging.Broker, logger *zerolog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		broker:  broker,
		logger:  logger,
		metrics: m,
	}
}

// TokenUpdated notifies the owning doctor, the owning patient and the
// global dashboard topic about a token state change.
func (b *Broadcaster) TokenUpdated(ctx context.Context, token *model.Token) {
	b.emit(ctx, model.EventTokenUpdated, token,
		model.DoctorTopic(token.DoctorID),
		model.PatientTopic(token.PatientID),
		model.TopicClinic,
	)
}

// TokensBatchUpdated announces a bulk status change without loading every
// touched row; dashboards refetch the queue on receipt.
func (b *Broadcaster) TokensBatchUpdated(ctx context.Context, doctorID uuid.UUID, tokenIDs []uuid.UUID, status model.TokenStatus) {
	payload := map[string]interface{}{
		"doctor_id": doctorID,
		"token_ids": tokenIDs,
		"status":    status,
	}
	b.emit(ctx, model.EventTokenUpdated, payload,
		model.DoctorTopic(doctorID),
		model.TopicClinic,
	)
}

// ScheduleChanged announces an availability change. Patients get it on
// their role topic because it affects what they can book.
func (b *Broadcaster) ScheduleChanged(ctx context.Context, doctorID uuid.UUID, date time.Time, available bool, reason *string) {
	payload := map[string]interface{}{
		"doctor_id":    doctorID,
		"date":         date,
		"is_available": available,
		"reason":       reason,
	}
	b.emit(ctx, model.EventScheduleChanged, payload,
		model.TopicClinic,
		model.TopicPatients,
		model.DoctorTopic(doctorID),
	)
}

// LeaveDecided carries the affected-appointment list separately from the
// generic schedule change: each cancelled patient receives their own token
// with the cancellation reason on their identity topic.
func (b *Broadcaster) LeaveDecided(ctx context.Context, leave *model.LeaveRequest, affected []model.AffectedToken) {
	payload := map[string]interface{}{
		"leave":    leave,
		"affected": affected,
	}
	b.emit(ctx, model.EventLeaveDecided, payload,
		model.TopicClinic,
		model.DoctorTopic(leave.DoctorID),
	)

	for _, tok := range affected {
		b.emit(ctx, model.EventLeaveDecided, tok, model.PatientTopic(tok.PatientID))
	}
}

func (b *Broadcaster) StatsRefreshed(ctx context.Context, doctorID uuid.UUID) {
	b.emit(ctx, model.EventStatsRefreshed, map[string]interface{}{"doctor_id": doctorID},
		model.DoctorTopic(doctorID),
	)
}

func (b *Broadcaster) emit(ctx context.Context, eventType model.EventType, payload interface{}, topics ...string) {
	event := &model.Event{
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now(),
	}

	for _, topic := range topics {
		if err := b.publish(ctx, topic, event); err != nil {
			b.metrics.BroadcastFailures.WithLabelValues(string(eventType)).Inc()
			b.logger.Error().Err(err).
				Str("topic", topic).
				Str("event_type", string(eventType)).
				Msg("broadcast failed")
			continue
		}
		b.metrics.BroadcastsSent.WithLabelValues(string(eventType)).Inc()
	}
}

// publish guards the transport call; a panicking broker client must not
// take the request goroutine down with it.
func (b *Broadcaster) publish(ctx context.Context, topic string, event *model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broker panic: %v", r)
		}
	}()
	return b.broker.Publish(ctx, topic, event)
}
