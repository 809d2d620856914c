package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("sync_test")

type recordingBroker struct {
	mu       sync.Mutex
	messages map[string][]interface{}
	err      error
	panics   bool
}

func newRecordingBroker() *recordingBroker {
	return &recordingBroker{messages: make(map[string][]interface{})}
}

func (b *recordingBroker) Publish(_ context.Context, topic string, message interface{}) error {
	if b.panics {
		panic("broker client blew up")
	}
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[topic] = append(b.messages[topic], message)
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for topic := range b.messages {
		out = append(out, topic)
	}
	return out
}

func newTestBroadcaster(broker *recordingBroker) *Broadcaster {
	logger := zerolog.Nop()
	return NewBroadcaster(broker, &logger, testMetrics)
}

func TestTokenUpdatedFanOut(t *testing.T) {
	broker := newRecordingBroker()
	b := newTestBroadcaster(broker)

	token := &model.Token{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Status:    model.TokenStatusInQueue,
	}
	b.TokenUpdated(context.Background(), token)

	assert.ElementsMatch(t, []string{
		model.DoctorTopic(token.DoctorID),
		model.PatientTopic(token.PatientID),
		model.TopicClinic,
	}, broker.topics())
}

func TestScheduleChangedReachesPatients(t *testing.T) {
	broker := newRecordingBroker()
	b := newTestBroadcaster(broker)
	doctorID := uuid.New()

	b.ScheduleChanged(context.Background(), doctorID, time.Now(), false, nil)

	assert.ElementsMatch(t, []string{
		model.TopicClinic,
		model.TopicPatients,
		model.DoctorTopic(doctorID),
	}, broker.topics())
}

func TestLeaveDecidedPerPatientDelivery(t *testing.T) {
	broker := newRecordingBroker()
	b := newTestBroadcaster(broker)

	leave := &model.LeaveRequest{
		ID:       uuid.New(),
		DoctorID: uuid.New(),
		Status:   model.LeaveStatusApproved,
	}
	affected := []model.AffectedToken{
		{TokenID: uuid.New(), PatientID: uuid.New(), Reason: "Doctor unavailable"},
		{TokenID: uuid.New(), PatientID: uuid.New(), Reason: "Doctor unavailable"},
	}
	b.LeaveDecided(context.Background(), leave, affected)

	topics := broker.topics()
	assert.Contains(t, topics, model.TopicClinic)
	assert.Contains(t, topics, model.DoctorTopic(leave.DoctorID))
	for _, tok := range affected {
		assert.Contains(t, topics, model.PatientTopic(tok.PatientID))
	}
}

func TestBroadcastFailureIsSwallowed(t *testing.T) {
	broker := newRecordingBroker()
	broker.err = errors.New("connection refused")
	b := newTestBroadcaster(broker)

	assert.NotPanics(t, func() {
		b.StatsRefreshed(context.Background(), uuid.New())
	})
}

func TestBroadcastSurvivesBrokerPanic(t *testing.T) {
	broker := newRecordingBroker()
	broker.panics = true
	b := newTestBroadcaster(broker)

	assert.NotPanics(t, func() {
		b.TokenUpdated(context.Background(), &model.Token{ID: uuid.New()})
	})
}
