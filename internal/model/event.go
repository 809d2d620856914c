package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Broadcast topics. Identity-scoped topics are derived with DoctorTopic
// and PatientTopic.
const (
	TopicClinic   = "clinic"
	TopicPatients = "patients"
)

func DoctorTopic(id uuid.UUID) string {
	return fmt.Sprintf("doctor-%s", id)
}

func PatientTopic(id uuid.UUID) string {
	return fmt.Sprintf("patient-%s", id)
}

type EventType string

const (
	EventTokenUpdated    EventType = "token_updated"
	EventScheduleChanged EventType = "schedule_changed"
	EventLeaveDecided    EventType = "leave_decided"
	EventStatsRefreshed  EventType = "stats_refreshed"
)

// Event is the fan-out envelope. Delivery is at-most-once with no replay;
// a disconnected subscriber silently misses it.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// AffectedToken is the per-patient detail broadcast when a cascade
// cancellation runs; patients need the reason, not just the fact.
type AffectedToken struct {
	TokenID     uuid.UUID `json:"token_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	BookingDate time.Time `json:"booking_date"`
	TimeSlot    string    `json:"time_slot"`
	Reason      string    `json:"reason"`
}
