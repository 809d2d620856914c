package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TokenStatus string

const (
	TokenStatusBooked              TokenStatus = "booked"
	TokenStatusInQueue             TokenStatus = "in_queue"
	TokenStatusConsulted           TokenStatus = "consulted"
	TokenStatusMissed              TokenStatus = "missed"
	TokenStatusCancelled           TokenStatus = "cancelled"
	TokenStatusCancelledByHospital TokenStatus = "cancelled_by_hospital"
	TokenStatusReferred            TokenStatus = "referred"
)

// validTransitions is the single source of truth for the token lifecycle.
// Terminal states have no outgoing edges.
var validTransitions = map[TokenStatus][]TokenStatus{
	TokenStatusBooked: {
		TokenStatusInQueue,
		TokenStatusConsulted,
		TokenStatusMissed,
		TokenStatusCancelled,
		TokenStatusCancelledByHospital,
		TokenStatusReferred,
	},
	TokenStatusInQueue: {
		TokenStatusConsulted,
		TokenStatusMissed,
		TokenStatusCancelled,
		TokenStatusCancelledByHospital,
		TokenStatusReferred,
	},
}

func (s TokenStatus) Valid() bool {
	switch s {
	case TokenStatusBooked, TokenStatusInQueue, TokenStatusConsulted,
		TokenStatusMissed, TokenStatusCancelled, TokenStatusCancelledByHospital,
		TokenStatusReferred:
		return true
	}
	return false
}

// Terminal reports whether the status ends the token lifecycle.
func (s TokenStatus) Terminal() bool {
	switch s {
	case TokenStatusConsulted, TokenStatusMissed, TokenStatusCancelled,
		TokenStatusCancelledByHospital, TokenStatusReferred:
		return true
	}
	return false
}

// Active statuses are the ones cascade cancellation and queue reads act on.
func (s TokenStatus) Active() bool {
	return s == TokenStatusBooked || s == TokenStatusInQueue
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to TokenStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MeetingLink is the embedded video-consultation sub-object, stored as JSONB.
type MeetingLink struct {
	MeetingURL     string     `json:"meeting_url"`
	DoctorJoined   bool       `json:"doctor_joined"`
	DoctorJoinedAt *time.Time `json:"doctor_joined_at,omitempty"`
	MeetingEnded   bool       `json:"meeting_ended"`
}

func (m MeetingLink) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *MeetingLink) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported meeting_link column type %T", value)
	}
	return json.Unmarshal(b, m)
}

// Token is a single patient-doctor booking for a specific date and time slot.
// Tokens are never deleted, only transitioned to a terminal status.
type Token struct {
	ID                    uuid.UUID    `db:"id" json:"id"`
	DoctorID              uuid.UUID    `db:"doctor_id" json:"doctor_id"`
	PatientID             uuid.UUID    `db:"patient_id" json:"patient_id"`
	FamilyMemberID        *uuid.UUID   `db:"family_member_id" json:"family_member_id,omitempty"`
	BookingDate           time.Time    `db:"booking_date" json:"booking_date"`
	TimeSlot              string       `db:"time_slot" json:"time_slot"`
	TokenNumber           int          `db:"token_number" json:"token_number"`
	Status                TokenStatus  `db:"status" json:"status"`
	Notes                 string       `db:"notes" json:"notes,omitempty"`
	Diagnosis             string       `db:"diagnosis" json:"diagnosis,omitempty"`
	Fee                   float64      `db:"fee" json:"fee"`
	Paid                  bool         `db:"paid" json:"paid"`
	CancellationReason    *string      `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	ConsultationStartedAt *time.Time   `db:"consultation_started_at" json:"consultation_started_at,omitempty"`
	ConsultationEndedAt   *time.Time   `db:"consultation_ended_at" json:"consultation_ended_at,omitempty"`
	SkippedAt             *time.Time   `db:"skipped_at" json:"skipped_at,omitempty"`
	MeetingLink           *MeetingLink `db:"meeting_link" json:"meeting_link,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updated_at"`
}

type SessionBucket string

const (
	SessionMorning   SessionBucket = "morning"
	SessionAfternoon SessionBucket = "afternoon"
	SessionEvening   SessionBucket = "evening"
)

const (
	morningStart   = 9 * 60
	morningEnd     = 13 * 60
	afternoonStart = 14 * 60
	afternoonEnd   = 18 * 60
)

// SlotMinutes converts an "HH:MM" time slot to minutes since midnight.
func SlotMinutes(slot string) (int, error) {
	parts := strings.SplitN(slot, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time slot %q", slot)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time slot %q", slot)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time slot %q", slot)
	}
	return h*60 + m, nil
}

// SessionFor maps a time slot to its display bucket. Slots outside both
// the morning and afternoon windows (including the 13:00-14:00 gap) fall
// into the evening bucket.
func SessionFor(slot string) SessionBucket {
	m, err := SlotMinutes(slot)
	if err != nil {
		return SessionEvening
	}
	switch {
	case m >= morningStart && m < morningEnd:
		return SessionMorning
	case m >= afternoonStart && m < afternoonEnd:
		return SessionAfternoon
	default:
		return SessionEvening
	}
}

// TokenQueue is a day's tokens grouped by session bucket for dashboards.
type TokenQueue struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      time.Time `json:"date"`
	Morning   []*Token  `json:"morning"`
	Afternoon []*Token  `json:"afternoon"`
	Evening   []*Token  `json:"evening"`
}

type BatchUpdateRequest struct {
	TokenIDs []uuid.UUID `json:"token_ids" binding:"required,min=1"`
	Status   TokenStatus `json:"status" binding:"required,tokenstatus"`
	Notes    string      `json:"notes"`
}

type BatchUpdateResult struct {
	ModifiedCount int `json:"modified_count"`
}

type CompleteConsultationRequest struct {
	Notes     string `json:"notes"`
	Diagnosis string `json:"diagnosis"`
}
