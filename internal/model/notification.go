package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RecipientType string

const (
	RecipientPatient RecipientType = "patient"
	RecipientDoctor  RecipientType = "doctor"
	RecipientAdmin   RecipientType = "admin"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Metadata is a free-form JSONB payload attached to a notification.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported metadata column type %T", value)
	}
	return json.Unmarshal(b, m)
}

// Notification is a best-effort message to a patient, doctor or admin.
// Creation failures are logged, never surfaced to the mutating request.
type Notification struct {
	ID            uuid.UUID            `db:"id" json:"id"`
	RecipientID   uuid.UUID            `db:"recipient_id" json:"recipient_id"`
	RecipientType RecipientType        `db:"recipient_type" json:"recipient_type"`
	Title         string               `db:"title" json:"title"`
	Message       string               `db:"message" json:"message"`
	Type          string               `db:"type" json:"type"`
	Priority      NotificationPriority `db:"priority" json:"priority"`
	RelatedID     *uuid.UUID           `db:"related_id" json:"related_id,omitempty"`
	RelatedType   string               `db:"related_type" json:"related_type,omitempty"`
	Metadata      Metadata             `db:"metadata" json:"metadata,omitempty"`
	ReadAt        *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
}
