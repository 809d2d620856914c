package model

import (
	"time"

	"github.com/google/uuid"
)

// Schedule defaults applied on first explicit set for a (doctor, date).
const (
	DefaultWorkStart       = "09:00"
	DefaultWorkEnd         = "17:00"
	DefaultBreakStart      = "13:00"
	DefaultBreakEnd        = "14:00"
	DefaultSlotDuration    = 15
	DefaultPatientsPerSlot = 1
)

// DoctorSchedule is the per-doctor, per-day availability record.
// Unique on (doctor_id, date); absence of a row means not available.
type DoctorSchedule struct {
	ID              uuid.UUID `db:"id" json:"id"`
	DoctorID        uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date            time.Time `db:"date" json:"date"`
	IsAvailable     bool      `db:"is_available" json:"is_available"`
	WorkStart       string    `db:"work_start" json:"work_start"`
	WorkEnd         string    `db:"work_end" json:"work_end"`
	BreakStart      string    `db:"break_start" json:"break_start"`
	BreakEnd        string    `db:"break_end" json:"break_end"`
	SlotDuration    int       `db:"slot_duration" json:"slot_duration"`
	PatientsPerSlot int       `db:"patients_per_slot" json:"patients_per_slot"`
	LeaveReason     *string   `db:"leave_reason" json:"leave_reason,omitempty"`
	Notes           string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TimeWindow is an "HH:MM" interval within a working day.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability is the resolved view of a (doctor, date) pair that the
// booking subsystem consumes.
type Availability struct {
	DoctorID     uuid.UUID  `json:"doctor_id"`
	Date         time.Time  `json:"date"`
	IsAvailable  bool       `json:"is_available"`
	WorkingHours TimeWindow `json:"working_hours"`
	BreakWindow  TimeWindow `json:"break_window"`
	SlotDuration int        `json:"slot_duration"`
	LeaveReason  *string    `json:"leave_reason,omitempty"`
}

type SetScheduleRequest struct {
	IsAvailable     *bool   `json:"is_available"`
	WorkStart       string  `json:"work_start" binding:"omitempty,timeslot"`
	WorkEnd         string  `json:"work_end" binding:"omitempty,timeslot"`
	BreakStart      string  `json:"break_start" binding:"omitempty,timeslot"`
	BreakEnd        string  `json:"break_end" binding:"omitempty,timeslot"`
	SlotDuration    int     `json:"slot_duration"`
	PatientsPerSlot int     `json:"patients_per_slot"`
	LeaveReason     *string `json:"leave_reason"`
	Notes           string  `json:"notes"`
}

// DayResult reports the outcome of one day of a date-range schedule update.
type DayResult struct {
	Date      time.Time `json:"date"`
	Cancelled int       `json:"cancelled"`
	Err       string    `json:"error,omitempty"`
}

type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "pending"
	ChangeRequestApproved ChangeRequestStatus = "approved"
	ChangeRequestRejected ChangeRequestStatus = "rejected"
)

// ScheduleChangeRequest is a doctor-submitted ad-hoc availability change
// awaiting admin review. Stored, not held in process memory, so pending
// requests survive restarts.
type ScheduleChangeRequest struct {
	ID           uuid.UUID           `db:"id" json:"id"`
	DoctorID     uuid.UUID           `db:"doctor_id" json:"doctor_id"`
	StartDate    time.Time           `db:"start_date" json:"start_date"`
	EndDate      time.Time           `db:"end_date" json:"end_date"`
	IsAvailable  bool                `db:"is_available" json:"is_available"`
	Reason       string              `db:"reason" json:"reason"`
	Status       ChangeRequestStatus `db:"status" json:"status"`
	AdminComment *string             `db:"admin_comment" json:"admin_comment,omitempty"`
	DecidedBy    *uuid.UUID          `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time          `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}
