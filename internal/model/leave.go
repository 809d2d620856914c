package model

import (
	"time"

	"github.com/google/uuid"
)

type LeaveType string

const (
	LeaveTypeFullDay LeaveType = "full_day"
	LeaveTypeHalfDay LeaveType = "half_day"
)

type LeaveSession string

const (
	LeaveSessionMorning   LeaveSession = "morning"
	LeaveSessionAfternoon LeaveSession = "afternoon"
)

type LeaveStatus string

const (
	LeaveStatusPending   LeaveStatus = "pending"
	LeaveStatusApproved  LeaveStatus = "approved"
	LeaveStatusRejected  LeaveStatus = "rejected"
	LeaveStatusCancelled LeaveStatus = "cancelled"
)

// LeaveRequest is a doctor-submitted leave with an inclusive date range.
// No two requests for the same doctor with status pending or approved may
// have overlapping [start_date, end_date] intervals.
type LeaveRequest struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	DoctorID     uuid.UUID     `db:"doctor_id" json:"doctor_id"`
	Type         LeaveType     `db:"leave_type" json:"leave_type"`
	StartDate    time.Time     `db:"start_date" json:"start_date"`
	EndDate      time.Time     `db:"end_date" json:"end_date"`
	Session      *LeaveSession `db:"session" json:"session,omitempty"`
	Reason       string        `db:"reason" json:"reason"`
	Status       LeaveStatus   `db:"status" json:"status"`
	AdminComment *string       `db:"admin_comment" json:"admin_comment,omitempty"`
	CancelledAt  *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Overlaps reports closed-interval overlap with [start, end].
func (l *LeaveRequest) Overlaps(start, end time.Time) bool {
	return !l.StartDate.After(end) && !l.EndDate.Before(start)
}

type SubmitLeaveRequest struct {
	Type      LeaveType    `json:"leave_type" binding:"required,oneof=full_day half_day"`
	StartDate string       `json:"start_date" binding:"required"`
	EndDate   string       `json:"end_date"`
	Session   LeaveSession `json:"session" binding:"omitempty,oneof=morning afternoon"`
	Reason    string       `json:"reason" binding:"required,max=500"`
}

type DecideLeaveRequest struct {
	Comment string `json:"comment" binding:"max=500"`
}

type LeaveFilters struct {
	DoctorID *uuid.UUID
	Status   *LeaveStatus
}
