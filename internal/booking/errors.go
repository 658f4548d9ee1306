package booking

import (
	"errors"
	"fmt"
)

// ErrSlotUnavailable is returned by AppointmentRepository.Save when the
// storage layer rejects the write because a racing booking already holds an
// overlapping slot. The orchestrator reports it as a ConflictError so callers
// cannot tell a detector hit from a lost race.
var ErrSlotUnavailable = errors.New("time slot unavailable")

// NotFoundError reports a missing referenced entity. Entity is one of
// "business", "service", "calendar".
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

// Validation failure reasons, in the order the validator checks them.
const (
	ReasonTimeSlotInPast        = "time_slot_in_past"
	ReasonInsufficientNotice    = "insufficient_notice"
	ReasonInvalidDuration       = "invalid_duration"
	ReasonAdvanceWindowExceeded = "advance_window_exceeded"
	ReasonBusinessInactive      = "business_inactive"
	ReasonServiceInactive       = "service_inactive"
	ReasonCalendarInactive      = "calendar_inactive"
)

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking rejected: %s", e.Reason)
}

// ConflictError reports an overlap with an existing appointment.
// AppointmentID names the first conflicting appointment when the detector
// found it; it is empty when the conflict surfaced as a storage-layer
// uniqueness violation.
type ConflictError struct {
	AppointmentID string
}

func (e *ConflictError) Error() string {
	if e.AppointmentID == "" {
		return "time slot conflicts with an existing appointment"
	}
	return "time slot conflicts with appointment " + e.AppointmentID
}
