package model

import (
	"errors"
	"time"
)

// TimeSlot is a half-open interval [Start, End). Start < End always; use
// NewTimeSlot to construct one from untrusted input.
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// NewTimeSlot builds a slot from untrusted input, rejecting zero and
// negative lengths.
func NewTimeSlot(start, end time.Time) (TimeSlot, error) {
	if !end.After(start) {
		return TimeSlot{}, errors.New("time slot end must be after start")
	}
	return TimeSlot{Start: start, End: end}, nil
}

func (s TimeSlot) Duration() time.Duration { return s.End.Sub(s.Start) }

// Overlaps reports whether two half-open slots intersect. Back-to-back
// slots (one ending exactly when the other starts) do not overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

type AppointmentStatus string

const (
	StatusRequested AppointmentStatus = "requested"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// CanTransition encodes the appointment lifecycle:
// requested -> confirmed -> completed, with cancellation allowed from any
// state before completion.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	switch to {
	case StatusConfirmed:
		return s == StatusRequested
	case StatusCompleted:
		return s == StatusConfirmed
	case StatusCancelled:
		return s == StatusRequested || s == StatusConfirmed
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentWaived  PaymentStatus = "waived"
)

type AppointmentType string

const (
	TypeInPerson AppointmentType = "in_person"
	TypeVirtual  AppointmentType = "virtual"
)

// Money is an amount in the currency's minor unit (cents).
type Money struct {
	AmountCents int64
	Currency    string
}

type Pricing struct {
	BasePrice     Money
	TotalAmount   Money
	PaymentStatus PaymentStatus
}

type ClientInfo struct {
	Email       string
	Name        string
	Phone       string
	IsNewClient bool
}

type Appointment struct {
	ID         string
	BusinessID string
	CalendarID string
	ServiceID  string
	StaffID    string // empty when no staff member is attached
	Slot       TimeSlot
	Status     AppointmentStatus
	Type       AppointmentType
	Client     ClientInfo
	Pricing    Pricing
	Notes      string
	CreatedAt  time.Time
}
