package booking

import (
	"fmt"
	"time"

	"github.com/bookwellhq/bookwell/internal/model"
)

// Config holds the booking rules. MaxAdvanceBooking of zero means unbounded.
type Config struct {
	MinAdvanceBooking time.Duration
	MaxDuration       time.Duration
	MaxAdvanceBooking time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinAdvanceBooking: 120 * time.Minute,
		MaxDuration:       480 * time.Minute,
	}
}

// Entities is the snapshot of referenced records resolved before validation.
// A nil field means the lookup found nothing.
type Entities struct {
	Business *model.Business
	Service  *model.Service
	Calendar *model.Calendar
}

// Validator rejects a candidate slot for rule violations independent of any
// other existing appointments. It is stateless; the same candidate and
// snapshot always produce the same decision.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) (*Validator, error) {
	if cfg.MinAdvanceBooking <= 0 {
		return nil, fmt.Errorf("booking: min advance booking must be positive, got %s", cfg.MinAdvanceBooking)
	}
	if cfg.MaxDuration <= 0 {
		return nil, fmt.Errorf("booking: max duration must be positive, got %s", cfg.MaxDuration)
	}
	if cfg.MaxAdvanceBooking < 0 {
		return nil, fmt.Errorf("booking: max advance booking must not be negative, got %s", cfg.MaxAdvanceBooking)
	}
	return &Validator{cfg: cfg}, nil
}

// Validate runs every rule and returns the first failure. Time rules run
// before entity rules, existence before active-state, and business before
// service before calendar; later rules assume the earlier ones held.
func (v *Validator) Validate(now time.Time, slot model.TimeSlot, ents Entities) error {
	if !slot.Start.After(now) {
		return &ValidationError{Reason: ReasonTimeSlotInPast}
	}
	if slot.Start.Sub(now) < v.cfg.MinAdvanceBooking {
		return &ValidationError{Reason: ReasonInsufficientNotice}
	}
	if d := slot.Duration(); d <= 0 || d > v.cfg.MaxDuration {
		return &ValidationError{Reason: ReasonInvalidDuration}
	}
	if v.cfg.MaxAdvanceBooking > 0 && slot.Start.Sub(now) > v.cfg.MaxAdvanceBooking {
		return &ValidationError{Reason: ReasonAdvanceWindowExceeded}
	}

	if ents.Business == nil {
		return &NotFoundError{Entity: "business"}
	}
	if ents.Service == nil {
		return &NotFoundError{Entity: "service"}
	}
	if ents.Calendar == nil {
		return &NotFoundError{Entity: "calendar"}
	}
	if !ents.Business.IsActive {
		return &ValidationError{Reason: ReasonBusinessInactive}
	}
	if !ents.Service.IsActive {
		return &ValidationError{Reason: ReasonServiceInactive}
	}
	if !ents.Calendar.IsActive {
		return &ValidationError{Reason: ReasonCalendarInactive}
	}
	return nil
}

func (v *Validator) MaxDuration() time.Duration { return v.cfg.MaxDuration }
