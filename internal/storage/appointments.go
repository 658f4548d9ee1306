package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookwellhq/bookwell/internal/booking"
	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/model"
	"github.com/bookwellhq/bookwell/internal/outbox"
)

// ErrInvalidTransition is returned when a status change does not follow the
// appointment lifecycle.
var ErrInvalidTransition = errors.New("invalid appointment status transition")

type AppointmentStore struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

var _ booking.AppointmentRepository = (*AppointmentStore)(nil)

func NewAppointmentStore(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentStore {
	return &AppointmentStore{pool: pool, outboxRepo: outboxRepo}
}

const apptColumns = `id::text, business_id::text, calendar_id::text, service_id::text, COALESCE(staff_id::text, ''),
		start_time, end_time, status, appointment_type, client_name, client_email, COALESCE(client_phone, ''),
		base_price_cents, total_amount_cents, currency, payment_status, COALESCE(notes, ''), created_at`

func scanAppointment(row interface{ Scan(...any) error }) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.BusinessID, &a.CalendarID, &a.ServiceID, &a.StaffID,
		&a.Slot.Start, &a.Slot.End, &a.Status, &a.Type,
		&a.Client.Name, &a.Client.Email, &a.Client.Phone,
		&a.Pricing.BasePrice.AmountCents, &a.Pricing.TotalAmount.AmountCents,
		&a.Pricing.BasePrice.Currency, &a.Pricing.PaymentStatus, &a.Notes, &a.CreatedAt)
	a.Pricing.TotalAmount.Currency = a.Pricing.BasePrice.Currency
	return a, err
}

// FindConflicting returns non-cancelled appointments inside the window that
// share the candidate's calendar, or its staff member when one is set.
func (s *AppointmentStore) FindConflicting(ctx context.Context, calendarID, staffID string, window model.TimeSlot) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE (calendar_id = $1 OR ($2::text <> '' AND staff_id::text = $2))
			AND status <> 'cancelled'
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, calendarID, staffID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Save inserts the appointment and its requested event in one transaction.
// An exclusion or uniqueness violation means a racing booking already took
// the slot and is reported as booking.ErrSlotUnavailable.
func (s *AppointmentStore) Save(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, business_id, calendar_id, service_id, staff_id, start_time, end_time, status, appointment_type,
			 client_name, client_email, client_phone, base_price_cents, total_amount_cents, currency, payment_status, notes, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15, $16, NULLIF($17, ''), $18)
	`, appt.ID, appt.BusinessID, appt.CalendarID, appt.ServiceID, appt.StaffID,
		appt.Slot.Start, appt.Slot.End, appt.Status, appt.Type,
		appt.Client.Name, appt.Client.Email, appt.Client.Phone,
		appt.Pricing.BasePrice.AmountCents, appt.Pricing.TotalAmount.AmountCents,
		appt.Pricing.BasePrice.Currency, appt.Pricing.PaymentStatus, appt.Notes, appt.CreatedAt)
	if err != nil {
		if IsConflict(err) || IsDuplicate(err) {
			return model.Appointment{}, booking.ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}

	if err := s.insertLifecycleEvent(ctx, tx, appt, outbox.EventAppointmentRequested, nil); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *AppointmentStore) GetByID(ctx context.Context, businessID, id string) (model.Appointment, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
	`, id, businessID)
	a, err := scanAppointment(row)
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

// Transition moves the appointment to the given status under a row lock,
// writing the matching lifecycle event in the same transaction.
func (s *AppointmentStore) Transition(ctx context.Context, businessID, id string, to model.AppointmentStatus, reason string) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, id, businessID)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}

	if !appt.Status.CanTransition(to) {
		return model.Appointment{}, ErrInvalidTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			cancellation_reason = NULLIF($4, ''),
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, id, businessID, to, reason)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = to

	extra := map[string]any{}
	if reason != "" {
		extra["reason"] = reason
	}
	if err := s.insertLifecycleEvent(ctx, tx, appt, eventTypeFor(to), extra); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// MarkPaid flips the payment status after a successful checkout, keyed only
// by appointment id because the payment provider does not know the business.
// Providers redeliver webhook events, so the update is predicated on the
// status still being unpaid: a redelivery finds no row to change, reports
// applied=false and writes no second paid lifecycle event.
func (s *AppointmentStore) MarkPaid(ctx context.Context, id string) (model.Appointment, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = 'paid',
			updated_at = now()
		WHERE id = $1 AND payment_status <> 'paid'
		RETURNING `+apptColumns+`
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if !IsNotFound(err) {
			return model.Appointment{}, false, err
		}
		// Either the appointment is gone or it is already paid. Re-read to
		// tell the two apart; a missing row propagates pgx.ErrNoRows.
		row := tx.QueryRow(ctx, `
			SELECT `+apptColumns+`
			FROM appointments
			WHERE id = $1
		`, id)
		appt, err := scanAppointment(row)
		if err != nil {
			return model.Appointment{}, false, err
		}
		return appt, false, nil
	}

	if err := s.insertLifecycleEvent(ctx, tx, appt, outbox.EventAppointmentPaid, nil); err != nil {
		return model.Appointment{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (s *AppointmentStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE business_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// ListBookedSlots returns the busy intervals for a calendar within the
// window. Cancelled appointments do not block.
func (s *AppointmentStore) ListBookedSlots(ctx context.Context, calendarID string, start, end time.Time) ([]model.TimeSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE calendar_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, calendarID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		var slot model.TimeSlot
		if err := rows.Scan(&slot.Start, &slot.End); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

// CountActiveInRange counts requested and confirmed appointments starting
// inside [start, end), used for the monthly entitlement cap.
func (s *AppointmentStore) CountActiveInRange(ctx context.Context, businessID string, start, end time.Time) (int, error) {
	var cnt int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE business_id = $1
			AND status IN ('requested', 'confirmed')
			AND start_time >= $2
			AND start_time < $3
	`, businessID, start, end).Scan(&cnt)
	return cnt, err
}

func (s *AppointmentStore) insertLifecycleEvent(ctx context.Context, tx pgx.Tx, appt model.Appointment, eventType string, extra map[string]any) error {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"calendar_id":    appt.CalendarID,
		"service_id":     appt.ServiceID,
		"staff_id":       appt.StaffID,
		"client_email":   appt.Client.Email,
		"start_time":     appt.Slot.Start.UTC().Format(time.RFC3339),
		"end_time":       appt.Slot.End.UTC().Format(time.RFC3339),
		"status":         string(appt.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       body,
	})
}

func eventTypeFor(status model.AppointmentStatus) string {
	switch status {
	case model.StatusConfirmed:
		return outbox.EventAppointmentConfirmed
	case model.StatusCompleted:
		return outbox.EventAppointmentCompleted
	case model.StatusCancelled:
		return outbox.EventAppointmentCancelled
	default:
		return outbox.EventAppointmentRequested
	}
}
