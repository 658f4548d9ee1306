// Package outbox implements transactional event publishing: domain events
// are written to an outbox table in the same transaction as the state change
// and relayed to Kafka by a background publisher.
package outbox

// Event is the envelope written to the outbox table. The Kafka topic name
// equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the booking flows.
const (
	EventAppointmentRequested = "booking.appointment.requested.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentPaid      = "booking.appointment.paid.v1"
)

// Event types emitted by account management.
const (
	EventUserCreated = "auth.user.created.v1"
	EventUserDeleted = "auth.user.deleted.v1"
)
