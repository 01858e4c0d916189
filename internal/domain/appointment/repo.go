package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentRepository is the storage contract for bookings.
// ListByResourceOverlapping returns non-cancelled bookings on the resource
// whose half-open window intersects [start, end).
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	ListByResourceOverlapping(ctx context.Context, resourceID string, start, end time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*Appointment, int, error)
}
