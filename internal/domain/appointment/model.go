package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment maps to the appointments table. The time window is half-open:
// [StartTime, EndTime). Two bookings on the same resource may touch at a
// boundary but never overlap unless one of them is cancelled.
type Appointment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	ResourceID string    `db:"resource_id" json:"resource_id"`
	Modality   *string   `db:"modality" json:"modality,omitempty"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	Status     string    `db:"status" json:"status"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	RISOrderID *string   `db:"ris_order_id" json:"ris_order_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Availability is the outcome of an availability check: whether the window is
// free and, when it is not, the bookings in the way.
type Availability struct {
	Available bool           `json:"available"`
	Conflicts []*Appointment `json:"conflicts,omitempty"`
}
