package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/radbridge/radbridge/internal/platform/apperr"
)

var validAppointmentStatuses = map[string]bool{
	"scheduled": true, "confirmed": true, "completed": true, "cancelled": true,
}

type Service struct {
	repo   AppointmentRepository
	logger zerolog.Logger

	mu            sync.Mutex
	resourceLocks map[string]*sync.Mutex
}

func NewService(repo AppointmentRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		logger:        logger.With().Str("component", "appointment").Logger(),
		resourceLocks: make(map[string]*sync.Mutex),
	}
}

// CheckAvailability reports whether the half-open window [start, end) is free
// on the resource. excludeID skips one booking, so a reschedule does not
// collide with itself. Adjacent bookings (end == next start) do not conflict.
func (s *Service) CheckAvailability(ctx context.Context, resourceID string, start, end time.Time, excludeID *uuid.UUID) (*Availability, error) {
	if resourceID == "" {
		return nil, apperr.Validation("resource id is required")
	}
	if !start.Before(end) {
		return nil, apperr.Validation("start time must be before end time")
	}

	overlapping, err := s.repo.ListByResourceOverlapping(ctx, resourceID, start, end)
	if err != nil {
		return nil, err
	}

	var conflicts []*Appointment
	for _, a := range overlapping {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		conflicts = append(conflicts, a)
	}
	return &Availability{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// CreateAppointment books the window if it is free. The check and the insert
// run under a per-resource lock; the database exclusion constraint backstops
// races across processes, surfacing as a ConflictError from the repo.
func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = "scheduled"
	}
	if err := s.validate(a); err != nil {
		return err
	}

	lock := s.lockFor(a.ResourceID)
	lock.Lock()
	defer lock.Unlock()

	avail, err := s.CheckAvailability(ctx, a.ResourceID, a.StartTime, a.EndTime, nil)
	if err != nil {
		return err
	}
	if !avail.Available {
		return apperr.Conflict("resource %s is already booked in [%s, %s)",
			a.ResourceID, a.StartTime.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateAppointment reschedules or otherwise modifies a booking. The new
// window is checked excluding the booking itself.
func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if err := s.validate(a); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, a.ID); err != nil {
		return err
	}

	lock := s.lockFor(a.ResourceID)
	lock.Lock()
	defer lock.Unlock()

	if a.Status != "cancelled" {
		avail, err := s.CheckAvailability(ctx, a.ResourceID, a.StartTime, a.EndTime, &a.ID)
		if err != nil {
			return err
		}
		if !avail.Available {
			return apperr.Conflict("resource %s is already booked in [%s, %s)",
				a.ResourceID, a.StartTime.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
		}
	}
	return s.repo.Update(ctx, a)
}

// CancelAppointment marks a booking cancelled, which releases its window for
// new bookings immediately.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == "cancelled" {
		return nil
	}
	a.Status = "cancelled"
	return s.repo.Update(ctx, a)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*Appointment, int, error) {
	if !from.Before(to) {
		return nil, 0, apperr.Validation("from must be before to")
	}
	return s.repo.ListByRange(ctx, from, to, limit, offset)
}

func (s *Service) validate(a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return apperr.Validation("patient id is required")
	}
	if a.ResourceID == "" {
		return apperr.Validation("resource id is required")
	}
	if !a.StartTime.Before(a.EndTime) {
		return apperr.Validation("start time must be before end time")
	}
	if !validAppointmentStatuses[a.Status] {
		return apperr.Validation("invalid status: %s", a.Status)
	}
	return nil
}

func (s *Service) lockFor(resourceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.resourceLocks[resourceID]
	if !ok {
		l = &sync.Mutex{}
		s.resourceLocks[resourceID] = l
	}
	return l
}
