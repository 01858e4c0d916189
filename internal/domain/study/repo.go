package study

import (
	"context"

	"github.com/google/uuid"
)

// StudyRepository is the storage contract for studies. The FindBy* lookups
// return (nil, nil) when no study carries the external key.
type StudyRepository interface {
	Create(ctx context.Context, s *Study) error
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
	Update(ctx context.Context, s *Study) error
	FindByRISOrderID(ctx context.Context, orderID string) (*Study, error)
	FindByPACSStudyUID(ctx context.Context, studyUID string) (*Study, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Study, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Study, int, error)
}

// ReportRepository persists study reports. Upsert replaces any report the
// study already carries.
type ReportRepository interface {
	Upsert(ctx context.Context, r *Report) error
	GetByStudy(ctx context.Context, studyID uuid.UUID) (*Report, error)
}
