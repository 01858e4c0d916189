package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository is the storage contract for patient records.
// FindByExternalMRN returns (nil, nil) when no patient carries the MRN.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByExternalMRN(ctx context.Context, mrn string) (*Patient, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
}
