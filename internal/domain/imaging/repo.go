package imaging

import (
	"context"

	"github.com/google/uuid"
)

// FileRepository is the storage contract for imported DICOM instances.
type FileRepository interface {
	Upsert(ctx context.Context, f *File) error
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*File, error)
	CountByStudy(ctx context.Context, studyID uuid.UUID) (int, error)
}
