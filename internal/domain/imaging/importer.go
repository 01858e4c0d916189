// Package imaging pulls DICOM studies out of the PACS and lands them in local
// storage: a studies row, one study_files row per instance, and the instance
// payloads in the blob store.
package imaging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/radbridge/radbridge/internal/domain/study"
	"github.com/radbridge/radbridge/internal/platform/apperr"
	"github.com/radbridge/radbridge/internal/platform/blobstore"
	"github.com/radbridge/radbridge/internal/platform/pacs"
)

// PACSGateway is the slice of the PACS client the importer needs.
type PACSGateway interface {
	SearchStudies(ctx context.Context, patientExternalID string) ([]pacs.StudyRef, error)
	FetchStudyMetadata(ctx context.Context, studyUID string) (*pacs.StudyMetadata, error)
	FetchStudyInstances(ctx context.Context, studyUID string) ([]pacs.InstanceRef, error)
	FetchInstanceBinary(ctx context.Context, studyUID, seriesUID, sopUID string) ([]byte, error)
	FetchInstanceMetadata(ctx context.Context, studyUID, seriesUID, sopUID string) (*pacs.InstanceMetadata, error)
}

type Importer struct {
	pacs    PACSGateway
	studies study.StudyRepository
	files   FileRepository
	blobs   blobstore.BlobStore
	workers int
	logger  zerolog.Logger
}

func NewImporter(gw PACSGateway, studies study.StudyRepository, files FileRepository,
	blobs blobstore.BlobStore, workers int, logger zerolog.Logger) *Importer {
	if workers < 1 {
		workers = 1
	}
	return &Importer{
		pacs:    gw,
		studies: studies,
		files:   files,
		blobs:   blobs,
		workers: workers,
		logger:  logger.With().Str("component", "imaging").Logger(),
	}
}

// SearchPatientStudies proxies a QIDO search for a patient's external ID.
func (im *Importer) SearchPatientStudies(ctx context.Context, patientExternalID string) ([]pacs.StudyRef, error) {
	if patientExternalID == "" {
		return nil, apperr.Validation("patient external id is required")
	}
	return im.pacs.SearchStudies(ctx, patientExternalID)
}

// ImportStudy pulls one study from the PACS. Instance failures do not abort
// the import: every instance is attempted, the failures are reported in the
// result, and import_complete is set only when all of them landed. Running
// the import again retries failed instances and overwrites nothing that is
// already correct.
func (im *Importer) ImportStudy(ctx context.Context, studyUID string, patientID uuid.UUID) (*ImportResult, error) {
	if studyUID == "" {
		return nil, apperr.Validation("study uid is required")
	}
	if patientID == uuid.Nil {
		return nil, apperr.Validation("patient id is required")
	}

	md, err := im.pacs.FetchStudyMetadata(ctx, studyUID)
	if err != nil {
		return nil, err
	}

	st, err := im.upsertStudy(ctx, md, patientID)
	if err != nil {
		return nil, err
	}

	refs, err := im.pacs.FetchStudyInstances(ctx, studyUID)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			if err := im.importInstance(gctx, st, ref); err != nil {
				im.logger.Warn().Err(err).
					Str("study_uid", studyUID).
					Str("sop_uid", ref.SOPInstanceUID).
					Msg("instance import failed")
				mu.Lock()
				failed = append(failed, ref.SOPInstanceUID)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(failed)

	stored, err := im.files.CountByStudy(ctx, st.ID)
	if err != nil {
		return nil, err
	}
	st.InstanceCount = stored
	st.ImportComplete = len(failed) == 0
	if err := im.studies.Update(ctx, st); err != nil {
		return nil, err
	}

	im.logger.Info().
		Str("study_uid", studyUID).
		Str("study_id", st.ID.String()).
		Int("instances", stored).
		Int("failed", len(failed)).
		Msg("study import finished")

	return &ImportResult{
		StudyID:        st.ID,
		InstanceCount:  stored,
		ImportComplete: len(failed) == 0,
		Failed:         failed,
	}, nil
}

// ListFiles returns the stored instances of a study.
func (im *Importer) ListFiles(ctx context.Context, studyID uuid.UUID) ([]*File, error) {
	if _, err := im.studies.GetByID(ctx, studyID); err != nil {
		return nil, err
	}
	return im.files.ListByStudy(ctx, studyID)
}

func (im *Importer) upsertStudy(ctx context.Context, md *pacs.StudyMetadata, patientID uuid.UUID) (*study.Study, error) {
	if existing, err := im.studies.FindByPACSStudyUID(ctx, md.StudyUID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	uid := md.StudyUID
	st := &study.Study{
		PatientID:    patientID,
		PACSStudyUID: &uid,
		Modality:     md.Modality,
		Status:       "completed",
		Source:       "pacs",
	}
	if st.Modality == "" {
		st.Modality = pacs.UnknownModality
	}
	if md.Description != "" {
		st.Description = &md.Description
	}
	if md.AccessionNumber != "" {
		st.AccessionNumber = &md.AccessionNumber
	}
	if md.ReferringPhysician != "" {
		st.ReferringPhysician = &md.ReferringPhysician
	}
	if d := parseDICOMDate(md.StudyDate); d != nil {
		st.StudyDate = d
	}

	if err := im.studies.Create(ctx, st); err != nil {
		if apperr.IsConflict(err) {
			// Concurrent import of the same study; reuse the winner's row.
			return im.studies.FindByPACSStudyUID(ctx, md.StudyUID)
		}
		return nil, err
	}
	return st, nil
}

func (im *Importer) importInstance(ctx context.Context, st *study.Study, ref pacs.InstanceRef) error {
	data, err := im.pacs.FetchInstanceBinary(ctx, ref.StudyUID, ref.SeriesUID, ref.SOPInstanceUID)
	if err != nil {
		return err
	}

	f := &File{
		StudyID:        st.ID,
		SOPInstanceUID: ref.SOPInstanceUID,
		SeriesUID:      ref.SeriesUID,
		ContentType:    "application/dicom",
	}
	if imd, err := im.pacs.FetchInstanceMetadata(ctx, ref.StudyUID, ref.SeriesUID, ref.SOPInstanceUID); err == nil {
		f.InstanceNumber = imd.InstanceNumber
		if imd.Modality != "" {
			f.Modality = &imd.Modality
		}
	}

	path := fmt.Sprintf("dicom/%s/%s/%s.dcm", st.PatientID, st.ID, ref.SOPInstanceUID)
	info, err := im.blobs.Put(ctx, path, "application/dicom", data)
	if err != nil {
		return err
	}
	f.StoragePath = info.Path
	f.SizeBytes = info.SizeBytes
	f.Hash = info.Hash
	f.DownloadRef = info.DownloadRef

	return im.files.Upsert(ctx, f)
}

// parseDICOMDate accepts the DICOM DA form (YYYYMMDD) and ISO dates.
func parseDICOMDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
