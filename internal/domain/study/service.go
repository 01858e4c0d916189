package study

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/radbridge/radbridge/internal/platform/apperr"
)

// Local study lifecycle. External RIS and DICOM vocabularies are translated
// at the sync boundary; nothing outside this set is ever persisted.
var validStudyStatuses = map[string]bool{
	"scheduled": true, "in-progress": true, "completed": true,
	"reported": true, "cancelled": true,
}

var validReportStatuses = map[string]bool{
	"draft": true, "final": true,
}

var validSources = map[string]bool{
	"ris": true, "pacs": true, "local": true,
}

type Service struct {
	repo    StudyRepository
	reports ReportRepository
	logger  zerolog.Logger
}

func NewService(repo StudyRepository, reports ReportRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		reports: reports,
		logger:  logger.With().Str("component", "study").Logger(),
	}
}

func (s *Service) CreateStudy(ctx context.Context, st *Study) error {
	if st.Status == "" {
		st.Status = "scheduled"
	}
	if st.Source == "" {
		st.Source = "local"
	}
	if st.Modality == "" {
		st.Modality = "Unknown"
	}
	if err := s.validate(st); err != nil {
		return err
	}
	return s.repo.Create(ctx, st)
}

func (s *Service) GetStudy(ctx context.Context, id uuid.UUID) (*Study, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateStudy(ctx context.Context, st *Study) error {
	if err := s.validate(st); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, st.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, st)
}

// UpdateStatus moves a study through its lifecycle without touching the rest
// of the row.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Study, error) {
	if !validStudyStatuses[status] {
		return nil, apperr.Validation("invalid status: %s", status)
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Status = status
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) FindByRISOrderID(ctx context.Context, orderID string) (*Study, error) {
	return s.repo.FindByRISOrderID(ctx, orderID)
}

func (s *Service) FindByPACSStudyUID(ctx context.Context, studyUID string) (*Study, error) {
	return s.repo.FindByPACSStudyUID(ctx, studyUID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Study, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) SearchStudies(ctx context.Context, params map[string]string, limit, offset int) ([]*Study, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// SaveReport writes the study's report, replacing any earlier draft. A final
// report moves the study to "reported".
func (s *Service) SaveReport(ctx context.Context, rep *Report) error {
	if strings.TrimSpace(rep.ReportText) == "" {
		return apperr.Validation("report text is required")
	}
	if rep.Status == "" {
		rep.Status = "draft"
	}
	if !validReportStatuses[rep.Status] {
		return apperr.Validation("invalid report status: %s", rep.Status)
	}
	st, err := s.repo.GetByID(ctx, rep.StudyID)
	if err != nil {
		return err
	}
	if rep.ReportDate == nil {
		now := time.Now().UTC()
		rep.ReportDate = &now
	}
	if err := s.reports.Upsert(ctx, rep); err != nil {
		return err
	}
	if rep.Status == "final" && st.Status != "reported" {
		st.Status = "reported"
		if err := s.repo.Update(ctx, st); err != nil {
			return err
		}
		s.logger.Info().Str("study_id", st.ID.String()).Msg("study reported")
	}
	return nil
}

func (s *Service) GetReport(ctx context.Context, studyID uuid.UUID) (*Report, error) {
	return s.reports.GetByStudy(ctx, studyID)
}

func (s *Service) validate(st *Study) error {
	if st.PatientID == uuid.Nil {
		return apperr.Validation("patient id is required")
	}
	if !validStudyStatuses[st.Status] {
		return apperr.Validation("invalid status: %s", st.Status)
	}
	if !validSources[st.Source] {
		return apperr.Validation("invalid source: %s", st.Source)
	}
	return nil
}
