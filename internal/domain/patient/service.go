package patient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/radbridge/radbridge/internal/platform/apperr"
	"github.com/radbridge/radbridge/internal/platform/ris"
)

// DemographicsFetcher is the slice of the RIS client the resolver needs.
type DemographicsFetcher interface {
	FetchPatient(ctx context.Context, mrn string) (*ris.PatientDTO, error)
}

type Service struct {
	repo   PatientRepository
	ris    DemographicsFetcher
	logger zerolog.Logger

	mu       sync.Mutex
	mrnLocks map[string]*sync.Mutex
}

func NewService(repo PatientRepository, fetcher DemographicsFetcher, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		ris:      fetcher,
		logger:   logger.With().Str("component", "patient").Logger(),
		mrnLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return apperr.Validation("full name is required")
	}
	p.NameLowercase = strings.ToLower(p.FullName)
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return apperr.Validation("full name is required")
	}
	p.NameLowercase = strings.ToLower(p.FullName)
	if _, err := s.repo.GetByID(ctx, p.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	if name, ok := params["name"]; ok {
		params["name"] = strings.ToLower(name)
	}
	return s.repo.Search(ctx, params, limit, offset)
}

// ResolveByMRN returns the local patient for a RIS MRN, creating one from RIS
// demographics when none exists. Concurrent calls for the same MRN serialize
// on a per-MRN lock so the patient is created exactly once; the unique index
// on ris_mrn backstops races across processes.
func (s *Service) ResolveByMRN(ctx context.Context, mrn string) (*Patient, error) {
	mrn = strings.TrimSpace(mrn)
	if mrn == "" {
		return nil, apperr.Validation("mrn is required")
	}

	if p, err := s.repo.FindByExternalMRN(ctx, mrn); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	lock := s.lockFor(mrn)
	lock.Lock()
	defer lock.Unlock()

	// Another resolver may have created the patient while we waited.
	if p, err := s.repo.FindByExternalMRN(ctx, mrn); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	dto, err := s.ris.FetchPatient(ctx, mrn)
	if err != nil {
		return nil, err
	}

	p := patientFromDTO(mrn, dto)
	if err := s.repo.Create(ctx, p); err != nil {
		if apperr.IsConflict(err) {
			// Lost the cross-process race; the winner's row is authoritative.
			return s.repo.FindByExternalMRN(ctx, mrn)
		}
		return nil, err
	}

	s.logger.Info().Str("mrn", mrn).Str("patient_id", p.ID.String()).Msg("patient imported from ris")
	return p, nil
}

func (s *Service) lockFor(mrn string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.mrnLocks[mrn]
	if !ok {
		l = &sync.Mutex{}
		s.mrnLocks[mrn] = l
	}
	return l
}

func patientFromDTO(mrn string, dto *ris.PatientDTO) *Patient {
	now := time.Now().UTC()
	p := &Patient{
		FullName:        dto.FullName,
		NameLowercase:   strings.ToLower(dto.FullName),
		RISMrn:          &mrn,
		ImportedFromRIS: true,
		LastSyncFromRIS: &now,
	}
	if p.FullName == "" {
		p.FullName = "RIS Patient " + mrn
		p.NameLowercase = strings.ToLower(p.FullName)
	}
	if dto.DocumentNumber != "" {
		p.DocumentNumber = &dto.DocumentNumber
	}
	if dto.Gender != "" {
		p.Gender = &dto.Gender
	}
	if dto.Phone != "" {
		p.Phone = &dto.Phone
	}
	if dto.Email != "" {
		p.Email = &dto.Email
	}
	if dto.Address != "" {
		p.Address = &dto.Address
	}
	if bd := parseBirthDate(dto.BirthDate); bd != nil {
		p.BirthDate = bd
	}
	return p
}

func parseBirthDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
