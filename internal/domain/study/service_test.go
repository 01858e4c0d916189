package study

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/radbridge/radbridge/internal/platform/apperr"
)

type mockStudyRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Study
}

func newMockStudyRepo() *mockStudyRepo {
	return &mockStudyRepo{items: make(map[uuid.UUID]*Study)}
}

func (m *mockStudyRepo) Create(ctx context.Context, s *Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.RISOrderID != nil {
		for _, existing := range m.items {
			if existing.RISOrderID != nil && *existing.RISOrderID == *s.RISOrderID {
				return apperr.Conflict("study with this external key already exists")
			}
		}
	}
	s.ID = uuid.New()
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockStudyRepo) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("study", id.String())
	}
	cp := *s
	return &cp, nil
}

func (m *mockStudyRepo) Update(ctx context.Context, s *Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.ID]; !ok {
		return apperr.NotFound("study", s.ID.String())
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockStudyRepo) FindByRISOrderID(ctx context.Context, orderID string) (*Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.RISOrderID != nil && *s.RISOrderID == orderID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStudyRepo) FindByPACSStudyUID(ctx context.Context, studyUID string) (*Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.PACSStudyUID != nil && *s.PACSStudyUID == studyUID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStudyRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Study, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Study
	for _, s := range m.items {
		if s.PatientID == patientID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockStudyRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Study, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Study
	for _, s := range m.items {
		if st, ok := params["status"]; ok && s.Status != st {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockReportRepo struct {
	mu      sync.Mutex
	byStudy map[uuid.UUID]*Report
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{byStudy: make(map[uuid.UUID]*Report)}
}

func (m *mockReportRepo) Upsert(ctx context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.byStudy[r.StudyID] = &cp
	return nil
}

func (m *mockReportRepo) GetByStudy(ctx context.Context, studyID uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byStudy[studyID]
	if !ok {
		return nil, apperr.NotFound("report for study", studyID.String())
	}
	cp := *r
	return &cp, nil
}

func newTestService(repo StudyRepository, reports ReportRepository) *Service {
	return NewService(repo, reports, zerolog.Nop())
}

func TestCreateStudyDefaults(t *testing.T) {
	svc := newTestService(newMockStudyRepo(), newMockReportRepo())

	st := &Study{PatientID: uuid.New()}
	if err := svc.CreateStudy(context.Background(), st); err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}
	if st.Status != "scheduled" {
		t.Errorf("expected default status scheduled, got %q", st.Status)
	}
	if st.Source != "local" {
		t.Errorf("expected default source local, got %q", st.Source)
	}
	if st.Modality != "Unknown" {
		t.Errorf("expected modality sentinel, got %q", st.Modality)
	}
}

func TestCreateStudyInvalidStatus(t *testing.T) {
	svc := newTestService(newMockStudyRepo(), newMockReportRepo())

	st := &Study{PatientID: uuid.New(), Status: "pending"}
	if err := svc.CreateStudy(context.Background(), st); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for external vocabulary, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	repo := newMockStudyRepo()
	svc := newTestService(repo, newMockReportRepo())
	st := &Study{PatientID: uuid.New()}
	if err := svc.CreateStudy(context.Background(), st); err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), st.ID, "in-progress")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != "in-progress" {
		t.Errorf("expected in-progress, got %q", updated.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), st.ID, "bogus"); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), uuid.New(), "completed"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSaveReportRequiresText(t *testing.T) {
	svc := newTestService(newMockStudyRepo(), newMockReportRepo())

	err := svc.SaveReport(context.Background(), &Report{StudyID: uuid.New(), ReportText: "  "})
	if !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSaveFinalReportMarksStudyReported(t *testing.T) {
	repo := newMockStudyRepo()
	svc := newTestService(repo, newMockReportRepo())
	st := &Study{PatientID: uuid.New(), Status: "completed", Source: "pacs", Modality: "CT"}
	if err := svc.CreateStudy(context.Background(), st); err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}

	rep := &Report{StudyID: st.ID, ReportText: "No acute findings.", Status: "final"}
	if err := svc.SaveReport(context.Background(), rep); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	got, err := svc.GetStudy(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetStudy failed: %v", err)
	}
	if got.Status != "reported" {
		t.Errorf("expected study reported after final report, got %q", got.Status)
	}
	if rep.ReportDate == nil {
		t.Error("expected report date to be stamped")
	}
}

func TestSaveDraftReportKeepsStudyStatus(t *testing.T) {
	repo := newMockStudyRepo()
	svc := newTestService(repo, newMockReportRepo())
	st := &Study{PatientID: uuid.New(), Status: "completed", Source: "pacs", Modality: "MR"}
	if err := svc.CreateStudy(context.Background(), st); err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}

	if err := svc.SaveReport(context.Background(), &Report{StudyID: st.ID, ReportText: "wip"}); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	got, err := svc.GetStudy(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetStudy failed: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("draft must not change study status, got %q", got.Status)
	}
}

func TestSaveReportReplacesEarlierDraft(t *testing.T) {
	repo := newMockStudyRepo()
	reports := newMockReportRepo()
	svc := newTestService(repo, reports)
	st := &Study{PatientID: uuid.New(), Status: "completed", Source: "pacs", Modality: "CT"}
	if err := svc.CreateStudy(context.Background(), st); err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}

	if err := svc.SaveReport(context.Background(), &Report{StudyID: st.ID, ReportText: "draft one"}); err != nil {
		t.Fatalf("first SaveReport failed: %v", err)
	}
	if err := svc.SaveReport(context.Background(), &Report{StudyID: st.ID, ReportText: "final text", Status: "final"}); err != nil {
		t.Fatalf("second SaveReport failed: %v", err)
	}

	rep, err := svc.GetReport(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if rep.ReportText != "final text" {
		t.Errorf("expected the replacement report, got %q", rep.ReportText)
	}
}

func TestGetReportNotFound(t *testing.T) {
	svc := newTestService(newMockStudyRepo(), newMockReportRepo())

	if _, err := svc.GetReport(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
