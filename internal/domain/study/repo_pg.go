package study

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radbridge/radbridge/internal/platform/apperr"
	"github.com/radbridge/radbridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type studyRepoPG struct{ pool *pgxpool.Pool }

func NewStudyRepoPG(pool *pgxpool.Pool) StudyRepository {
	return &studyRepoPG{pool: pool}
}

func (r *studyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const studyCols = `id, patient_id, ris_order_id, pacs_study_uid, accession_number,
	modality, description, study_date, status, priority,
	referring_physician, details, source, instance_count, import_complete,
	created_at, updated_at`

func (r *studyRepoPG) scanRow(row pgx.Row) (*Study, error) {
	var s Study
	err := row.Scan(&s.ID, &s.PatientID, &s.RISOrderID, &s.PACSStudyUID, &s.AccessionNumber,
		&s.Modality, &s.Description, &s.StudyDate, &s.Status, &s.Priority,
		&s.ReferringPhysician, &s.Details, &s.Source, &s.InstanceCount, &s.ImportComplete,
		&s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *studyRepoPG) Create(ctx context.Context, s *Study) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO studies (id, patient_id, ris_order_id, pacs_study_uid, accession_number,
			modality, description, study_date, status, priority,
			referring_physician, details, source, instance_count, import_complete)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.ID, s.PatientID, s.RISOrderID, s.PACSStudyUID, s.AccessionNumber,
		s.Modality, s.Description, s.StudyDate, s.Status, s.Priority,
		s.ReferringPhysician, s.Details, s.Source, s.InstanceCount, s.ImportComplete)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflict("study with this external key already exists")
		case "23503":
			return apperr.NotFound("patient", s.PatientID.String())
		}
	}
	return err
}

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	s, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM studies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("study", id.String())
	}
	return s, err
}

func (r *studyRepoPG) Update(ctx context.Context, s *Study) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE studies SET patient_id=$2, ris_order_id=$3, pacs_study_uid=$4, accession_number=$5,
			modality=$6, description=$7, study_date=$8, status=$9, priority=$10,
			referring_physician=$11, details=$12, source=$13,
			instance_count=$14, import_complete=$15, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.PatientID, s.RISOrderID, s.PACSStudyUID, s.AccessionNumber,
		s.Modality, s.Description, s.StudyDate, s.Status, s.Priority,
		s.ReferringPhysician, s.Details, s.Source, s.InstanceCount, s.ImportComplete)
	return err
}

func (r *studyRepoPG) FindByRISOrderID(ctx context.Context, orderID string) (*Study, error) {
	s, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+studyCols+` FROM studies WHERE ris_order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *studyRepoPG) FindByPACSStudyUID(ctx context.Context, studyUID string) (*Study, error) {
	s, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+studyCols+` FROM studies WHERE pacs_study_uid = $1`, studyUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *studyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Study, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM studies WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+studyCols+` FROM studies
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Study
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

func (r *studyRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Study, int, error) {
	query := `SELECT ` + studyCols + ` FROM studies WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM studies WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["modality"]; ok {
		query += fmt.Sprintf(` AND modality = $%d`, idx)
		countQuery += fmt.Sprintf(` AND modality = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["source"]; ok {
		query += fmt.Sprintf(` AND source = $%d`, idx)
		countQuery += fmt.Sprintf(` AND source = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Study
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reportCols = `id, study_id, report_text, impression, reporting_physician,
	status, report_date, created_at, updated_at`

func (r *reportRepoPG) Upsert(ctx context.Context, rep *Report) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reports (id, study_id, report_text, impression, reporting_physician, status, report_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (study_id) DO UPDATE SET
			report_text = EXCLUDED.report_text,
			impression = EXCLUDED.impression,
			reporting_physician = EXCLUDED.reporting_physician,
			status = EXCLUDED.status,
			report_date = EXCLUDED.report_date,
			updated_at = NOW()`,
		rep.ID, rep.StudyID, rep.ReportText, rep.Impression, rep.ReportingPhysician,
		rep.Status, rep.ReportDate)
	return err
}

func (r *reportRepoPG) GetByStudy(ctx context.Context, studyID uuid.UUID) (*Report, error) {
	var rep Report
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+reportCols+` FROM reports WHERE study_id = $1`, studyID).
		Scan(&rep.ID, &rep.StudyID, &rep.ReportText, &rep.Impression, &rep.ReportingPhysician,
			&rep.Status, &rep.ReportDate, &rep.CreatedAt, &rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("report for study", studyID.String())
	}
	return &rep, err
}
