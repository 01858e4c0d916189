package patient

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, full_name, name_lowercase, document_number, birth_date,
	gender, phone, email, address,
	ris_mrn, imported_from_ris, last_sync_from_ris, created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.NameLowercase, &p.DocumentNumber, &p.BirthDate,
		&p.Gender, &p.Phone, &p.Email, &p.Address,
		&p.RISMrn, &p.ImportedFromRIS, &p.LastSyncFromRIS, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, full_name, name_lowercase, document_number, birth_date,
			gender, phone, email, address,
			ris_mrn, imported_from_ris, last_sync_from_ris)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.FullName, p.NameLowercase, p.DocumentNumber, p.BirthDate,
		p.Gender, p.Phone, p.Email, p.Address,
		p.RISMrn, p.ImportedFromRIS, p.LastSyncFromRIS)
	if isUniqueViolation(err) {
		return apperr.Conflict("patient with this MRN already exists")
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", id.String())
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET full_name=$2, name_lowercase=$3, document_number=$4, birth_date=$5,
			gender=$6, phone=$7, email=$8, address=$9,
			ris_mrn=$10, imported_from_ris=$11, last_sync_from_ris=$12, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FullName, p.NameLowercase, p.DocumentNumber, p.BirthDate,
		p.Gender, p.Phone, p.Email, p.Address,
		p.RISMrn, p.ImportedFromRIS, p.LastSyncFromRIS)
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) FindByExternalMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE ris_mrn = $1`, mrn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *patientRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	query := `SELECT ` + patientCols + ` FROM patients WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM patients WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["name"]; ok {
		query += fmt.Sprintf(` AND name_lowercase LIKE $%d`, idx)
		countQuery += fmt.Sprintf(` AND name_lowercase LIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}
	if p, ok := params["document"]; ok {
		query += fmt.Sprintf(` AND document_number = $%d`, idx)
		countQuery += fmt.Sprintf(` AND document_number = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["mrn"]; ok {
		query += fmt.Sprintf(` AND ris_mrn = $%d`, idx)
		countQuery += fmt.Sprintf(` AND ris_mrn = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name_lowercase LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

// isUniqueViolation reports whether err is a Postgres 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
