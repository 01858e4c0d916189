package imaging

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radbridge/radbridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type fileRepoPG struct{ pool *pgxpool.Pool }

func NewFileRepoPG(pool *pgxpool.Pool) FileRepository {
	return &fileRepoPG{pool: pool}
}

func (r *fileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const fileCols = `id, study_id, sop_instance_uid, series_uid, instance_number,
	modality, content_type, storage_path, size_bytes, hash, download_ref, created_at`

func (r *fileRepoPG) Upsert(ctx context.Context, f *File) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO study_files (id, study_id, sop_instance_uid, series_uid, instance_number,
			modality, content_type, storage_path, size_bytes, hash, download_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (study_id, sop_instance_uid) DO UPDATE SET
			series_uid = EXCLUDED.series_uid,
			instance_number = EXCLUDED.instance_number,
			modality = EXCLUDED.modality,
			content_type = EXCLUDED.content_type,
			storage_path = EXCLUDED.storage_path,
			size_bytes = EXCLUDED.size_bytes,
			hash = EXCLUDED.hash,
			download_ref = EXCLUDED.download_ref`,
		f.ID, f.StudyID, f.SOPInstanceUID, f.SeriesUID, f.InstanceNumber,
		f.Modality, f.ContentType, f.StoragePath, f.SizeBytes, f.Hash, f.DownloadRef)
	return err
}

func (r *fileRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*File, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+fileCols+` FROM study_files
		WHERE study_id = $1 ORDER BY series_uid, instance_number`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.StudyID, &f.SOPInstanceUID, &f.SeriesUID, &f.InstanceNumber,
			&f.Modality, &f.ContentType, &f.StoragePath, &f.SizeBytes, &f.Hash, &f.DownloadRef,
			&f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &f)
	}
	return items, nil
}

func (r *fileRepoPG) CountByStudy(ctx context.Context, studyID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM study_files WHERE study_id = $1`, studyID).Scan(&n)
	return n, err
}
