package imaging

import (
	"time"

	"github.com/google/uuid"
)

// File maps to the study_files table: one stored DICOM instance. The pair
// (StudyID, SOPInstanceUID) is unique, so re-importing a study overwrites
// rather than duplicates.
type File struct {
	ID             uuid.UUID `db:"id" json:"id"`
	StudyID        uuid.UUID `db:"study_id" json:"study_id"`
	SOPInstanceUID string    `db:"sop_instance_uid" json:"sop_instance_uid"`
	SeriesUID      string    `db:"series_uid" json:"series_uid"`
	InstanceNumber int       `db:"instance_number" json:"instance_number"`
	Modality       *string   `db:"modality" json:"modality,omitempty"`
	ContentType    string    `db:"content_type" json:"content_type"`
	StoragePath    string    `db:"storage_path" json:"storage_path"`
	SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
	Hash           string    `db:"hash" json:"hash"`
	DownloadRef    string    `db:"download_ref" json:"download_ref"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ImportResult summarizes one study import. Failed lists the SOP instance
// UIDs that could not be fetched or stored; the rest of the study is intact,
// so a later import need only retry those.
type ImportResult struct {
	StudyID        uuid.UUID `json:"study_id"`
	InstanceCount  int       `json:"instance_count"`
	ImportComplete bool      `json:"import_complete"`
	Failed         []string  `json:"failed,omitempty"`
}
