package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. RISMrn is the external medical record
// number carried by the RIS; it is unique when present but most locally
// registered patients never have one.
type Patient struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	FullName        string     `db:"full_name" json:"full_name"`
	NameLowercase   string     `db:"name_lowercase" json:"-"`
	DocumentNumber  *string    `db:"document_number" json:"document_number,omitempty"`
	BirthDate       *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender          *string    `db:"gender" json:"gender,omitempty"`
	Phone           *string    `db:"phone" json:"phone,omitempty"`
	Email           *string    `db:"email" json:"email,omitempty"`
	Address         *string    `db:"address" json:"address,omitempty"`
	RISMrn          *string    `db:"ris_mrn" json:"ris_mrn,omitempty"`
	ImportedFromRIS bool       `db:"imported_from_ris" json:"imported_from_ris"`
	LastSyncFromRIS *time.Time `db:"last_sync_from_ris" json:"last_sync_from_ris,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
