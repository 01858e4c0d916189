package study

import (
	"time"

	"github.com/google/uuid"
)

// Study maps to the studies table. A study can originate from the RIS order
// feed (RISOrderID set), from a PACS import (PACSStudyUID set), or be
// registered locally; both external keys are unique when present.
type Study struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	RISOrderID         *string    `db:"ris_order_id" json:"ris_order_id,omitempty"`
	PACSStudyUID       *string    `db:"pacs_study_uid" json:"pacs_study_uid,omitempty"`
	AccessionNumber    *string    `db:"accession_number" json:"accession_number,omitempty"`
	Modality           string     `db:"modality" json:"modality"`
	Description        *string    `db:"description" json:"description,omitempty"`
	StudyDate          *time.Time `db:"study_date" json:"study_date,omitempty"`
	Status             string     `db:"status" json:"status"`
	Priority           *string    `db:"priority" json:"priority,omitempty"`
	ReferringPhysician *string    `db:"referring_physician" json:"referring_physician,omitempty"`
	Details            *string    `db:"details" json:"details,omitempty"`
	Source             string     `db:"source" json:"source"`
	InstanceCount      int        `db:"instance_count" json:"instance_count"`
	ImportComplete     bool       `db:"import_complete" json:"import_complete"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Report maps to the reports table. A study carries at most one report; a
// second save replaces the first.
type Report struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	StudyID            uuid.UUID  `db:"study_id" json:"study_id"`
	ReportText         string     `db:"report_text" json:"report_text"`
	Impression         *string    `db:"impression" json:"impression,omitempty"`
	ReportingPhysician *string    `db:"reporting_physician" json:"reporting_physician,omitempty"`
	Status             string     `db:"status" json:"status"`
	ReportDate         *time.Time `db:"report_date" json:"report_date,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
