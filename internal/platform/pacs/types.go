package pacs

import (
	"encoding/json"
	"strconv"
)

// DICOM tags used by the import pipeline, in DICOMweb JSON keyword form.
const (
	tagSOPInstanceUID   = "00080018"
	tagStudyDate        = "00080020"
	tagAccessionNumber  = "00080050"
	tagModality         = "00080060"
	tagReferringName    = "00080090"
	tagStudyDescription = "00081030"
	tagStudyUID         = "0020000D"
	tagSeriesUID        = "0020000E"
	tagInstanceNumber   = "00200013"
)

// UnknownModality is the sentinel recorded when a study's metadata carries no
// modality. Stored explicitly so it is never confused with a missing value.
const UnknownModality = "Unknown"

// StudyRef identifies a study found by a QIDO search.
type StudyRef struct {
	StudyUID        string `json:"study_uid"`
	StudyDate       string `json:"study_date"`
	Description     string `json:"description"`
	Modality        string `json:"modality"`
	AccessionNumber string `json:"accession_number"`
}

// StudyMetadata is the study-level subset of the metadata document.
type StudyMetadata struct {
	StudyUID           string `json:"study_uid"`
	Modality           string `json:"modality"`
	StudyDate          string `json:"study_date"`
	Description        string `json:"description"`
	ReferringPhysician string `json:"referring_physician"`
	AccessionNumber    string `json:"accession_number"`
}

// InstanceRef identifies one instance within a study.
type InstanceRef struct {
	StudyUID       string `json:"study_uid"`
	SeriesUID      string `json:"series_uid"`
	SOPInstanceUID string `json:"sop_instance_uid"`
}

// InstanceMetadata is the per-instance subset recorded on File rows.
type InstanceMetadata struct {
	Modality       string `json:"modality"`
	InstanceNumber int    `json:"instance_number"`
}

// element is one attribute of a DICOMweb JSON dataset.
type element struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value"`
}

// dataset is a DICOMweb JSON attribute map keyed by tag.
type dataset map[string]element

// str returns the first value of the tag as a string. Handles plain strings,
// numbers, and PN objects ({"Alphabetic": "..."}).
func (d dataset) str(tag string) string {
	el, ok := d[tag]
	if !ok || len(el.Value) == 0 {
		return ""
	}
	raw := el.Value[0]

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var pn struct {
		Alphabetic string `json:"Alphabetic"`
	}
	if err := json.Unmarshal(raw, &pn); err == nil && pn.Alphabetic != "" {
		return pn.Alphabetic
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// intval returns the first value of the tag as an int, or 0.
func (d dataset) intval(tag string) int {
	s := d.str(tag)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
