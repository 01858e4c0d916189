package ris

// Order is a pending work order as returned by the RIS order feed.
type Order struct {
	OrderID            string `json:"orderId"`
	PatientMRN         string `json:"patientMrn"`
	AccessionNumber    string `json:"accessionNumber"`
	Modality           string `json:"modality"`
	Description        string `json:"description"`
	ScheduledDate      string `json:"scheduledDate"` // RFC 3339
	Status             string `json:"status"`
	Priority           string `json:"priority"`
	ReferringPhysician string `json:"referringPhysician"`
	Details            string `json:"details"`
}

// PatientDTO carries the demographics the RIS holds for an MRN.
type PatientDTO struct {
	FullName       string `json:"fullName"`
	DocumentNumber string `json:"documentNumber"`
	BirthDate      string `json:"birthDate"` // RFC 3339 or YYYY-MM-DD
	Gender         string `json:"gender"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
}

// ReportSubmission is the payload posted back to the RIS when a study has
// been reported.
type ReportSubmission struct {
	OrderID            string `json:"orderId"`
	AccessionNumber    string `json:"accessionNumber"`
	ReportText         string `json:"reportText"`
	Impression         string `json:"impression"`
	ReportingPhysician string `json:"reportingPhysician"`
	ReportDate         string `json:"reportDate"`
	Status             string `json:"status"`
}

// ReportAck acknowledges a posted report.
type ReportAck struct {
	ReportID string `json:"reportId"`
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}

type patientResponse struct {
	Patient PatientDTO `json:"patient"`
}
