// Package ordersync reconciles the RIS order feed with local studies. One
// run pulls the pending orders, matches each order to a study by its RIS
// order id (resolving the order's patient when the study is new), and
// records a write-once summary row. Order failures are isolated; only a
// failure to reach the feed itself aborts a run.
package ordersync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/radbridge/radbridge/internal/domain/patient"
	"github.com/radbridge/radbridge/internal/domain/study"
	"github.com/radbridge/radbridge/internal/platform/apperr"
	"github.com/radbridge/radbridge/internal/platform/ris"
)

// RISGateway is the slice of the RIS client the reconciler needs.
type RISGateway interface {
	FetchPendingOrders(ctx context.Context, limit int) ([]ris.Order, error)
	PostReport(ctx context.Context, report ris.ReportSubmission) (*ris.ReportAck, error)
	PatchOrderStatus(ctx context.Context, orderID, status string) error
}

// PatientResolver returns the local patient for a RIS MRN, importing the
// demographics when the patient is new. Satisfied by the patient service.
type PatientResolver interface {
	ResolveByMRN(ctx context.Context, mrn string) (*patient.Patient, error)
}

type Service struct {
	ris        RISGateway
	patients   PatientResolver
	studies    study.StudyRepository
	reports    study.ReportRepository
	logs       SyncLogRepository
	mapper     *StatusMapper
	workers    int
	orderLimit int
	logger     zerolog.Logger
}

func NewService(gw RISGateway, patients PatientResolver, studies study.StudyRepository,
	reports study.ReportRepository, logs SyncLogRepository, mapper *StatusMapper,
	workers, orderLimit int, logger zerolog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if orderLimit < 1 {
		orderLimit = 100
	}
	return &Service{
		ris:        gw,
		patients:   patients,
		studies:    studies,
		reports:    reports,
		logs:       logs,
		mapper:     mapper,
		workers:    workers,
		orderLimit: orderLimit,
		logger:     logger.With().Str("component", "ordersync").Logger(),
	}
}

// SyncPendingOrders runs one reconciliation pass. The run is idempotent:
// orders are keyed by their RIS order id, so a second pass over the same feed
// updates studies instead of duplicating them.
func (s *Service) SyncPendingOrders(ctx context.Context) (*SyncResult, error) {
	started := time.Now().UTC()

	orders, err := s.ris.FetchPendingOrders(ctx, s.orderLimit)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Total: len(orders)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, order := range orders {
		order := order
		g.Go(func() error {
			created, err := s.reconcileOrder(gctx, order)
			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if err != nil {
				s.logger.Warn().Err(err).Str("order_id", order.OrderID).Msg("order reconciliation failed")
				result.Failed++
				result.Errors = append(result.Errors, SyncError{OrderID: order.OrderID, Reason: err.Error()})
				return nil
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := &SyncLog{
		Kind:       "ris-orders",
		Total:      result.Total,
		Processed:  result.Processed,
		Created:    result.Created,
		Updated:    result.Updated,
		Failed:     result.Failed,
		Errors:     result.Errors,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist sync log")
	}

	s.logger.Info().
		Int("total", result.Total).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("order sync finished")
	return result, nil
}

// reconcileOrder lands one order as a study. Returns whether a new study was
// created as opposed to an existing one refreshed.
func (s *Service) reconcileOrder(ctx context.Context, order ris.Order) (bool, error) {
	if order.OrderID == "" {
		return false, apperr.Validation("order has no id")
	}
	if order.PatientMRN == "" {
		return false, apperr.Validation("order %s has no patient mrn", order.OrderID)
	}

	existing, err := s.studies.FindByRISOrderID(ctx, order.OrderID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		// The order was materialized by an earlier run; refresh its fields
		// without touching the patient link.
		s.applyOrder(existing, order, existing.PatientID)
		return false, s.studies.Update(ctx, existing)
	}

	p, err := s.patients.ResolveByMRN(ctx, order.PatientMRN)
	if err != nil {
		return false, err
	}

	st := &study.Study{Source: "ris"}
	orderID := order.OrderID
	st.RISOrderID = &orderID
	s.applyOrder(st, order, p.ID)
	if err := s.studies.Create(ctx, st); err != nil {
		if apperr.IsConflict(err) {
			// A concurrent run inserted the study first; refresh that row.
			winner, ferr := s.studies.FindByRISOrderID(ctx, order.OrderID)
			if ferr != nil || winner == nil {
				return false, err
			}
			s.applyOrder(winner, order, winner.PatientID)
			return false, s.studies.Update(ctx, winner)
		}
		return false, err
	}
	return true, nil
}

func (s *Service) applyOrder(st *study.Study, order ris.Order, patientID uuid.UUID) {
	st.PatientID = patientID
	st.Status = s.mapper.ToLocal(order.Status)
	st.Modality = order.Modality
	if st.Modality == "" {
		st.Modality = "Unknown"
	}
	if order.AccessionNumber != "" {
		st.AccessionNumber = &order.AccessionNumber
	}
	if order.Description != "" {
		st.Description = &order.Description
	}
	if order.Priority != "" {
		st.Priority = &order.Priority
	}
	if order.ReferringPhysician != "" {
		st.ReferringPhysician = &order.ReferringPhysician
	}
	if order.Details != "" {
		st.Details = &order.Details
	}
	if t, err := time.Parse(time.RFC3339, order.ScheduledDate); err == nil {
		st.StudyDate = &t
	}
}

// SendResults pushes a study's report back to the RIS and marks the order
// reported on both sides.
func (s *Service) SendResults(ctx context.Context, studyID uuid.UUID) error {
	st, err := s.studies.GetByID(ctx, studyID)
	if err != nil {
		return err
	}
	if st.RISOrderID == nil {
		return apperr.Validation("study %s is not linked to a ris order", studyID)
	}
	rep, err := s.reports.GetByStudy(ctx, studyID)
	if err != nil {
		return err
	}

	submission := ris.ReportSubmission{
		OrderID:    *st.RISOrderID,
		ReportText: rep.ReportText,
		Status:     rep.Status,
	}
	if st.AccessionNumber != nil {
		submission.AccessionNumber = *st.AccessionNumber
	}
	if rep.Impression != nil {
		submission.Impression = *rep.Impression
	}
	if rep.ReportingPhysician != nil {
		submission.ReportingPhysician = *rep.ReportingPhysician
	}
	if rep.ReportDate != nil {
		submission.ReportDate = rep.ReportDate.Format(time.RFC3339)
	}

	ack, err := s.ris.PostReport(ctx, submission)
	if err != nil {
		return err
	}
	if err := s.ris.PatchOrderStatus(ctx, *st.RISOrderID, s.mapper.ToRIS("reported")); err != nil {
		return err
	}

	if st.Status != "reported" {
		st.Status = "reported"
		if err := s.studies.Update(ctx, st); err != nil {
			return err
		}
	}
	s.logger.Info().Str("study_id", studyID.String()).Str("ris_report_id", ack.ReportID).Msg("results sent to ris")
	return nil
}

// PushOrderStatus propagates a study's local status to its RIS order.
func (s *Service) PushOrderStatus(ctx context.Context, studyID uuid.UUID) error {
	st, err := s.studies.GetByID(ctx, studyID)
	if err != nil {
		return err
	}
	if st.RISOrderID == nil {
		return apperr.Validation("study %s is not linked to a ris order", studyID)
	}
	return s.ris.PatchOrderStatus(ctx, *st.RISOrderID, s.mapper.ToRIS(st.Status))
}

// ListLogs returns past reconciliation runs, newest first.
func (s *Service) ListLogs(ctx context.Context, limit, offset int) ([]*SyncLog, int, error) {
	return s.logs.List(ctx, limit, offset)
}
