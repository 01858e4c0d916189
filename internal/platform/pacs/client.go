// Package pacs is the DICOMweb client for the Picture Archiving and
// Communication System: QIDO study search and WADO metadata/instance
// retrieval. The retry policy mirrors the RIS client: capped exponential
// backoff on transient failures, terminal after exhaustion.
package pacs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/radbridge/radbridge/internal/platform/apperr"
)

// Client manages communication with the PACS DICOMweb API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	maxRetries uint64
	logger     zerolog.Logger
}

// NewClient creates a PACS client with a bounded request timeout.
func NewClient(baseURL, authToken string, timeout time.Duration, maxRetries int, logger zerolog.Logger) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		logger:     logger.With().Str("component", "pacs").Logger(),
	}
}

// SearchStudies queries studies for a patient's external identifier.
func (c *Client) SearchStudies(ctx context.Context, patientExternalID string) ([]StudyRef, error) {
	q := url.Values{}
	q.Set("PatientID", patientExternalID)

	var datasets []dataset
	if err := c.getJSON(ctx, "/studies?"+q.Encode(), &datasets); err != nil {
		if apperr.IsNotFound(err) {
			// QIDO returns 404 for an unknown patient; treat as no matches.
			return nil, nil
		}
		return nil, apperr.External("pacs", "search studies", err)
	}

	refs := make([]StudyRef, 0, len(datasets))
	for _, ds := range datasets {
		refs = append(refs, StudyRef{
			StudyUID:        ds.str(tagStudyUID),
			StudyDate:       ds.str(tagStudyDate),
			Description:     ds.str(tagStudyDescription),
			Modality:        ds.str(tagModality),
			AccessionNumber: ds.str(tagAccessionNumber),
		})
	}
	return refs, nil
}

// FetchStudyMetadata retrieves the study-level metadata for a study UID.
func (c *Client) FetchStudyMetadata(ctx context.Context, studyUID string) (*StudyMetadata, error) {
	var datasets []dataset
	path := "/studies/" + url.PathEscape(studyUID) + "/metadata"
	if err := c.getJSON(ctx, path, &datasets); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("pacs study", studyUID)
		}
		return nil, apperr.External("pacs", fmt.Sprintf("fetch metadata for study %s", studyUID), err)
	}
	if len(datasets) == 0 {
		return nil, apperr.External("pacs", fmt.Sprintf("fetch metadata for study %s", studyUID),
			fmt.Errorf("empty metadata document"))
	}

	ds := datasets[0]
	md := &StudyMetadata{
		StudyUID:           studyUID,
		Modality:           ds.str(tagModality),
		StudyDate:          ds.str(tagStudyDate),
		Description:        ds.str(tagStudyDescription),
		ReferringPhysician: ds.str(tagReferringName),
		AccessionNumber:    ds.str(tagAccessionNumber),
	}
	if md.Modality == "" {
		md.Modality = UnknownModality
	}
	return md, nil
}

// FetchStudyInstances lists all instances of a study.
func (c *Client) FetchStudyInstances(ctx context.Context, studyUID string) ([]InstanceRef, error) {
	var datasets []dataset
	path := "/studies/" + url.PathEscape(studyUID) + "/instances"
	if err := c.getJSON(ctx, path, &datasets); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("pacs study", studyUID)
		}
		return nil, apperr.External("pacs", fmt.Sprintf("fetch instances for study %s", studyUID), err)
	}

	refs := make([]InstanceRef, 0, len(datasets))
	for _, ds := range datasets {
		ref := InstanceRef{
			StudyUID:       ds.str(tagStudyUID),
			SeriesUID:      ds.str(tagSeriesUID),
			SOPInstanceUID: ds.str(tagSOPInstanceUID),
		}
		if ref.StudyUID == "" {
			ref.StudyUID = studyUID
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// FetchInstanceBinary retrieves the raw DICOM payload of one instance.
func (c *Client) FetchInstanceBinary(ctx context.Context, studyUID, seriesUID, sopUID string) ([]byte, error) {
	path := instancePath(studyUID, seriesUID, sopUID)

	var data []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setHeaders(req)
		req.Header.Set("Accept", "application/dicom")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("request failed, will retry")
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read instance body: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(apperr.NotFound("pacs instance", sopUID))
		case resp.StatusCode >= 500:
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("server error, will retry")
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		if apperr.IsNotFound(err) {
			return nil, err
		}
		return nil, apperr.External("pacs", fmt.Sprintf("fetch instance %s", sopUID), err)
	}
	return data, nil
}

// FetchInstanceMetadata retrieves per-instance metadata.
func (c *Client) FetchInstanceMetadata(ctx context.Context, studyUID, seriesUID, sopUID string) (*InstanceMetadata, error) {
	var datasets []dataset
	path := instancePath(studyUID, seriesUID, sopUID) + "/metadata"
	if err := c.getJSON(ctx, path, &datasets); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("pacs instance", sopUID)
		}
		return nil, apperr.External("pacs", fmt.Sprintf("fetch metadata for instance %s", sopUID), err)
	}
	if len(datasets) == 0 {
		return &InstanceMetadata{}, nil
	}

	ds := datasets[0]
	return &InstanceMetadata{
		Modality:       ds.str(tagModality),
		InstanceNumber: ds.intval(tagInstanceNumber),
	}, nil
}

func instancePath(studyUID, seriesUID, sopUID string) string {
	return "/studies/" + url.PathEscape(studyUID) +
		"/series/" + url.PathEscape(seriesUID) +
		"/instances/" + url.PathEscape(sopUID)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// getJSON performs one GET with retry and decodes a DICOMweb JSON response.
// A 204 is decoded as an empty result set.
func (c *Client) getJSON(ctx context.Context, path string, out *[]dataset) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setHeaders(req)
		req.Header.Set("Accept", "application/dicom+json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("request failed, will retry")
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusNoContent:
			*out = nil
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(apperr.NotFound("pacs resource", path))
		case resp.StatusCode >= 500:
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("server error, will retry")
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
		}
	}

	return backoff.Retry(op, c.newBackOff(ctx))
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0 // capped by retry count, not wall clock
	return backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)
}
