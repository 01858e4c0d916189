// Package ris is the HTTP client for the Radiology Information System: the
// order feed, patient demographics, report submission, and order status
// updates. Transient failures are retried with capped exponential backoff;
// after exhaustion the call fails with an ExternalServiceError for that unit
// of work only.
package ris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/radbridge/radbridge/internal/platform/apperr"
)

// Client manages communication with the RIS REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
	logger     zerolog.Logger
}

// NewClient creates a RIS client with a bounded request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int, logger zerolog.Logger) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		logger:     logger.With().Str("component", "ris").Logger(),
	}
}

// FetchPendingOrders retrieves up to limit pending work orders.
func (c *Client) FetchPendingOrders(ctx context.Context, limit int) ([]Order, error) {
	q := url.Values{}
	q.Set("status", "pending")
	q.Set("limit", strconv.Itoa(limit))

	var out ordersResponse
	if err := c.doJSON(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, &out); err != nil {
		return nil, apperr.External("ris", "fetch pending orders", err)
	}
	return out.Orders, nil
}

// FetchPatient retrieves the demographics the RIS holds for an MRN.
func (c *Client) FetchPatient(ctx context.Context, mrn string) (*PatientDTO, error) {
	var out patientResponse
	err := c.doJSON(ctx, http.MethodGet, "/patients/"+url.PathEscape(mrn), nil, &out)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, err
		}
		return nil, apperr.External("ris", fmt.Sprintf("fetch patient %s", mrn), err)
	}
	return &out.Patient, nil
}

// PostReport submits a completed report for an order.
func (c *Client) PostReport(ctx context.Context, report ReportSubmission) (*ReportAck, error) {
	var ack ReportAck
	if err := c.doJSON(ctx, http.MethodPost, "/reports", report, &ack); err != nil {
		return nil, apperr.External("ris", "post report", err)
	}
	return &ack, nil
}

// PatchOrderStatus updates an order's status in the RIS.
func (c *Client) PatchOrderStatus(ctx context.Context, orderID, status string) error {
	body := map[string]string{"status": status}
	err := c.doJSON(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID), body, nil)
	if err != nil {
		if apperr.IsNotFound(err) {
			return err
		}
		return apperr.External("ris", fmt.Sprintf("patch order %s", orderID), err)
	}
	return nil
}

// doJSON performs one JSON request with retry. 5xx responses and transport
// errors are retried; 4xx responses are terminal (404 becomes NotFoundError).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	op := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed, will retry")
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(apperr.NotFound("ris resource", path))
		case resp.StatusCode >= 500:
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("server error, will retry")
			return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
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
