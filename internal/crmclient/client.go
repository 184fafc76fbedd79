// Package crmclient talks to the CRM HTTP API. Client implements
// pipeline.Backend so a board can be mounted against a remote server.
package crmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/emanuelmabtis/meu-crm/internal/search"
)

const maxResponseBytes = 32 << 20

// StatusError is a non-2xx answer from the API. Callers can use errors.As:
//
//	var statusErr *StatusError
//	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound { ... }
type StatusError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("crm api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the API rooted at baseURL. A nil httpClient
// gets a default with a 30s timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("crm api: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("crm api: base url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: httpClient,
	}, nil
}

var _ pipeline.Backend = (*Client)(nil)

// LoadBoard fetches GET /api/kanban.
func (c *Client) LoadBoard(ctx context.Context) (pipeline.Snapshot, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/api/kanban", nil, nil)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	var snapshot pipeline.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return pipeline.Snapshot{}, fmt.Errorf("crm api: decode board: %w", err)
	}
	if snapshot.Stages == nil {
		snapshot.Stages = []pipeline.Stage{}
	}
	if snapshot.Deals == nil {
		snapshot.Deals = []pipeline.Deal{}
	}
	return snapshot, nil
}

// PersistStageChange sends PATCH /api/deals/{id}.
func (c *Client) PersistStageChange(ctx context.Context, dealID, stageID string) error {
	_, _, err := c.do(ctx, http.MethodPatch, "/api/deals/"+url.PathEscape(dealID), map[string]string{"stage_id": stageID}, nil)
	return err
}

func (c *Client) Search(ctx context.Context, q search.Query) (search.Response, error) {
	values := url.Values{}
	if q.Text != "" {
		values.Set("q", q.Text)
	}
	if q.StageID != "" {
		values.Set("stageId", q.StageID)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}

	body, _, err := c.do(ctx, http.MethodGet, "/api/deals/search", nil, values)
	if err != nil {
		return search.Response{}, err
	}
	var response search.Response
	if err := json.Unmarshal(body, &response); err != nil {
		return search.Response{}, fmt.Errorf("crm api: decode search: %w", err)
	}
	return response, nil
}

// Report is a downloaded board export.
type Report struct {
	Data       []byte
	Filename   string
	MimeType   string
	ArchiveKey string
}

// Export downloads GET /api/kanban/export in the given format.
func (c *Client) Export(ctx context.Context, format string) (Report, error) {
	values := url.Values{}
	if format != "" {
		values.Set("format", format)
	}
	body, header, err := c.do(ctx, http.MethodGet, "/api/kanban/export", nil, values)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		Data:       body,
		MimeType:   header.Get("Content-Type"),
		ArchiveKey: header.Get("X-Archive-Key"),
	}
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		report.Filename = params["filename"]
	}
	return report, nil
}

func (c *Client) do(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, http.Header, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, nil, fmt.Errorf("crm api: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("crm api: create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("crm api: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("crm api: read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, response.Header, nil
	}

	statusErr := &StatusError{StatusCode: response.StatusCode}
	if jsonErr := json.Unmarshal(responseBody, statusErr); jsonErr != nil || statusErr.Message == "" {
		statusErr.Message = strings.TrimSpace(string(responseBody))
		if statusErr.Message == "" {
			statusErr.Message = http.StatusText(response.StatusCode)
		}
	}
	return nil, response.Header, statusErr
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, statusCode int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == statusCode
}
