// Package backend talks to the external AI processing API that executes
// submitted queries against spreadsheets and documents.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// Sentinel errors for processing backend failures.
var (
	ErrBackendUnreachable = errors.New("processing backend unreachable")
	ErrBackendTimeout     = errors.New("processing backend timeout")
	ErrBackendError       = errors.New("processing backend error")
)

// Client is the interface for the processing backend.
type Client interface {
	// ProcessQuery transmits one submission as a multipart request. The
	// response snapshot is advisory; the job store remains authoritative.
	ProcessQuery(ctx context.Context, req models.QueryRequest, files []models.FileUpload) (*JobSnapshot, error)
	// GetStatus reads the backend's view of a job.
	GetStatus(ctx context.Context, jobID string) (*JobSnapshot, error)
	Ready(ctx context.Context) error
}

// JobSnapshot is the subset of job fields the backend reports.
type JobSnapshot struct {
	JobID              string `json:"job_id"`
	Status             string `json:"status"`
	Message            string `json:"message"`
	Error              string `json:"error,omitempty"`
	NumImagesProcessed int    `json:"num_images_processed"`
	TotalPages         *int   `json:"total_pages,omitempty"`
	ResultFilePath     string `json:"result_file_path,omitempty"`
	ResultMediaType    string `json:"result_media_type,omitempty"`
	ResultFilename     string `json:"result_filename,omitempty"`
	DownloadURL        string `json:"download_url,omitempty"`
}

// HTTPClient implements Client against the backend's HTTP API. Call
// deadlines come from the caller's context, so one client serves both
// standard and batch submissions.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new backend HTTP client.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *HTTPClient) ProcessQuery(ctx context.Context, req models.QueryRequest, files []models.FileUpload) (*JobSnapshot, error) {
	body, contentType, err := buildMultipartBody(req, files)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process_query", body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBackendError, resp.StatusCode)
	}

	var snap JobSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding backend response: %w", err)
	}
	return &snap, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, jobID string) (*JobSnapshot, error) {
	form := url.Values{"job_id": {jobID}}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/process_query/status", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBackendError, resp.StatusCode)
	}

	var snap JobSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &snap, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: backend not ready (status %d)", ErrBackendUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
