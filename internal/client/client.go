// Package client provides an HTTP client for the weekend-planning backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wkndplanning/planctl/internal/metrics"
	"github.com/wkndplanning/planctl/internal/models"
)

// ErrServer indicates the backend rejected a request. The wrapped message is
// the backend's own error/message field when one was present.
var ErrServer = errors.New("server error")

// Client talks to the scheduling backend. The backend holds no durable wizard
// state beyond the session_id correlation; this client is purely
// request/response.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// New creates a backend client.
// If baseURL is empty, uses the PLANCTL_SERVER_URL env var or defaults to
// localhost:5000. A zero timeout falls back to 2m (uploads of large rosters
// can be slow). The collector may be nil.
func New(baseURL string, timeout time.Duration, collector *metrics.Collector) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PLANCTL_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: collector,
	}
}

// UploadResult is the shared response shape of both /upload phases.
type UploadResult struct {
	RepTasks            []models.Task           `json:"rep_tasks"`
	EligibleTechnicians models.EligibilityIndex `json:"eligible_technicians"`
}

// errorEnvelope is the backend's failure shape; either field may carry the
// human-readable message.
type errorEnvelope struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e errorEnvelope) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// UploadRoster performs the phase-1 call: POST /upload with the roster file
// and the session ID. The file content is passed through opaquely; parsing
// the Excel format is the backend's job.
func (c *Client) UploadRoster(ctx context.Context, path, sessionID string) (*UploadResult, error) {
	defer c.observe(metrics.OpUpload)()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("excelFile", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	if err := form.WriteField("session_id", sessionID); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	var result UploadResult
	if err := c.post(ctx, "/upload", form.FormDataContentType(), &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmAbsences performs the phase-2 call: POST /upload again with the
// absentee list and the filename correlating to the phase-1 upload, no file
// body. The response carries the refined REP task list and the eligibility
// index.
func (c *Client) ConfirmAbsences(ctx context.Context, absent []string, filename, sessionID string) (*UploadResult, error) {
	defer c.observe(metrics.OpAbsence)()

	if absent == nil {
		absent = []string{}
	}
	absentJSON, err := json.Marshal(absent)
	if err != nil {
		return nil, fmt.Errorf("marshal absentees: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"absentTechnicians": string(absentJSON),
		"filename":          filename,
		"session_id":        sessionID,
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	var result UploadResult
	if err := c.post(ctx, "/upload", form.FormDataContentType(), &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EligibleForTask asks the backend which of the present technicians qualify
// for a task with the given required skills. Used for operator-created
// additional tasks, whose eligibility is never derived client-side.
func (c *Client) EligibleForTask(ctx context.Context, requiredSkills, present []string) ([]models.EligibleTechnician, error) {
	defer c.observe(metrics.OpEligibility)()

	reqBody, err := json.Marshal(map[string]any{
		"required_skills":     requiredSkills,
		"present_technicians": present,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result []models.EligibleTechnician
	if err := c.post(ctx, "/api/eligible_technicians_for_task", "application/json", bytes.NewReader(reqBody), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// FinalPayload is everything the wizard accumulated, submitted once the task
// queue is exhausted.
type FinalPayload struct {
	PresentTechnicians []string
	RepAssignments     []models.AssignmentRecord
	SessionID          string
	AllProcessedTasks  []models.Task
}

// DashboardResult is the /generate_dashboard success response.
type DashboardResult struct {
	Message      string `json:"message"`
	DashboardURL string `json:"dashboard_url"`
}

// GenerateDashboard submits the terminal payload. All list fields travel as
// JSON-stringified multipart form values.
func (c *Client) GenerateDashboard(ctx context.Context, payload FinalPayload) (*DashboardResult, error) {
	defer c.observe(metrics.OpDashboard)()

	present, err := json.Marshal(payload.PresentTechnicians)
	if err != nil {
		return nil, fmt.Errorf("marshal present technicians: %w", err)
	}
	assignments, err := json.Marshal(payload.RepAssignments)
	if err != nil {
		return nil, fmt.Errorf("marshal assignments: %w", err)
	}
	tasks, err := json.Marshal(payload.AllProcessedTasks)
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"present_technicians": string(present),
		"rep_assignments":     string(assignments),
		"session_id":          payload.SessionID,
		"all_processed_tasks": string(tasks),
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	var result DashboardResult
	if err := c.post(ctx, "/generate_dashboard", form.FormDataContentType(), &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Technicians fetches the grouped roster for the absence-selection screen.
func (c *Client) Technicians(ctx context.Context) (models.TechnicianRoster, error) {
	defer c.observe(metrics.OpRoster)()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/technicians", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var roster models.TechnicianRoster
	if err := c.do(req, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// post sends a POST request and decodes the JSON response into result.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.text() != "" {
			return fmt.Errorf("%w: %s", ErrServer, envelope.text())
		}
		return fmt.Errorf("%w: %s", ErrServer, resp.Status)
	}

	// A 2xx body can still carry an error envelope.
	var envelope errorEnvelope
	if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error != "" {
		return fmt.Errorf("%w: %s", ErrServer, envelope.Error)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// observe records one timed operation on the collector, if one is attached.
func (c *Client) observe(op string) func() {
	if c.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		c.metrics.Record(op, time.Since(start))
	}
}
