package wizard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wkndplanning/planctl/internal/client"
	"github.com/wkndplanning/planctl/internal/models"
)

// ErrSubmissionInFlight is returned when the terminal submission is triggered
// again before the first call resolved, e.g. by a rapid double activation.
var ErrSubmissionInFlight = errors.New("final submission already in flight")

// Submitter builds and sends the terminal /generate_dashboard payload.
// Reaching the end of the queue twice must not double-submit: an in-flight
// guard rejects the second trigger, and a run that already holds a dashboard
// URL returns it without another network call.
type Submitter struct {
	client *client.Client
	log    *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewSubmitter creates a submitter.
func NewSubmitter(c *client.Client, log *slog.Logger) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{client: c, log: log}
}

// BuildPayload collects everything the wizard accumulated into the terminal
// payload shape.
func BuildPayload(session *models.WizardSession) client.FinalPayload {
	assignments := session.RepAssignments
	if assignments == nil {
		assignments = []models.AssignmentRecord{}
	}
	tasks := session.RepTasks
	if tasks == nil {
		tasks = []models.Task{}
	}
	present := session.PresentTechnicians
	if present == nil {
		present = []string{}
	}
	return client.FinalPayload{
		PresentTechnicians: present,
		RepAssignments:     assignments,
		SessionID:          session.SessionID,
		AllProcessedTasks:  tasks,
	}
}

// Submit sends the final payload. On success the dashboard URL is recorded on
// the session so it survives a restart. On failure the terminal state is left
// intact; recovery is a later re-submission from the restored session.
func (s *Submitter) Submit(ctx context.Context, session *models.WizardSession) (*client.DashboardResult, error) {
	s.mu.Lock()
	if session.Submitted && session.DashboardURL != "" {
		s.mu.Unlock()
		return &client.DashboardResult{DashboardURL: session.DashboardURL}, nil
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	result, err := s.client.GenerateDashboard(ctx, BuildPayload(session))
	if err != nil {
		s.log.Warn("dashboard generation failed", "error", err)
		return nil, err
	}

	session.Submitted = true
	session.DashboardURL = result.DashboardURL
	s.log.Info("dashboard generated", "url", result.DashboardURL)
	return result, nil
}
