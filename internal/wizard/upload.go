package wizard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wkndplanning/planctl/internal/client"
	"github.com/wkndplanning/planctl/internal/models"
)

// ErrUploadInFlight is returned when a second upload is attempted while one
// is still outstanding.
var ErrUploadInFlight = errors.New("an upload is already in flight")

// UploadPhase is the position in the two-step upload protocol.
type UploadPhase int

const (
	// PhaseIdle means no roster file has been selected yet.
	PhaseIdle UploadPhase = iota
	// PhaseFileSelected means a roster file is attached but not uploaded.
	PhaseFileSelected
	// PhaseAbsenceCollection means phase 1 succeeded; the client is
	// collecting absent technicians.
	PhaseAbsenceCollection
	// PhaseAssignment means phase 2 succeeded with a non-empty task list.
	PhaseAssignment
	// PhaseFinal means phase 2 returned zero tasks: a valid terminal case
	// that goes straight to submission with an empty assignment list.
	PhaseFinal
)

// UploadController orchestrates the two backend round-trips that feed the
// wizard: the initial file upload returning the raw task list, then the
// absentee confirmation returning the refined REP tasks plus the eligibility
// index. Failures at either phase surface to the caller and leave both the
// phase and the session untouched; uploads are never retried automatically.
type UploadController struct {
	client *client.Client
	log    *slog.Logger

	mu       sync.Mutex
	phase    UploadPhase
	path     string
	inFlight bool
}

// NewUploadController creates a controller in PhaseIdle.
func NewUploadController(c *client.Client, log *slog.Logger) *UploadController {
	if log == nil {
		log = slog.Default()
	}
	return &UploadController{client: c, log: log}
}

// Phase returns the current protocol phase.
func (u *UploadController) Phase() UploadPhase {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.phase
}

func (u *UploadController) setPhase(p UploadPhase) {
	u.mu.Lock()
	u.phase = p
	u.mu.Unlock()
}

// SelectFile attaches a roster file path, moving Idle to FileSelected.
func (u *UploadController) SelectFile(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.path = path
	if u.phase == PhaseIdle {
		u.phase = PhaseFileSelected
	}
}

// Resume places the controller directly into a later phase when a restored
// session already carries upload results.
func (u *UploadController) Resume(phase UploadPhase, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.phase = phase
	u.path = path
}

// begin flips the duplicate-submission guard, refusing when a call is
// already outstanding.
func (u *UploadController) begin() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inFlight {
		return false
	}
	u.inFlight = true
	return true
}

// end clears the guard unconditionally, success or failure.
func (u *UploadController) end() {
	u.mu.Lock()
	u.inFlight = false
	u.mu.Unlock()
}

// UploadRoster performs phase 1. The duplicate-submission guard blocks a
// concurrent call and is cleared unconditionally, success or failure.
func (u *UploadController) UploadRoster(ctx context.Context, session *models.WizardSession) (*client.UploadResult, error) {
	if !u.begin() {
		return nil, ErrUploadInFlight
	}
	defer u.end()

	result, err := u.client.UploadRoster(ctx, u.path, session.SessionID)
	if err != nil {
		u.log.Warn("roster upload failed", "error", err)
		return nil, err
	}

	u.setPhase(PhaseAbsenceCollection)
	u.log.Info("roster uploaded", "file", u.path, "rawTasks", len(result.RepTasks))
	return result, nil
}

// ConfirmAbsences performs phase 2 and, on success, populates the session
// with the refined task list, the eligibility snapshot and the present
// roster. present is the full roster minus the chosen absentees.
func (u *UploadController) ConfirmAbsences(ctx context.Context, session *models.WizardSession, absent, present []string) (*client.UploadResult, error) {
	if !u.begin() {
		return nil, ErrUploadInFlight
	}
	defer u.end()

	result, err := u.client.ConfirmAbsences(ctx, absent, session.Filename, session.SessionID)
	if err != nil {
		u.log.Warn("absence confirmation failed", "error", err)
		return nil, err
	}

	session.RepTasks = result.RepTasks
	session.CurrentRepTaskIndex = 0
	session.RepAssignments = nil
	session.PresentTechnicians = present
	session.EligibleTechnicians = result.EligibleTechnicians
	if session.EligibleTechnicians == nil {
		session.EligibleTechnicians = models.EligibilityIndex{}
	}
	session.NeedsReupload = false

	if len(session.RepTasks) == 0 {
		u.setPhase(PhaseFinal)
	} else {
		u.setPhase(PhaseAssignment)
	}
	u.log.Info("absences confirmed",
		"absent", len(absent), "present", len(present), "repTasks", len(session.RepTasks))
	return result, nil
}
