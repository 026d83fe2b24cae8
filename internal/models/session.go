package models

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// AssignmentRecord is the outcome of one wizard step. Exactly one record
// exists per task the wizard has advanced past; the record list and the
// queue cursor move in lockstep.
type AssignmentRecord struct {
	TaskID           string   `json:"task_id"`
	Technicians      []string `json:"technicians"`
	Skipped          bool     `json:"skipped"`
	SkipReason       *string  `json:"skip_reason"`
	IsAdditionalTask bool     `json:"isAdditionalTask"`
}

// WizardSession is the full state of one assignment run. It is owned by a
// single wizard instance and passed around explicitly; nothing in this
// module keeps package-level session state.
type WizardSession struct {
	RepTasks            []Task             `json:"repTasks"`
	CurrentRepTaskIndex int                `json:"currentRepTaskIndex"`
	RepAssignments      []AssignmentRecord `json:"repAssignments"`
	PresentTechnicians  []string           `json:"presentTechnicians"`
	EligibleTechnicians EligibilityIndex   `json:"eligibleTechnicians"`
	Filename            string             `json:"filename"`
	// SourcePath is the local path the roster was read from, kept so a
	// resumed run can re-upload when the backend correlation expired.
	SourcePath            string `json:"sourcePath,omitempty"`
	SessionID             string `json:"sessionId"`
	AdditionalTaskCounter int    `json:"additionalTaskCounter"`

	// DashboardURL is set once /generate_dashboard succeeds.
	DashboardURL string `json:"dashboardUrl,omitempty"`
	// Submitted marks a run whose dashboard call already went out.
	Submitted bool `json:"submitted,omitempty"`
	// NeedsReupload is set on restore when the backend-side upload
	// correlated to the old session ID is assumed expired.
	NeedsReupload bool `json:"needsReupload,omitempty"`
}

// NewWizardSession creates a session for a freshly selected roster file with
// an opaque client-generated session ID.
func NewWizardSession(filename string) *WizardSession {
	return &WizardSession{
		EligibleTechnicians: EligibilityIndex{},
		Filename:            filename,
		SessionID:           NewSessionID(),
	}
}

// NewSessionID returns an opaque token correlating the phase-1, phase-2 and
// final-submission calls on the backend.
func NewSessionID() string {
	return uuid.NewString()
}

// Rekey replaces the session ID and flags the uploaded file as needing
// a re-upload. Used when a restored session exceeded the validity window: the
// wizard data survives but the backend correlation does not.
func (s *WizardSession) Rekey() {
	s.SessionID = NewSessionID()
	s.NeedsReupload = true
}

// NextAdditionalTaskID increments the counter and returns the ID for the
// next operator-created task.
func (s *WizardSession) NextAdditionalTaskID() string {
	s.AdditionalTaskCounter++
	return AdditionalTaskID(s.AdditionalTaskCounter)
}

// TechnicianRoster is the grouped roster returned by /api/technicians,
// crew name to member names.
type TechnicianRoster map[string][]string

// Groups returns the crew names in stable sorted order.
func (r TechnicianRoster) Groups() []string {
	groups := make([]string, 0, len(r))
	for g := range r {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// PresentAfter returns the roster flattened to the technicians that are not
// in the absent set, in group order.
func (r TechnicianRoster) PresentAfter(absent []string) []string {
	out := []string{}
	for _, g := range r.Groups() {
		for _, n := range r[g] {
			if !containsFold(absent, n) {
				out = append(out, n)
			}
		}
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
