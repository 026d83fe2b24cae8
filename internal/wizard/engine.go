package wizard

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/wkndplanning/planctl/internal/models"
)

// State is the engine's position in the assignment flow.
type State int

const (
	// StateShowTask presents the task at the cursor and collects either a
	// technician selection or a skip.
	StateShowTask State = iota
	// StateAwaitingSkipReason is the explicit modal state that replaces the
	// web client's blocking prompt(): the operator must provide a reason or
	// cancel before anything else happens.
	StateAwaitingSkipReason
	// StateDone means the queue is exhausted and the run is ready for final
	// submission.
	StateDone
)

// SkipReasonPolicy selects how an empty skip reason is handled. The two
// drifted copies of the original web client disagreed on this, so it is a
// configuration choice rather than a hardcoded behavior.
type SkipReasonPolicy string

const (
	// SkipReasonRequire rejects empty or whitespace-only reasons.
	SkipReasonRequire SkipReasonPolicy = "require"
	// SkipReasonPlaceholder substitutes a default reason and proceeds.
	SkipReasonPlaceholder SkipReasonPolicy = "placeholder"
)

// PlaceholderSkipReason is recorded when the placeholder policy accepts an
// empty reason.
const PlaceholderSkipReason = "No reason provided"

// ValidationError is a locally recoverable rejection: the operator stays on
// the current step and no state is mutated.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Engine drives one task at a time: show task, collect selection or skip
// reason, validate against the required headcount, advance, repeat until the
// queue is exhausted. It owns no I/O; network results are handed in by the
// caller.
type Engine struct {
	session *models.WizardSession
	queue   *TaskQueue
	policy  SkipReasonPolicy
	state   State
	log     *slog.Logger
}

// NewEngine creates an engine over the given session. A session whose cursor
// already sits past the last task (including an empty task list, a valid
// terminal case) starts in StateDone.
func NewEngine(session *models.WizardSession, policy SkipReasonPolicy, log *slog.Logger) *Engine {
	if policy == "" {
		policy = SkipReasonRequire
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		session: session,
		queue:   NewTaskQueue(session),
		policy:  policy,
		state:   StateShowTask,
		log:     log,
	}
	if _, ok := e.queue.Current(); !ok {
		e.state = StateDone
	}
	return e
}

// Session returns the session the engine mutates.
func (e *Engine) Session() *models.WizardSession { return e.session }

// State returns the current machine state.
func (e *Engine) State() State { return e.state }

// Current returns the task under the cursor.
func (e *Engine) Current() (models.Task, bool) { return e.queue.Current() }

// Progress returns the 1-based position and total for the "i of N" counter.
func (e *Engine) Progress() (int, int) {
	return e.queue.Index() + 1, e.queue.Len()
}

// Eligible returns the snapshot eligible set for the current task. An empty
// result renders as "no eligible technicians"; it is never recomputed
// client-side after assignments elsewhere consume technician time.
func (e *Engine) Eligible() []models.EligibleTechnician {
	task, ok := e.queue.Current()
	if !ok {
		return nil
	}
	return e.session.EligibleTechnicians.Lookup(task.ID)
}

// FilterEligible narrows the eligible set by case-insensitive substring match
// on the technician name, backing the live search box.
func (e *Engine) FilterEligible(query string) []models.EligibleTechnician {
	all := e.Eligible()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all
	}
	var out []models.EligibleTechnician
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Name), query) {
			out = append(out, t)
		}
	}
	return out
}

// Assign validates the selection against the task's required headcount and,
// if accepted, records the assignment and advances the cursor.
func (e *Engine) Assign(selected []string) error {
	if e.state != StateShowTask {
		return fmt.Errorf("assign not allowed in state %d", e.state)
	}
	task, ok := e.queue.Current()
	if !ok {
		return fmt.Errorf("no current task")
	}

	required := task.MitarbeiterProAufgabe
	if required > 0 && len(selected) == 0 {
		return validationf("select at least %d technician(s) for this task", required)
	}
	if len(selected) < required {
		missing := required - len(selected)
		return validationf("%d more technician(s) needed (%d of %d selected)", missing, len(selected), required)
	}

	e.record(models.AssignmentRecord{
		TaskID:           task.ID,
		Technicians:      selected,
		Skipped:          false,
		SkipReason:       nil,
		IsAdditionalTask: task.IsAdditionalTask,
	})
	e.log.Info("task assigned", "task", task.ID, "technicians", len(selected))
	return nil
}

// BeginSkip enters the skip-reason modal state.
func (e *Engine) BeginSkip() {
	if e.state == StateShowTask {
		e.state = StateAwaitingSkipReason
	}
}

// CancelSkip leaves the modal without recording anything.
func (e *Engine) CancelSkip() {
	if e.state == StateAwaitingSkipReason {
		e.state = StateShowTask
	}
}

// Skip records the current task as skipped with the given reason and
// advances. An empty reason is handled per the configured policy: rejected,
// or replaced by a placeholder.
func (e *Engine) Skip(reason string) error {
	if e.state != StateAwaitingSkipReason && e.state != StateShowTask {
		return fmt.Errorf("skip not allowed in state %d", e.state)
	}
	task, ok := e.queue.Current()
	if !ok {
		return fmt.Errorf("no current task")
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		switch e.policy {
		case SkipReasonPlaceholder:
			reason = PlaceholderSkipReason
		default:
			return validationf("a valid skip reason is required")
		}
	}

	e.record(models.AssignmentRecord{
		TaskID:           task.ID,
		Technicians:      []string{},
		Skipped:          true,
		SkipReason:       &reason,
		IsAdditionalTask: task.IsAdditionalTask,
	})
	e.log.Info("task skipped", "task", task.ID, "reason", reason)
	return nil
}

// AddAdditionalTask registers the backend-computed eligible set for an
// operator-created task and inserts it at the cursor, so it is presented
// immediately. The cursor does not move.
func (e *Engine) AddAdditionalTask(task models.Task, eligible []models.EligibleTechnician) error {
	if e.state != StateShowTask {
		return fmt.Errorf("additional task not allowed in state %d", e.state)
	}
	if strings.TrimSpace(task.Name) == "" {
		return validationf("task name must not be empty")
	}
	e.session.EligibleTechnicians.Register(task.ID, eligible)
	e.queue.InsertAdditional(task)
	e.log.Info("additional task inserted", "task", task.ID, "at", e.queue.Index())
	return nil
}

// record appends the assignment record and advances cursor and state in
// lockstep: exactly one record per task the wizard has advanced past.
func (e *Engine) record(rec models.AssignmentRecord) {
	e.session.RepAssignments = append(e.session.RepAssignments, rec)
	e.queue.Advance()
	e.state = StateShowTask
	if _, ok := e.queue.Current(); !ok {
		e.state = StateDone
	}
}
