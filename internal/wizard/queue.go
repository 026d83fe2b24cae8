// Package wizard implements the REP task-assignment state machine.
package wizard

import "github.com/wkndplanning/planctl/internal/models"

// TaskQueue is an ordered list of assignable tasks with a monotonically
// increasing cursor. It operates directly on the session's slice and cursor
// so that save/restore round-trips the exact queue position.
//
// There is no "go back": an operator who wants to redo a task restarts the
// whole wizard.
type TaskQueue struct {
	session *models.WizardSession
}

// NewTaskQueue wraps the session's task list.
func NewTaskQueue(session *models.WizardSession) *TaskQueue {
	return &TaskQueue{session: session}
}

// Current returns the task at the cursor, or false when the queue is
// exhausted.
func (q *TaskQueue) Current() (models.Task, bool) {
	i := q.session.CurrentRepTaskIndex
	if i >= len(q.session.RepTasks) {
		return models.Task{}, false
	}
	return q.session.RepTasks[i], true
}

// Advance moves the cursor forward by exactly one position.
func (q *TaskQueue) Advance() {
	q.session.CurrentRepTaskIndex++
}

// InsertAdditional inserts a newly created task at the cursor, shifting later
// tasks right. The cursor does not move, so the inserted task becomes the new
// current task and is presented before the one the operator was about to see.
func (q *TaskQueue) InsertAdditional(task models.Task) {
	i := q.session.CurrentRepTaskIndex
	tasks := q.session.RepTasks
	tasks = append(tasks, models.Task{})
	copy(tasks[i+1:], tasks[i:])
	tasks[i] = task
	q.session.RepTasks = tasks
}

// Len returns the queue length, including inserted additional tasks.
func (q *TaskQueue) Len() int {
	return len(q.session.RepTasks)
}

// Index returns the cursor position.
func (q *TaskQueue) Index() int {
	return q.session.CurrentRepTaskIndex
}
