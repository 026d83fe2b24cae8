package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkndplanning/planctl/internal/models"
)

func sessionWithTasks(ids ...string) *models.WizardSession {
	sess := models.NewWizardSession("roster.xlsx")
	for _, id := range ids {
		sess.RepTasks = append(sess.RepTasks, models.Task{ID: id, Name: "task " + id})
	}
	return sess
}

func TestTaskQueueCurrentAndAdvance(t *testing.T) {
	sess := sessionWithTasks("t1", "t2")
	q := NewTaskQueue(sess)

	task, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "t1", task.ID)

	q.Advance()
	task, ok = q.Current()
	require.True(t, ok)
	assert.Equal(t, "t2", task.ID)

	q.Advance()
	_, ok = q.Current()
	assert.False(t, ok, "queue should be exhausted")
	assert.Equal(t, 2, q.Index())
}

func TestTaskQueueInsertAdditionalAtCursor(t *testing.T) {
	sess := sessionWithTasks("t1", "t2", "t3")
	q := NewTaskQueue(sess)
	q.Advance() // cursor on t2

	q.InsertAdditional(models.Task{ID: "additional_1", IsAdditionalTask: true})

	// The inserted task is presented immediately and the cursor is unmoved.
	task, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "additional_1", task.ID)
	assert.Equal(t, 1, q.Index())

	// The task previously at the cursor moved one position right.
	assert.Equal(t, []string{"t1", "additional_1", "t2", "t3"}, taskIDs(sess))
	assert.Equal(t, 4, q.Len())
}

func TestTaskQueueInsertAdditionalAtStart(t *testing.T) {
	sess := sessionWithTasks("t1")
	q := NewTaskQueue(sess)

	q.InsertAdditional(models.Task{ID: "additional_1"})

	task, _ := q.Current()
	assert.Equal(t, "additional_1", task.ID)
	assert.Equal(t, []string{"additional_1", "t1"}, taskIDs(sess))
}

func taskIDs(sess *models.WizardSession) []string {
	ids := make([]string, 0, len(sess.RepTasks))
	for _, task := range sess.RepTasks {
		ids = append(ids, task.ID)
	}
	return ids
}
