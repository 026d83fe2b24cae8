package session

import (
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkndplanning/planctl/internal/models"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	return NewStore(opts)
}

func sampleState() State {
	reason := "no parts"
	sess := models.NewWizardSession("kw34.xlsx")
	sess.RepTasks = []models.Task{
		{ID: "t1", Name: "fix press", MitarbeiterProAufgabe: 2},
		{ID: "t2", Name: "swap valve", MitarbeiterProAufgabe: 1},
	}
	sess.CurrentRepTaskIndex = 1
	sess.RepAssignments = []models.AssignmentRecord{
		{TaskID: "t1", Technicians: []string{}, Skipped: true, SkipReason: &reason},
	}
	sess.PresentTechnicians = []string{"A", "B"}
	sess.EligibleTechnicians = models.EligibilityIndex{
		"t2": {{Name: "B", AvailableTime: 420, TaskFullDuration: 60}},
	}
	return State{Session: *sess, UI: UIState{FileInputDisabled: true}, UploadPhase: 3}
}

// backdate rewrites the stored timestamp so the state looks that old.
func backdate(t *testing.T, s *Store, age time.Duration) {
	t.Helper()
	ts := time.Now().Add(-age).UnixMilli()
	require.NoError(t, os.WriteFile(s.timestampPath(), []byte(strconv.FormatInt(ts, 10)), 0o644))
}

func TestStoreRoundTripWithinValidityWindow(t *testing.T) {
	s := newTestStore(t, Options{})
	state := sampleState()

	s.SaveNow(state)
	restored := s.Restore()
	require.NotNil(t, restored)

	assert.False(t, restored.Rekeyed)
	got := restored.State.Session
	assert.Equal(t, state.Session.SessionID, got.SessionID, "session ID survives inside the window")
	assert.Equal(t, state.Session.RepTasks, got.RepTasks)
	assert.Equal(t, state.Session.RepAssignments, got.RepAssignments)
	assert.Equal(t, state.Session.CurrentRepTaskIndex, got.CurrentRepTaskIndex)
	assert.Equal(t, state.UploadPhase, restored.State.UploadPhase)
	assert.False(t, got.NeedsReupload)
}

func TestStoreRestoreAfterValidityWindowRekeys(t *testing.T) {
	s := newTestStore(t, Options{})
	state := sampleState()

	s.SaveNow(state)
	backdate(t, s, 6*time.Minute)

	restored := s.Restore()
	require.NotNil(t, restored)
	assert.True(t, restored.Rekeyed)
	assert.Greater(t, restored.TimeAway, 5*time.Minute)

	got := restored.State.Session
	// Wizard data survives, the backend correlation does not.
	assert.Equal(t, state.Session.RepTasks, got.RepTasks)
	assert.Equal(t, state.Session.RepAssignments, got.RepAssignments)
	assert.NotEqual(t, state.Session.SessionID, got.SessionID)
	assert.True(t, got.NeedsReupload)
}

func TestStoreRestoreBeyondCeilingDiscards(t *testing.T) {
	s := newTestStore(t, Options{})
	s.SaveNow(sampleState())
	backdate(t, s, 25*time.Hour)

	assert.Nil(t, s.Restore())
	_, err := os.Stat(s.statePath())
	assert.True(t, os.IsNotExist(err), "expired state is cleared")
}

func TestStoreRestoreUnparsableTimestampDiscards(t *testing.T) {
	s := newTestStore(t, Options{})
	s.SaveNow(sampleState())
	require.NoError(t, os.WriteFile(s.timestampPath(), []byte("not-a-number"), 0o644))

	assert.Nil(t, s.Restore())
	_, err := os.Stat(s.statePath())
	assert.True(t, os.IsNotExist(err))
}

func TestStoreRestoreNothingStored(t *testing.T) {
	s := newTestStore(t, Options{})
	assert.Nil(t, s.Restore())
}

func TestStoreSaveCoalescesWithinThrottleWindow(t *testing.T) {
	s := newTestStore(t, Options{SaveThrottle: 80 * time.Millisecond})

	first := sampleState()
	first.Session.CurrentRepTaskIndex = 0
	s.Save(first)

	restored := s.Restore()
	require.NotNil(t, restored, "first save lands immediately")
	assert.Equal(t, 0, restored.State.Session.CurrentRepTaskIndex)

	// Two saves inside the window: deferred, last one wins, not dropped.
	second := sampleState()
	second.Session.CurrentRepTaskIndex = 1
	third := sampleState()
	third.Session.CurrentRepTaskIndex = 2
	s.Save(second)
	s.Save(third)

	restored = s.Restore()
	require.NotNil(t, restored)
	assert.Equal(t, 0, restored.State.Session.CurrentRepTaskIndex, "deferred save not written yet")

	assert.Eventually(t, func() bool {
		r := s.Restore()
		return r != nil && r.State.Session.CurrentRepTaskIndex == 2
	}, time.Second, 10*time.Millisecond, "pending save fires once the window elapses")
}

func TestStoreFlushWritesPendingImmediately(t *testing.T) {
	s := newTestStore(t, Options{SaveThrottle: time.Hour})

	first := sampleState()
	first.Session.CurrentRepTaskIndex = 0
	s.SaveNow(first)

	pending := sampleState()
	pending.Session.CurrentRepTaskIndex = 2
	s.Save(pending) // deferred behind the huge throttle

	s.Flush()
	restored := s.Restore()
	require.NotNil(t, restored)
	assert.Equal(t, 2, restored.State.Session.CurrentRepTaskIndex)
}

func TestStoreSaveNowBypassesThrottle(t *testing.T) {
	s := newTestStore(t, Options{SaveThrottle: time.Hour})

	first := sampleState()
	first.Session.CurrentRepTaskIndex = 0
	s.SaveNow(first)

	second := sampleState()
	second.Session.CurrentRepTaskIndex = 1
	s.SaveNow(second)

	restored := s.Restore()
	require.NotNil(t, restored)
	assert.Equal(t, 1, restored.State.Session.CurrentRepTaskIndex)
}

func TestStoreClearRemovesBothKeys(t *testing.T) {
	s := newTestStore(t, Options{})
	s.SaveNow(sampleState())
	s.Clear()

	for _, p := range []string{s.statePath(), s.timestampPath()} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestStoreSweepPurgesStaleState(t *testing.T) {
	s := newTestStore(t, Options{SweepAge: time.Minute})
	s.SaveNow(sampleState())

	// Fresh state survives a sweep.
	s.sweep()
	_, err := os.Stat(s.statePath())
	require.NoError(t, err)

	backdate(t, s, 2*time.Minute)
	s.sweep()
	_, err = os.Stat(s.statePath())
	assert.True(t, os.IsNotExist(err))
}

func TestStoreSweepDoesNotInterleaveWithSaves(t *testing.T) {
	s := newTestStore(t, Options{SweepAge: time.Minute})
	state := sampleState()

	// Sweeps racing saves must never leave the blob without its timestamp,
	// which would discard fresh state on the next restore.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.sweep()
		}
	}()
	for i := 0; i < 50; i++ {
		s.SaveNow(state)
	}
	wg.Wait()

	s.SaveNow(state)
	restored := s.Restore()
	require.NotNil(t, restored)
	assert.Equal(t, state.Session.SessionID, restored.State.Session.SessionID)
}
