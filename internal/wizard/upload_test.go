package wizard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkndplanning/planctl/internal/client"
	"github.com/wkndplanning/planctl/internal/models"
)

func writeRoster(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kw34.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("fake roster bytes"), 0o644))
	return path
}

func uploadBackend(t *testing.T, phase2 client.UploadResult) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		if _, _, err := r.FormFile("excelFile"); err == nil {
			// Phase 1: raw task list, no eligibility yet.
			json.NewEncoder(w).Encode(client.UploadResult{
				RepTasks: []models.Task{{ID: "raw1", Name: "raw"}},
			})
			return
		}
		// Phase 2 carries the absentee list instead of a file body.
		require.NotEmpty(t, r.FormValue("absentTechnicians"))
		require.NotEmpty(t, r.FormValue("filename"))
		json.NewEncoder(w).Encode(phase2)
	}))
}

func TestUploadControllerHappyPath(t *testing.T) {
	phase2 := client.UploadResult{
		RepTasks: []models.Task{{ID: "t1", Name: "fix robot", MitarbeiterProAufgabe: 1}},
		EligibleTechnicians: models.EligibilityIndex{
			"t1": eligibleNames("A"),
		},
	}
	server := uploadBackend(t, phase2)
	defer server.Close()

	sess := models.NewWizardSession("kw34.xlsx")
	u := NewUploadController(client.New(server.URL, 0, nil), nil)
	assert.Equal(t, PhaseIdle, u.Phase())

	u.SelectFile(writeRoster(t))
	assert.Equal(t, PhaseFileSelected, u.Phase())

	_, err := u.UploadRoster(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, PhaseAbsenceCollection, u.Phase())

	_, err = u.ConfirmAbsences(context.Background(), sess, []string{"D"}, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, PhaseAssignment, u.Phase())
	assert.Equal(t, []string{"A", "B"}, sess.PresentTechnicians)
	require.Len(t, sess.RepTasks, 1)
	assert.Equal(t, "t1", sess.RepTasks[0].ID)
	assert.Len(t, sess.EligibleTechnicians.Lookup("t1"), 1)
}

func TestUploadControllerEmptyTaskListIsTerminal(t *testing.T) {
	server := uploadBackend(t, client.UploadResult{RepTasks: []models.Task{}})
	defer server.Close()

	sess := models.NewWizardSession("kw34.xlsx")
	u := NewUploadController(client.New(server.URL, 0, nil), nil)
	u.SelectFile(writeRoster(t))

	_, err := u.UploadRoster(context.Background(), sess)
	require.NoError(t, err)
	_, err = u.ConfirmAbsences(context.Background(), sess, nil, []string{"A"})
	require.NoError(t, err)

	// Zero REP tasks goes straight to final submission, not an error.
	assert.Equal(t, PhaseFinal, u.Phase())
	assert.Empty(t, sess.RepTasks)
}

func TestUploadControllerFailureLeavesSessionUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "not a roster"})
	}))
	defer server.Close()

	sess := models.NewWizardSession("kw34.xlsx")
	u := NewUploadController(client.New(server.URL, 0, nil), nil)
	u.SelectFile(writeRoster(t))

	_, err := u.UploadRoster(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrServer)
	assert.Contains(t, err.Error(), "not a roster")

	// Phase stays at FileSelected and the session is not mutated.
	assert.Equal(t, PhaseFileSelected, u.Phase())
	assert.Empty(t, sess.RepTasks)
	assert.Empty(t, sess.PresentTechnicians)
}

func TestUploadControllerDuplicateGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			close(started)
			<-release
		})
		json.NewEncoder(w).Encode(client.UploadResult{})
	}))
	defer server.Close()

	sess := models.NewWizardSession("kw34.xlsx")
	u := NewUploadController(client.New(server.URL, 0, nil), nil)
	u.SelectFile(writeRoster(t))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		u.UploadRoster(context.Background(), sess)
	}()

	// A second call while the first is outstanding is rejected.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first upload never reached the backend")
	}
	_, err := u.UploadRoster(context.Background(), sess)
	assert.ErrorIs(t, err, ErrUploadInFlight)

	close(release)
	wg.Wait()

	// The guard is cleared unconditionally once the call resolves.
	_, err = u.UploadRoster(context.Background(), sess)
	assert.NoError(t, err)
}
