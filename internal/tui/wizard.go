package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/wkndplanning/planctl/internal/client"
	"github.com/wkndplanning/planctl/internal/models"
	"github.com/wkndplanning/planctl/internal/session"
	"github.com/wkndplanning/planctl/internal/wizard"
)

const requestTimeout = 2 * time.Minute

// screen identifies which surface the wizard is showing.
type screen int

const (
	screenConfirmFile screen = iota
	screenAbsence
	screenTask
	screenSkipReason
	screenAddTask
	screenDone
)

// Messages carried back from network commands.
type rosterMsg struct {
	roster models.TechnicianRoster
	err    error
}

type phase1Msg struct {
	result *client.UploadResult
	err    error
}

type phase2Msg struct {
	err error
}

type additionalEligibilityMsg struct {
	task     models.Task
	eligible []models.EligibleTechnician
	err      error
}

type submitMsg struct {
	result *client.DashboardResult
	err    error
}

// rosterEntry is one row of the flattened absence checklist; group headers
// are not selectable.
type rosterEntry struct {
	group  string
	name   string
	header bool
}

// Params wires the wizard UI to its collaborators.
type Params struct {
	// Ctx scopes every network call; cancelling it abandons any outstanding
	// response so nothing mutates state after the wizard has been torn down.
	Ctx       context.Context
	Client    *client.Client
	Store     *session.Store
	Session   *models.WizardSession
	Uploader  *wizard.UploadController
	Submitter *wizard.Submitter
	Policy    wizard.SkipReasonPolicy
	Logger    *slog.Logger
}

// Model is the bubbletea model for the whole assignment flow.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	cli       *client.Client
	store     *session.Store
	sess      *models.WizardSession
	uploader  *wizard.UploadController
	submitter *wizard.Submitter
	engine    *wizard.Engine
	policy    wizard.SkipReasonPolicy
	log       *slog.Logger
	theme     Theme

	screen  screen
	busy    bool
	spinner spinner.Model
	toast   string

	// absence screen
	rosterOrder []rosterEntry
	absent      map[string]bool
	absenceCur  int

	// task screen
	search    textinput.Model
	searching bool
	selected  map[string]bool
	taskCur   int

	// skip modal
	skipInput textinput.Model

	// additional-task form
	form      []textinput.Model
	formFocus int

	submitStarted bool
	quitting      bool
	err           error
}

// Form field positions.
const (
	formName = iota
	formDuration
	formHeadcount
	formQuantity
	formType
	formTicketMO
	formTicketURL
	formSkills
	formFieldCount
)

// NewModel builds the initial model. The starting screen follows the upload
// phase, so a restored session resumes exactly where the operator left.
func NewModel(p Params) Model {
	ctx, cancel := context.WithCancel(p.Ctx)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	search := textinput.New()
	search.Placeholder = "filter technicians"

	skipInput := textinput.New()
	skipInput.Placeholder = "reason for skipping"

	m := Model{
		ctx:       ctx,
		cancel:    cancel,
		cli:       p.Client,
		store:     p.Store,
		sess:      p.Session,
		uploader:  p.Uploader,
		submitter: p.Submitter,
		policy:    p.Policy,
		log:       p.Logger,
		theme:     defaultTheme,
		spinner:   sp,
		search:    search,
		skipInput: skipInput,
		absent:    map[string]bool{},
		selected:  map[string]bool{},
	}
	if m.log == nil {
		m.log = slog.Default()
	}

	switch p.Uploader.Phase() {
	case wizard.PhaseAbsenceCollection:
		m.screen = screenAbsence
		m.busy = true
	case wizard.PhaseAssignment:
		m.engine = wizard.NewEngine(m.sess, m.policy, m.log)
		if m.engine.State() == wizard.StateDone {
			m.screen = screenDone
		} else {
			m.screen = screenTask
		}
	case wizard.PhaseFinal:
		m.engine = wizard.NewEngine(m.sess, m.policy, m.log)
		m.screen = screenDone
	default:
		m.screen = screenConfirmFile
	}
	if m.screen == screenDone && m.sess.DashboardURL == "" {
		m.submitStarted = true
		m.busy = true
	}
	return m
}

// Init kicks off whatever the starting screen needs.
func (m Model) Init() tea.Cmd {
	switch m.screen {
	case screenAbsence:
		return tea.Batch(m.fetchRoster(), m.spinner.Tick)
	case screenDone:
		// submitStarted was set in NewModel; fire the one allowed call.
		if m.submitStarted && m.sess.DashboardURL == "" {
			return tea.Batch(m.submitCmd(), m.spinner.Tick)
		}
	}
	return nil
}

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case rosterMsg:
		m.busy = false
		if msg.err != nil {
			m.toast = fmt.Sprintf("loading technicians failed: %v", msg.err)
			return m, nil
		}
		m.rosterOrder = flattenRoster(msg.roster)
		m.absenceCur = firstSelectable(m.rosterOrder, 0)
		return m, nil

	case phase1Msg:
		m.busy = false
		if msg.err != nil {
			m.toast = fmt.Sprintf("upload failed: %v", msg.err)
			return m, nil
		}
		m.toast = ""
		m.screen = screenAbsence
		m.busy = true
		m.persist(true)
		return m, tea.Batch(m.fetchRoster(), m.spinner.Tick)

	case phase2Msg:
		m.busy = false
		if msg.err != nil {
			m.toast = fmt.Sprintf("confirming absences failed: %v", msg.err)
			return m, nil
		}
		m.toast = ""
		m.engine = wizard.NewEngine(m.sess, m.policy, m.log)
		m.selected = map[string]bool{}
		m.taskCur = 0
		m.persist(true)
		if m.engine.State() == wizard.StateDone {
			// Zero REP tasks is a valid terminal case, not an error.
			m.screen = screenDone
			cmd := m.startSubmitCmd()
			return m, cmd
		}
		m.screen = screenTask
		return m, nil

	case additionalEligibilityMsg:
		m.busy = false
		m.screen = screenTask
		if msg.err != nil {
			m.toast = fmt.Sprintf("eligibility lookup failed: %v", msg.err)
			return m, nil
		}
		if err := m.engine.AddAdditionalTask(msg.task, msg.eligible); err != nil {
			m.toast = err.Error()
			return m, nil
		}
		m.toast = ""
		m.selected = map[string]bool{}
		m.taskCur = 0
		m.search.SetValue("")
		m.persist(true)
		return m, nil

	case submitMsg:
		m.busy = false
		if msg.err != nil {
			// Terminal state stays intact; the recovery path is quitting
			// and resuming from the restored session.
			m.toast = fmt.Sprintf("dashboard generation failed: %v", msg.err)
			m.err = msg.err
			m.persist(true)
			return m, nil
		}
		m.toast = ""
		m.err = nil
		m.persist(true)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m.quit()
	}

	switch m.screen {
	case screenConfirmFile:
		return m.handleConfirmFileKey(key)
	case screenAbsence:
		return m.handleAbsenceKey(key)
	case screenTask:
		return m.handleTaskKey(msg, key)
	case screenSkipReason:
		return m.handleSkipKey(msg, key)
	case screenAddTask:
		return m.handleFormKey(msg, key)
	case screenDone:
		if key == "q" || key == "enter" {
			return m.quit()
		}
	}
	return m, nil
}

func (m Model) handleConfirmFileKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "esc":
		return m.quit()
	case "enter":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.toast = ""
		return m, tea.Batch(m.uploadRoster(), m.spinner.Tick)
	}
	return m, nil
}

func (m Model) handleAbsenceKey(key string) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch key {
	case "q", "esc":
		return m.quit()
	case "r":
		if len(m.rosterOrder) == 0 {
			m.busy = true
			m.toast = ""
			return m, tea.Batch(m.fetchRoster(), m.spinner.Tick)
		}
	case "up", "k":
		m.absenceCur = prevSelectable(m.rosterOrder, m.absenceCur)
	case "down", "j":
		m.absenceCur = nextSelectable(m.rosterOrder, m.absenceCur)
	case " ", "space":
		if m.absenceCur >= 0 && m.absenceCur < len(m.rosterOrder) {
			name := m.rosterOrder[m.absenceCur].name
			m.absent[name] = !m.absent[name]
		}
	case "enter":
		m.busy = true
		m.toast = ""
		return m, tea.Batch(m.confirmAbsences(), m.spinner.Tick)
	}
	return m, nil
}

func (m Model) handleTaskKey(msg tea.KeyPressMsg, key string) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	if m.searching {
		switch key {
		case "enter", "esc":
			m.searching = false
			m.search.Blur()
		default:
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			m.taskCur = 0
			return m, cmd
		}
		return m, nil
	}

	switch key {
	case "q":
		return m.quit()
	case "/":
		m.searching = true
		return m, m.search.Focus()
	case "up", "k":
		if m.taskCur > 0 {
			m.taskCur--
		}
	case "down", "j":
		if m.taskCur < len(m.filteredEligible())-1 {
			m.taskCur++
		}
	case " ", "space":
		list := m.filteredEligible()
		if m.taskCur >= 0 && m.taskCur < len(list) {
			name := list[m.taskCur].Name
			m.selected[name] = !m.selected[name]
			m.persist(false)
		}
	case "a", "enter":
		return m.assign()
	case "s":
		m.engine.BeginSkip()
		m.screen = screenSkipReason
		m.skipInput.SetValue("")
		m.toast = ""
		return m, m.skipInput.Focus()
	case "t":
		m.openAddTaskForm()
		return m, m.form[0].Focus()
	}
	return m, nil
}

func (m Model) assign() (tea.Model, tea.Cmd) {
	if err := m.engine.Assign(m.selectedNames()); err != nil {
		m.toast = err.Error()
		return m, nil
	}
	m.toast = ""
	m.selected = map[string]bool{}
	m.search.SetValue("")
	m.taskCur = 0
	m.persist(false)
	if m.engine.State() == wizard.StateDone {
		m.screen = screenDone
		cmd := m.startSubmitCmd()
		return m, cmd
	}
	return m, nil
}

func (m Model) handleSkipKey(msg tea.KeyPressMsg, key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		// Cancelling the prompt is a no-op: same task, nothing recorded.
		m.engine.CancelSkip()
		m.screen = screenTask
		m.skipInput.Blur()
		m.toast = ""
		return m, nil
	case "enter":
		if err := m.engine.Skip(m.skipInput.Value()); err != nil {
			m.toast = err.Error()
			return m, nil
		}
		m.toast = ""
		m.skipInput.Blur()
		m.selected = map[string]bool{}
		m.search.SetValue("")
		m.taskCur = 0
		m.persist(false)
		if m.engine.State() == wizard.StateDone {
			m.screen = screenDone
			cmd := m.startSubmitCmd()
			return m, cmd
		}
		m.screen = screenTask
		return m, nil
	}
	var cmd tea.Cmd
	m.skipInput, cmd = m.skipInput.Update(msg)
	return m, cmd
}

func (m *Model) openAddTaskForm() {
	m.form = make([]textinput.Model, formFieldCount)
	placeholders := []string{
		"task name", "duration (min)", "technicians per task", "quantity",
		"task type", "ticket MO", "ticket URL", "required skills (comma separated)",
	}
	for i := range m.form {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		m.form[i] = ti
	}
	m.form[formQuantity].SetValue("1")
	m.form[formType].SetValue("REP")
	m.formFocus = 0
	m.screen = screenAddTask
	m.toast = ""
}

func (m Model) handleFormKey(msg tea.KeyPressMsg, key string) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch key {
	case "esc":
		// Cancelling returns to the current task unchanged.
		m.screen = screenTask
		m.toast = ""
		return m, nil
	case "tab", "down":
		return m.focusFormField((m.formFocus + 1) % formFieldCount)
	case "shift+tab", "up":
		return m.focusFormField((m.formFocus + formFieldCount - 1) % formFieldCount)
	case "enter":
		if m.formFocus < formFieldCount-1 {
			return m.focusFormField(m.formFocus + 1)
		}
		return m.submitAddTaskForm()
	}
	var cmd tea.Cmd
	m.form[m.formFocus], cmd = m.form[m.formFocus].Update(msg)
	return m, cmd
}

func (m Model) focusFormField(i int) (tea.Model, tea.Cmd) {
	m.form[m.formFocus].Blur()
	m.formFocus = i
	return m, m.form[i].Focus()
}

func (m Model) submitAddTaskForm() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(m.form[formName].Value())
	if name == "" {
		m.toast = "task name must not be empty"
		return m, nil
	}

	duration := parseIntField(m.form[formDuration].Value(), 0)
	headcount := parseIntField(m.form[formHeadcount].Value(), 0)
	quantity := parseIntField(m.form[formQuantity].Value(), 1)
	if quantity < 1 {
		quantity = 1
	}

	task := models.Task{
		ID:                    m.sess.NextAdditionalTaskID(),
		Name:                  name,
		MitarbeiterProAufgabe: headcount,
		PlannedWorktimeMin:    duration * quantity,
		IsAdditionalTask:      true,
	}
	if v := strings.TrimSpace(m.form[formTicketMO].Value()); v != "" {
		task.TicketMO = &v
	}
	if v := strings.TrimSpace(m.form[formTicketURL].Value()); v != "" {
		task.TicketURL = &v
	}

	// The eligible set for a new task is a backend computation over the
	// chosen skills and the present roster, never derived client-side.
	skills := []string{}
	if v := strings.TrimSpace(m.form[formType].Value()); v != "" {
		skills = append(skills, v)
	}
	for _, s := range strings.Split(m.form[formSkills].Value(), ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}

	m.busy = true
	m.toast = ""
	return m, tea.Batch(m.lookupEligibility(task, skills), m.spinner.Tick)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	// Abandon any outstanding network call; nothing may mutate state after
	// teardown.
	m.cancel()
	// The final save must not be lost to the throttle window.
	m.store.Flush()
	m.persist(true)
	return m, tea.Quit
}

// persist snapshots session plus derived UI flags to the store.
func (m *Model) persist(now bool) {
	st := session.State{
		Session: *m.sess,
		UI: session.UIState{
			DashboardVisible:  m.sess.DashboardURL != "",
			Toast:             m.toast,
			FileInputDisabled: m.uploader.Phase() >= wizard.PhaseAbsenceCollection,
		},
		UploadPhase: int(m.uploader.Phase()),
	}
	if now {
		m.store.SaveNow(st)
	} else {
		m.store.Save(st)
	}
}

func (m Model) selectedNames() []string {
	names := []string{}
	for _, t := range m.engine.Eligible() {
		if m.selected[t.Name] {
			names = append(names, t.Name)
		}
	}
	return names
}

func (m Model) filteredEligible() []models.EligibleTechnician {
	return m.engine.FilterEligible(m.search.Value())
}

func (m Model) absentNames() []string {
	names := []string{}
	for _, e := range m.rosterOrder {
		if !e.header && m.absent[e.name] {
			names = append(names, e.name)
		}
	}
	return names
}

func (m Model) presentNames() []string {
	names := []string{}
	for _, e := range m.rosterOrder {
		if !e.header && !m.absent[e.name] {
			names = append(names, e.name)
		}
	}
	return names
}

// ---- commands ----

func (m Model) fetchRoster() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		roster, err := m.cli.Technicians(ctx)
		return rosterMsg{roster: roster, err: err}
	}
}

func (m Model) uploadRoster() tea.Cmd {
	uploader, sess := m.uploader, m.sess
	ctx := m.ctx
	return func() tea.Msg {
		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		result, err := uploader.UploadRoster(callCtx, sess)
		return phase1Msg{result: result, err: err}
	}
}

func (m Model) confirmAbsences() tea.Cmd {
	uploader, sess := m.uploader, m.sess
	absent, present := m.absentNames(), m.presentNames()
	ctx := m.ctx
	return func() tea.Msg {
		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := uploader.ConfirmAbsences(callCtx, sess, absent, present)
		return phase2Msg{err: err}
	}
}

func (m Model) lookupEligibility(task models.Task, skills []string) tea.Cmd {
	cli, present := m.cli, m.sess.PresentTechnicians
	ctx := m.ctx
	return func() tea.Msg {
		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		eligible, err := cli.EligibleForTask(callCtx, skills, present)
		return additionalEligibilityMsg{task: task, eligible: eligible, err: err}
	}
}

// startSubmitCmd triggers the terminal submission exactly once per run; a
// second entry into the done state is a no-op.
func (m *Model) startSubmitCmd() tea.Cmd {
	if m.submitStarted {
		return nil
	}
	m.submitStarted = true
	m.busy = true
	return tea.Batch(m.submitCmd(), m.spinner.Tick)
}

func (m Model) submitCmd() tea.Cmd {
	submitter, sess := m.submitter, m.sess
	ctx := m.ctx
	return func() tea.Msg {
		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		result, err := submitter.Submit(callCtx, sess)
		return submitMsg{result: result, err: err}
	}
}

// ---- helpers ----

func flattenRoster(roster models.TechnicianRoster) []rosterEntry {
	var out []rosterEntry
	for _, group := range roster.Groups() {
		out = append(out, rosterEntry{group: group, header: true})
		for _, name := range roster[group] {
			out = append(out, rosterEntry{group: group, name: name})
		}
	}
	return out
}

func firstSelectable(entries []rosterEntry, from int) int {
	for i := from; i < len(entries); i++ {
		if !entries[i].header {
			return i
		}
	}
	return -1
}

func nextSelectable(entries []rosterEntry, cur int) int {
	for i := cur + 1; i < len(entries); i++ {
		if !entries[i].header {
			return i
		}
	}
	return cur
}

func prevSelectable(entries []rosterEntry, cur int) int {
	for i := cur - 1; i >= 0; i-- {
		if !entries[i].header {
			return i
		}
	}
	return cur
}

func parseIntField(s string, defaultVal int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// Run executes the wizard UI and blocks until it finishes.
func Run(p Params) error {
	model := NewModel(p)
	prog := tea.NewProgram(model)

	finalModel, err := prog.Run()
	if err != nil {
		return fmt.Errorf("wizard UI error: %w", err)
	}

	if m, ok := finalModel.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}
