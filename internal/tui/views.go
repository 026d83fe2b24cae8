package tui

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
)

// View renders the wizard display.
func (m Model) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m Model) renderContent() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Weekend Planning: REP Assignment"))
	b.WriteString("\n\n")

	switch m.screen {
	case screenConfirmFile:
		b.WriteString(m.renderConfirmFile())
	case screenAbsence:
		b.WriteString(m.renderAbsence())
	case screenTask:
		b.WriteString(m.renderTask())
	case screenSkipReason:
		b.WriteString(m.renderSkipReason())
	case screenAddTask:
		b.WriteString(m.renderAddTask())
	case screenDone:
		b.WriteString(m.renderDone())
	}

	if m.toast != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.errorStyle().Render(m.toast))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderConfirmFile() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Roster file: %s\n", m.sess.Filename))
	if m.sess.NeedsReupload {
		b.WriteString(m.theme.statusStyle().Render(
			"The previous upload expired while you were away; the file must be uploaded again.") + "\n")
	}
	if m.busy {
		b.WriteString(fmt.Sprintf("\n%s uploading...\n", m.spinner.View()))
	} else {
		b.WriteString("\n" + m.theme.hintStyle().Render("enter: upload  q: quit") + "\n")
	}
	return b.String()
}

func (m Model) renderAbsence() string {
	var b strings.Builder
	b.WriteString("Mark absent technicians:\n\n")

	if len(m.rosterOrder) == 0 {
		if m.busy {
			b.WriteString(fmt.Sprintf("%s loading technicians...\n", m.spinner.View()))
		} else {
			b.WriteString(m.theme.hintStyle().Render("r: retry  q: quit") + "\n")
		}
		return b.String()
	}

	for i, e := range m.rosterOrder {
		if e.header {
			b.WriteString(m.theme.statusStyle().Render(e.group) + "\n")
			continue
		}
		cursor := "  "
		if i == m.absenceCur {
			cursor = "> "
		}
		mark := "[ ]"
		line := cursor + mark + " " + e.name
		if m.absent[e.name] {
			mark = "[x]"
			line = cursor + mark + " " + e.name
			line = m.theme.selectedStyle().Render(line)
		}
		b.WriteString(line + "\n")
	}

	if m.busy {
		b.WriteString(fmt.Sprintf("\n%s confirming...\n", m.spinner.View()))
	} else {
		b.WriteString("\n" + m.theme.hintStyle().Render(
			"space: toggle absent  enter: confirm  q: quit") + "\n")
	}
	return b.String()
}

func (m Model) renderTask() string {
	task, ok := m.engine.Current()
	if !ok {
		return ""
	}

	var b strings.Builder
	pos, total := m.engine.Progress()
	b.WriteString(m.theme.statusStyle().Render(fmt.Sprintf("Task %d of %d", pos, total)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  %s\n", m.theme.titleStyle().Render(task.Name)))
	if task.TicketMO != nil {
		b.WriteString(fmt.Sprintf("  Ticket: %s\n", *task.TicketMO))
	}
	if task.TicketURL != nil {
		b.WriteString(fmt.Sprintf("  %s\n", m.theme.hintStyle().Render(*task.TicketURL)))
	}
	b.WriteString(fmt.Sprintf("  Required: %d technician(s), %d min\n",
		task.MitarbeiterProAufgabe, task.PlannedWorktimeMin))
	if task.IsAdditionalTask {
		b.WriteString(m.theme.hintStyle().Render("  (additional task)") + "\n")
	}
	b.WriteString("\n")

	if m.searching || m.search.Value() != "" {
		b.WriteString("  Search: " + m.search.View() + "\n\n")
	}

	list := m.filteredEligible()
	if len(list) == 0 {
		b.WriteString(m.theme.errorStyle().Render("  no eligible technicians") + "\n")
	}
	for i, t := range list {
		cursor := "  "
		if i == m.taskCur && !m.searching {
			cursor = "> "
		}
		mark := "[ ]"
		if m.selected[t.Name] {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s%s %s  %s", cursor, mark, t.Name,
			m.theme.hintStyle().Render(fmt.Sprintf("%d min available", t.AvailableTime)))
		if m.selected[t.Name] {
			line = m.theme.selectedStyle().Render(fmt.Sprintf("%s%s %s", cursor, mark, t.Name))
		}
		b.WriteString(line + "\n")
	}

	if m.busy {
		b.WriteString(fmt.Sprintf("\n%s working...\n", m.spinner.View()))
	} else if m.searching {
		b.WriteString("\n" + m.theme.hintStyle().Render("enter/esc: done searching") + "\n")
	} else {
		b.WriteString("\n" + m.theme.hintStyle().Render(
			"space: select  a: assign  s: skip  t: add task  /: search  q: quit") + "\n")
	}
	return b.String()
}

func (m Model) renderSkipReason() string {
	task, _ := m.engine.Current()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Skip %q: why?\n\n", task.Name))
	b.WriteString("  " + m.skipInput.View() + "\n")
	b.WriteString("\n" + m.theme.hintStyle().Render("enter: skip task  esc: cancel") + "\n")
	return b.String()
}

func (m Model) renderAddTask() string {
	labels := []string{
		"Name", "Duration (min)", "Technicians", "Quantity",
		"Type", "Ticket MO", "Ticket URL", "Required skills",
	}
	var b strings.Builder
	b.WriteString("Add additional task:\n\n")
	for i, ti := range m.form {
		marker := "  "
		if i == m.formFocus {
			marker = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-16s %s\n", marker, labels[i]+":", ti.View()))
	}
	if m.busy {
		b.WriteString(fmt.Sprintf("\n%s looking up eligible technicians...\n", m.spinner.View()))
	} else {
		b.WriteString("\n" + m.theme.hintStyle().Render(
			"tab: next field  enter on last field: create  esc: cancel") + "\n")
	}
	return b.String()
}

func (m Model) renderDone() string {
	var b strings.Builder
	if m.busy {
		b.WriteString(fmt.Sprintf("%s generating dashboard...\n", m.spinner.View()))
		return b.String()
	}
	if m.sess.DashboardURL != "" {
		b.WriteString(m.theme.successStyle().Render("✓ Dashboard ready") + "\n\n")
		b.WriteString("  " + m.sess.DashboardURL + "\n")
	} else {
		b.WriteString("All tasks processed.\n")
	}
	b.WriteString("\n" + m.theme.hintStyle().Render("q: quit") + "\n")
	return b.String()
}
