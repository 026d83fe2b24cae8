// Package models defines data structures for the weekend-planning client.
package models

import "fmt"

// Task is one assignable REP task walked through by the wizard.
// Uploaded tasks carry a backend-issued ID; tasks the operator creates
// mid-run get a client-generated "additional_<n>" ID. A task's ID never
// changes after creation.
type Task struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	TicketMO              *string `json:"ticket_mo,omitempty"`
	TicketURL             *string `json:"ticket_url,omitempty"`
	MitarbeiterProAufgabe int     `json:"mitarbeiter_pro_aufgabe"`
	PlannedWorktimeMin    int     `json:"planned_worktime_min"`
	IsAdditionalTask      bool    `json:"isAdditionalTask"`
}

// AdditionalTaskID builds the client-side ID for the n-th additional task.
func AdditionalTaskID(n int) string {
	return fmt.Sprintf("additional_%d", n)
}

// EligibleTechnician is one technician the backend considers assignable to a
// task, together with the shift time it computed for them. Values are a
// snapshot from the last upload phase; the client never recomputes them.
type EligibleTechnician struct {
	Name             string `json:"name"`
	AvailableTime    int    `json:"available_time"`
	TaskFullDuration int    `json:"task_full_duration"`
}

// EligibilityIndex maps a task ID to the technicians eligible for it.
type EligibilityIndex map[string][]EligibleTechnician

// Lookup returns the eligible technicians for a task. A task without an
// entry renders as "no eligible technicians", so missing maps to an empty
// slice rather than an error.
func (e EligibilityIndex) Lookup(taskID string) []EligibleTechnician {
	if e == nil {
		return nil
	}
	return e[taskID]
}

// Register records the backend-computed eligible set for a newly created
// additional task.
func (e EligibilityIndex) Register(taskID string, technicians []EligibleTechnician) {
	e[taskID] = technicians
}
