package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored wizard state, if any",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	restored := newStore().Restore()
	if restored == nil {
		fmt.Println("No stored wizard state")
		return nil
	}

	sess := restored.State.Session
	fmt.Printf("Roster:      %s\n", sess.Filename)
	fmt.Printf("Session:     %s\n", sess.SessionID)
	fmt.Printf("Progress:    %d of %d tasks\n", sess.CurrentRepTaskIndex, len(sess.RepTasks))
	fmt.Printf("Assignments: %d recorded\n", len(sess.RepAssignments))
	fmt.Printf("Last saved:  %s ago\n", restored.TimeAway.Round(time.Second))
	if restored.Rekeyed {
		fmt.Println("Note:        session expired, resuming will require a re-upload")
	}
	if sess.DashboardURL != "" {
		fmt.Printf("Dashboard:   %s\n", sess.DashboardURL)
	}
	return nil
}
