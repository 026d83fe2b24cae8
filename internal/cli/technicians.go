package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var techniciansCmd = &cobra.Command{
	Use:   "technicians",
	Short: "List the technician roster grouped by crew",
	Args:  cobra.NoArgs,
	RunE:  runTechnicians,
}

func runTechnicians(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	roster, err := newClient().Technicians(ctx)
	if err != nil {
		return fmt.Errorf("fetch technicians: %w", err)
	}

	if len(roster) == 0 {
		fmt.Println("No technicians found")
		return nil
	}

	for _, group := range roster.Groups() {
		fmt.Println(group)
		for _, name := range roster[group] {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}
