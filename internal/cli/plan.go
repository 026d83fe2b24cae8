package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wkndplanning/planctl/internal/models"
	"github.com/wkndplanning/planctl/internal/tui"
	"github.com/wkndplanning/planctl/internal/wizard"
)

var planCmd = &cobra.Command{
	Use:   "plan <roster.xlsx>",
	Short: "Upload a roster and run the assignment wizard",
	Long: `Upload a weekend roster and walk through REP task assignment.

Starting a new plan discards any previously stored wizard state. To pick up
an interrupted run instead, use "planctl resume".

Examples:
  planctl plan kw34.xlsx
  planctl -v plan /data/rosters/kw34.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("roster file: %w", err)
	}

	store := newStore()
	store.Clear()

	sess := models.NewWizardSession(filepath.Base(path))
	sess.SourcePath = path

	cli := newClient()
	uploader := wizard.NewUploadController(cli, logger)
	uploader.SelectFile(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.RunSweeper(ctx)

	return tui.Run(tui.Params{
		Ctx:       ctx,
		Client:    cli,
		Store:     store,
		Session:   sess,
		Uploader:  uploader,
		Submitter: wizard.NewSubmitter(cli, logger),
		Policy:    skipPolicy(),
		Logger:    logger,
	})
}
