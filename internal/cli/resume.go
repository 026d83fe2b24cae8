package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wkndplanning/planctl/internal/tui"
	"github.com/wkndplanning/planctl/internal/wizard"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Pick up a stored wizard run where it left off",
	Long: `Restore the locally persisted wizard state and continue.

State older than 24 hours is discarded. If more than the session validity
window passed since the last save, the wizard data survives but the
backend-side upload has expired: the run gets a fresh session ID and the
roster file must be uploaded again before assignment continues.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	store := newStore()

	restored := store.Restore()
	if restored == nil {
		return fmt.Errorf("no stored wizard state to resume; start over with \"planctl plan\"")
	}

	sess := restored.State.Session
	if restored.Rekeyed {
		fmt.Printf("Away for %s: the backend upload expired, a re-upload is required.\n",
			restored.TimeAway.Round(time.Second))
	}

	cli := newClient()
	uploader := wizard.NewUploadController(cli, logger)

	phase := wizard.UploadPhase(restored.State.UploadPhase)
	if sess.NeedsReupload {
		// The stored phase is moot: the correlated upload is gone.
		phase = wizard.PhaseFileSelected
		if sess.SourcePath == "" {
			store.Clear()
			return fmt.Errorf("stored session expired and the roster path is unknown; start over with \"planctl plan\"")
		}
	}
	uploader.Resume(phase, sess.SourcePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.RunSweeper(ctx)

	return tui.Run(tui.Params{
		Ctx:       ctx,
		Client:    cli,
		Store:     store,
		Session:   &sess,
		Uploader:  uploader,
		Submitter: wizard.NewSubmitter(cli, logger),
		Policy:    skipPolicy(),
		Logger:    logger,
	})
}
