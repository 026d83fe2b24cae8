// Package cli provides the command-line interface for planctl.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wkndplanning/planctl/internal/client"
	"github.com/wkndplanning/planctl/internal/config"
	"github.com/wkndplanning/planctl/internal/metrics"
	"github.com/wkndplanning/planctl/internal/session"
	"github.com/wkndplanning/planctl/internal/wizard"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Initialized in PersistentPreRunE
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	collector  *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "planctl",
	Short: "Weekend-planning REP assignment client",
	Long: `Planctl is the operator client for the weekend-planning scheduling
backend: it uploads an Excel roster, collects technician absences, walks
through REP task assignment one task at a time, and generates the weekend
dashboard.

Wizard progress is persisted locally, so a run interrupted mid-assignment can
be picked up again with "planctl resume".`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		// During an interactive run stderr belongs to the TUI, so text
		// output stays quiet unless -v is set; the JSON log file gets
		// everything at the configured level.
		stderrLevel := slog.LevelError
		if verbose {
			stderrLevel = cfg.LogLevel
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, stderrLevel, cfg.LogLevel)
		collector = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logRunStats()
		}
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// logRunStats writes the run's operation timings to the log.
func logRunStats() {
	snap := collector.Snapshot()
	for _, op := range snap.Operations {
		logger.Debug("operation stats",
			"op", op.Op,
			"count", op.Count,
			"avgMs", op.AvgTimeMs,
			"minMs", op.MinTimeMs,
			"maxMs", op.MaxTimeMs,
		)
	}
}

// newStore creates the session store from the loaded config.
func newStore() *session.Store {
	return session.NewStore(session.Options{
		Dir:     cfg.StateDir,
		Logger:  logger,
		Metrics: collector,
	})
}

// newClient creates the backend client from the loaded config.
func newClient() *client.Client {
	return client.New(cfg.ServerURL, cfg.ClientTimeout, collector)
}

// skipPolicy maps the configured skip-reason handling onto the engine's
// policy type.
func skipPolicy() wizard.SkipReasonPolicy {
	if cfg.SkipReasonPolicy == string(wizard.SkipReasonPlaceholder) {
		return wizard.SkipReasonPlaceholder
	}
	return wizard.SkipReasonRequire
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(techniciansCmd)
}
