package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkoenig/chord-librarian/internal/ledger"
	"github.com/nkoenig/chord-librarian/internal/util"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent migration runs from the ledger",
	Long: `List recent migration runs with their outcomes.

Each line shows when the run started, its strategy, what it wrote and how it
ended. Use --failed-chunks to include the failed chunk details of runs that
had write failures.`,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntP("limit", "l", 10, "Number of runs to show")
	runsCmd.Flags().Bool("failed-chunks", false, "Show failed chunk details")
}

func runRuns(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	db, err := ledger.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	showChunks, _ := cmd.Flags().GetBool("failed-chunks")

	runs, err := db.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		util.InfoLog("No runs recorded yet. Start one with: clm migrate")
		return nil
	}

	total, _ := db.CountRuns()

	util.InfoLog("=== Migration Runs ===")
	util.InfoLog("Ledger: %s (%d runs total)", dbPath, total)

	for _, run := range runs {
		fmt.Println()

		header := fmt.Sprintf("%s  %s  %s", run.ID, run.Strategy, humanize.Time(run.StartedAt))
		switch run.Status {
		case ledger.StatusCompleted:
			util.SuccessLog("%s", header)
		case ledger.StatusFailed:
			util.ErrorLog("%s", header)
		default:
			util.WarnLog("%s (still running?)", header)
		}

		if run.GroupKey != "" {
			util.InfoLog("  Group: %s", run.GroupKey)
		}

		line := fmt.Sprintf("  Written: %s", humanize.Comma(int64(run.Succeeded)))
		if run.Deleted > 0 {
			line += fmt.Sprintf(", deleted %d stale", run.Deleted)
		}
		if run.Duplicates > 0 {
			line += fmt.Sprintf(", skipped %d duplicates", run.Duplicates)
		}
		util.InfoLog("%s", line)

		if run.Failed > 0 {
			util.WarnLog("  Failed: %d", run.Failed)
		}

		if run.Verified {
			if run.Expected == run.Actual {
				util.InfoLog("  Verified: %d records", run.Actual)
			} else {
				util.WarnLog("  Verified: expected %d, found %d", run.Expected, run.Actual)
			}
		}

		if !run.FinishedAt.IsZero() {
			util.InfoLog("  Duration: %v", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}

		if run.Error != "" {
			util.ErrorLog("  Error: %s", run.Error)
		}

		if showChunks && run.Failed > 0 {
			failures, err := db.GetChunkFailures(run.ID)
			if err != nil {
				util.ErrorLog("  Failed to read chunk failures: %v", err)
				continue
			}
			for _, cf := range failures {
				util.WarnLog("    chunk %d (%d records): %s", cf.ChunkIndex, cf.ChunkSize, cf.Reason)
			}
		}
	}

	return nil
}
