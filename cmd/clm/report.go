package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkoenig/chord-librarian/internal/ledger"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report for a migration run",
	Long: `Generate a Markdown summary report for a migration run.

The report includes:
- Fetch and transform statistics
- Reconcile results (deletions, duplicates skipped)
- Write results with any failed chunks
- Verification outcome

By default the most recent run is reported. The report is saved to
artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("run", "", "Run id to report on (default: the latest run)")
	reportCmd.Flags().String("out", "", "Output directory (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to the run's event log file (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	// Get configuration
	dbPath := viper.GetString("db")

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Ledger: %s", dbPath)

	db, err := ledger.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()

	runID, _ := cmd.Flags().GetString("run")
	eventLogPath, _ := cmd.Flags().GetString("event-log")

	summaryReport, err := report.GenerateSummaryReport(db, runID, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	summaryReport.DatabasePath = dbPath

	// Determine output path
	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join("artifacts", "reports", timestamp)
	}

	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// Summary
	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Run: %s (%s)", summaryReport.RunID, summaryReport.Status)
	util.InfoLog("Fetched: %s", humanize.Bytes(uint64(summaryReport.FetchedBytes)))
	util.InfoLog("Voicings: %s", humanize.Comma(int64(summaryReport.Transformed)))
	if summaryReport.SkippedPositions > 0 {
		util.WarnLog("  Skipped positions: %d", summaryReport.SkippedPositions)
	}
	util.InfoLog("Written: %s", humanize.Comma(int64(summaryReport.Succeeded)))
	if summaryReport.Failed > 0 {
		util.WarnLog("  Failed: %d across %d chunks", summaryReport.Failed, len(summaryReport.FailedChunks))
	}
	if summaryReport.Verified {
		util.InfoLog("Verification: expected %d, found %d", summaryReport.Expected, summaryReport.Actual)
	}

	return nil
}
