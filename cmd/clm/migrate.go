package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/ledger"
	"github.com/nkoenig/chord-librarian/internal/pipeline"
	"github.com/nkoenig/chord-librarian/internal/reconcile"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/source"
	"github.com/nkoenig/chord-librarian/internal/util"
	"github.com/nkoenig/chord-librarian/internal/writer"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [groupKey]",
	Short: "Fetch the chord dataset and import it into the destination store",
	Long: `Fetch the public chord dataset, flatten it into one record per voicing
and write the result to the destination store.

The optional groupKey argument restricts the import to a single chord group
(e.g. "C" or "F#"), matched exactly against the dataset's grouping keys.

Strategies:
  full-replace  clear the main-library partition, then insert everything
                (safe to re-run; each run starts from a clean partition)
  incremental   insert only voicings not already present; an existing record
                with the same name, frets, baseFret and position is skipped

Credentials come from the VITE_INSTANTDB_APP_ID and INSTANTDB_ADMIN_TOKEN
environment variables. BATCH_SIZE overrides the write chunk size.

A run that completes exits 0 even when some chunks failed; failures are
counted, logged and listed in the run report. Fatal errors (fetch failure,
missing credentials, zero transformable records) exit 1.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().String("strategy", "full-replace", "Write strategy: full-replace or incremental")
	migrateCmd.Flags().Int("batch-size", 0, "Records per write chunk (default 100, env BATCH_SIZE)")
	migrateCmd.Flags().String("source", "", "Source dataset URL (default: the public chords-db ukulele dataset)")
	migrateCmd.Flags().Bool("verify-chunks", false, "Re-query each chunk after it commits and retry on shortfall")
	migrateCmd.Flags().Bool("no-verify", false, "Skip the post-run record count check")
	migrateCmd.Flags().Bool("common-first", true, "Write common chords (C, G, Am, ...) first; skipped when a groupKey is given")
	migrateCmd.Flags().Bool("file-only", false, "Write the transformed dataset to a local JSON file instead of importing")
	migrateCmd.Flags().String("out", pipeline.DefaultOutputPath, "Output path for --file-only")
	migrateCmd.Flags().Bool("dry-run", false, "Plan the run and report what would be written without writing")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Get configuration
	groupKey := ""
	if len(args) > 0 {
		groupKey = args[0]
	}

	strategyFlag, _ := cmd.Flags().GetString("strategy")
	strategy, err := reconcile.ParseStrategy(strategyFlag)
	if err != nil {
		return err
	}

	batchSize := resolveBatchSize(cmd)
	if batchSize <= 0 {
		batchSize = writer.DefaultBatchSize
	}

	sourceURL, _ := cmd.Flags().GetString("source")
	verifyChunks, _ := cmd.Flags().GetBool("verify-chunks")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	commonFirst, _ := cmd.Flags().GetBool("common-first")
	fileOnly, _ := cmd.Flags().GetBool("file-only")
	outPath, _ := cmd.Flags().GetString("out")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if dryRun && fileOnly {
		return fmt.Errorf("%w: --dry-run and --file-only are mutually exclusive", util.ErrInvalidConfig)
	}

	verbose := viper.GetBool("verbose")
	quiet := viper.GetBool("quiet")

	// Set log level
	util.SetVerbose(verbose)
	util.SetQuiet(quiet)

	// Destination client; file-only runs never touch the store and need no
	// credentials
	var dest pipeline.Destination
	if !fileOnly {
		client, err := newInstantClient()
		if err != nil {
			return err
		}
		dest = client
	}

	dbPath := viper.GetString("db")

	// A dry run records nothing, the run ledger included
	var db *ledger.Ledger
	if !dryRun {
		util.InfoLog("Opening ledger: %s", dbPath)
		db, err = ledger.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer db.Close()
	}

	runID := uuid.NewString()

	// Create event logger with appropriate log level
	logger, err := report.NewEventLogger("artifacts", runID, eventLogLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()

	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	fetcher := source.New(source.Config{URL: sourceURL})

	mc := &pipeline.MigrationContext{
		Source:       fetcher,
		Destination:  dest,
		Ledger:       db,
		Logger:       logger,
		Partition:    instant.MainPartition(),
		RunID:        runID,
		Strategy:     strategy,
		GroupKey:     groupKey,
		BatchSize:    batchSize,
		VerifyChunks: verifyChunks,
		SkipVerify:   noVerify,
		CommonFirst:  commonFirst,
		FileOnly:     fileOnly,
		OutputPath:   outPath,
		DryRun:       dryRun,
	}

	util.InfoLog("Run %s: strategy=%s batch-size=%d", runID, strategy, batchSize)
	if dryRun {
		util.InfoLog("Dry run: planning only, nothing will be written")
	}
	if groupKey != "" {
		util.InfoLog("Restricted to group: %s", groupKey)
	}

	startTime := time.Now()

	summary, err := pipeline.Run(ctx, mc)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	duration := time.Since(startTime)

	// Summary
	util.InfoLog("")
	util.SuccessLog("=== Migration Summary ===")
	util.InfoLog("Run: %s", summary.RunID)
	util.InfoLog("Total time: %v", duration.Round(time.Millisecond))
	util.InfoLog("Fetched: %s", humanize.Bytes(uint64(summary.FetchedBytes)))
	util.InfoLog("Voicings: %s across %d groups", humanize.Comma(int64(summary.Transformed)), summary.Groups)
	if summary.Skipped > 0 {
		util.WarnLog("  Malformed positions skipped: %d", summary.Skipped)
	}

	if fileOnly {
		util.InfoLog("Output: %s", summary.OutputPath)
		return nil
	}

	if dryRun {
		if summary.Duplicates > 0 {
			util.InfoLog("Already present, would skip: %d", summary.Duplicates)
		}
		util.InfoLog("Would delete: %d stale records", summary.PlannedDeletes)
		util.InfoLog("Would write: %s voicings", humanize.Comma(int64(summary.PlannedInserts)))
		util.InfoLog("")
		util.InfoLog("Re-run without --dry-run to apply")
		return nil
	}

	if summary.Duplicates > 0 {
		util.InfoLog("Already present, skipped: %d", summary.Duplicates)
	}
	if summary.Deleted > 0 {
		util.InfoLog("Stale records deleted: %d", summary.Deleted)
	}
	if summary.DeleteFailed > 0 {
		util.WarnLog("  Stale records left behind: %d", summary.DeleteFailed)
	}

	util.InfoLog("Written: %s", humanize.Comma(int64(summary.Succeeded)))
	if summary.Failed > 0 {
		util.WarnLog("  Failed: %d across %d chunks", summary.Failed, len(summary.FailedChunks))
	}
	if summary.Degraded > 0 {
		util.InfoLog("  Oversized chunks rewritten: %d", summary.Degraded)
	}

	if summary.Verified {
		if summary.Expected == summary.Actual {
			util.SuccessLog("Verification: %d records, as expected", summary.Actual)
		} else {
			util.WarnLog("Verification: expected %d, found %d", summary.Expected, summary.Actual)
			util.WarnLog("Counts can lag briefly after large writes; confirm with: clm verify --expected %d", summary.Expected)
		}
	} else if !noVerify {
		util.WarnLog("Verification did not complete; check manually with: clm verify")
	}

	if summary.Failed > 0 {
		util.InfoLog("")
		util.InfoLog("To inspect failed chunks: clm report --run %s", summary.RunID)
	}

	// Auto-generate summary report
	util.InfoLog("")
	util.InfoLog("Generating summary report...")

	summaryReport, err := report.GenerateSummaryReport(db, summary.RunID, logger.Path())
	if err != nil {
		util.WarnLog("Failed to generate summary report: %v", err)
		return nil
	}

	summaryReport.DatabasePath = dbPath

	timestamp := time.Now().Format("20060102-150405")
	reportPath := filepath.Join("artifacts", "reports", timestamp, "summary.md")

	if err := report.WriteMarkdownReport(summaryReport, reportPath); err != nil {
		util.WarnLog("Failed to write summary report: %v", err)
	} else {
		util.SuccessLog("Summary report saved to: %s", reportPath)
	}

	return nil
}
