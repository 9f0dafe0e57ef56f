package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nkoenig/chord-librarian/internal/ledger"
)

// SummaryReport represents a complete summary of one migration run
type SummaryReport struct {
	GeneratedAt time.Time

	RunID      string
	Strategy   string
	GroupKey   string
	SourceURL  string
	BatchSize  int
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	// Fetch and transform statistics
	FetchedBytes     int64
	Transformed      int
	SkippedPositions int

	// Reconcile statistics
	Duplicates int
	Deleted    int

	// Write statistics
	Succeeded    int
	Failed       int
	FailedChunks []ChunkSummary

	// Verification
	Verified bool
	Expected int
	Actual   int

	// Metadata
	DatabasePath string
	EventLogPath string
	Error        string
}

// ChunkSummary describes a chunk that exhausted its write retries
type ChunkSummary struct {
	Index  int
	Size   int
	Reason string
}

// GenerateSummaryReport builds a summary for a run. An empty runID selects
// the most recent run.
func GenerateSummaryReport(db *ledger.Ledger, runID string, eventLogPath string) (*SummaryReport, error) {
	var run *ledger.Run
	var err error

	if runID == "" {
		run, err = db.LatestRun()
	} else {
		run, err = db.GetRun(runID)
	}
	if err != nil {
		return nil, err
	}
	if run == nil {
		if runID == "" {
			return nil, fmt.Errorf("no runs recorded yet")
		}
		return nil, fmt.Errorf("run %s not found", runID)
	}

	report := &SummaryReport{
		GeneratedAt:      time.Now(),
		RunID:            run.ID,
		Strategy:         run.Strategy,
		GroupKey:         run.GroupKey,
		SourceURL:        run.SourceURL,
		BatchSize:        run.BatchSize,
		Status:           run.Status,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		FetchedBytes:     run.FetchedBytes,
		Transformed:      run.Transformed,
		SkippedPositions: run.Skipped,
		Duplicates:       run.Duplicates,
		Deleted:          run.Deleted,
		Succeeded:        run.Succeeded,
		Failed:           run.Failed,
		Verified:         run.Verified,
		Expected:         run.Expected,
		Actual:           run.Actual,
		EventLogPath:     eventLogPath,
		Error:            run.Error,
		FailedChunks:     make([]ChunkSummary, 0),
	}

	if !run.FinishedAt.IsZero() {
		report.Duration = run.FinishedAt.Sub(run.StartedAt)
	}

	failures, err := db.GetChunkFailures(run.ID)
	if err != nil {
		return nil, err
	}
	for _, cf := range failures {
		report.FailedChunks = append(report.FailedChunks, ChunkSummary{
			Index:  cf.ChunkIndex,
			Size:   cf.ChunkSize,
			Reason: cf.Reason,
		})
	}

	return report, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	// Create output directory
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Generate markdown content
	var md strings.Builder

	// Header
	md.WriteString("# Chord Librarian - Migration Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("**Run:** `%s`\n\n", report.RunID))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Strategy | %s |\n", report.Strategy))
	if report.GroupKey != "" {
		md.WriteString(fmt.Sprintf("| Group Key | %s |\n", report.GroupKey))
	}
	if report.SourceURL != "" {
		md.WriteString(fmt.Sprintf("| Source | `%s` |\n", report.SourceURL))
	}
	md.WriteString(fmt.Sprintf("| Batch Size | %d |\n", report.BatchSize))
	md.WriteString(fmt.Sprintf("| Status | %s |\n", statusBadge(report.Status)))
	md.WriteString(fmt.Sprintf("| Started | %s |\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	if report.Duration > 0 {
		md.WriteString(fmt.Sprintf("| Duration | %s |\n", report.Duration.Round(time.Second)))
	}
	md.WriteString("\n")

	// Transform
	if report.FetchedBytes > 0 || report.Transformed > 0 || report.SkippedPositions > 0 {
		md.WriteString("## 📋 Transform\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		if report.FetchedBytes > 0 {
			md.WriteString(fmt.Sprintf("| Payload Fetched | %s |\n", humanize.Bytes(uint64(report.FetchedBytes))))
		}
		md.WriteString(fmt.Sprintf("| Voicings Transformed | %s |\n", humanize.Comma(int64(report.Transformed))))
		if report.SkippedPositions > 0 {
			md.WriteString(fmt.Sprintf("| Positions Skipped | %d |\n", report.SkippedPositions))
		}
		md.WriteString("\n")
	}

	// Reconcile
	if report.Deleted > 0 || report.Duplicates > 0 {
		md.WriteString("## 🔗 Reconcile\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		if report.Deleted > 0 {
			md.WriteString(fmt.Sprintf("| Records Deleted | %s |\n", humanize.Comma(int64(report.Deleted))))
		}
		if report.Duplicates > 0 {
			md.WriteString(fmt.Sprintf("| Duplicates Skipped | %s |\n", humanize.Comma(int64(report.Duplicates))))
		}
		md.WriteString("\n")
	}

	// Writes
	if report.Succeeded > 0 || report.Failed > 0 {
		md.WriteString("## ⚡ Writes\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Records Written | %s |\n", humanize.Comma(int64(report.Succeeded))))
		if report.Failed > 0 {
			md.WriteString(fmt.Sprintf("| Records Failed | %s |\n", humanize.Comma(int64(report.Failed))))
		}
		md.WriteString("\n")
	}

	// Failed chunks
	if len(report.FailedChunks) > 0 {
		md.WriteString("## ⚠️ Failed Chunks\n\n")
		md.WriteString("| Chunk | Size | Reason |\n")
		md.WriteString("|-------|------|--------|\n")
		for _, chunk := range report.FailedChunks {
			md.WriteString(fmt.Sprintf("| %d | %d | %s |\n", chunk.Index, chunk.Size, chunk.Reason))
		}
		md.WriteString("\n")
	}

	// Verification
	if report.Verified {
		md.WriteString("## 🔍 Verification\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Expected | %s |\n", humanize.Comma(int64(report.Expected))))
		md.WriteString(fmt.Sprintf("| Actual | %s |\n", humanize.Comma(int64(report.Actual))))
		if report.Expected == report.Actual {
			md.WriteString("| Result | ✅ match |\n")
		} else {
			md.WriteString("| Result | ❌ mismatch |\n")
		}
		md.WriteString("\n")
		if report.Expected != report.Actual {
			md.WriteString("*Counts can lag briefly after large writes. Re-run `clm verify` to confirm.*\n\n")
		}
	}

	// Error
	if report.Error != "" {
		md.WriteString("## 🚨 Error\n\n")
		md.WriteString(fmt.Sprintf("```\n%s\n```\n\n", report.Error))
	}

	// Footer
	md.WriteString("---\n\n")
	md.WriteString("*Generated by [clm](https://github.com/nkoenig/chord-librarian) - Chord Librarian*\n")

	// Write to file
	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func statusBadge(status string) string {
	switch status {
	case ledger.StatusCompleted:
		return "✅ completed"
	case ledger.StatusFailed:
		return "❌ failed"
	default:
		return status
	}
}
