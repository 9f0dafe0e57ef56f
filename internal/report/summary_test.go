package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nkoenig/chord-librarian/internal/ledger"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := ledger.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestGenerateSummaryReport(t *testing.T) {
	db := openTestLedger(t)

	started := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	run := &ledger.Run{
		ID:        "run-1",
		StartedAt: started,
		Strategy:  "full-replace",
		GroupKey:  "C",
		SourceURL: "https://example.com/ukulele.json",
		BatchSize: 100,
	}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	run.Status = ledger.StatusCompleted
	run.FinishedAt = started.Add(3*time.Minute + 30*time.Second)
	run.FetchedBytes = 500000
	run.Transformed = 2024
	run.Skipped = 3
	run.Deleted = 2000
	run.Succeeded = 1924
	run.Failed = 100
	run.Verified = true
	run.Expected = 1924
	run.Actual = 1924
	if err := db.FinishRun(run); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	failure := &ledger.ChunkFailure{
		RunID:      "run-1",
		ChunkIndex: 7,
		ChunkSize:  100,
		Reason:     "server rejected batch",
	}
	if err := db.InsertChunkFailure(failure); err != nil {
		t.Fatalf("Failed to insert chunk failure: %v", err)
	}

	// Generate report
	report, err := GenerateSummaryReport(db, "run-1", "test-events.jsonl")
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	// Verify statistics
	if report.RunID != "run-1" {
		t.Errorf("Expected run ID 'run-1', got '%s'", report.RunID)
	}
	if report.Strategy != "full-replace" {
		t.Errorf("Expected strategy 'full-replace', got '%s'", report.Strategy)
	}
	if report.Transformed != 2024 {
		t.Errorf("Expected 2024 transformed, got %d", report.Transformed)
	}
	if report.Duration != 3*time.Minute+30*time.Second {
		t.Errorf("Expected duration 3m30s, got %v", report.Duration)
	}
	if len(report.FailedChunks) != 1 {
		t.Fatalf("Expected 1 failed chunk, got %d", len(report.FailedChunks))
	}
	if report.FailedChunks[0].Index != 7 {
		t.Errorf("Expected failed chunk index 7, got %d", report.FailedChunks[0].Index)
	}
	if report.EventLogPath != "test-events.jsonl" {
		t.Errorf("Expected event log path 'test-events.jsonl', got '%s'", report.EventLogPath)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("Expected GeneratedAt to be set")
	}
}

func TestGenerateSummaryReport_LatestRun(t *testing.T) {
	db := openTestLedger(t)

	// No runs yet
	if _, err := GenerateSummaryReport(db, "", ""); err == nil {
		t.Error("Expected error for empty ledger, got nil")
	}

	base := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-old", "run-new"} {
		run := &ledger.Run{
			ID:        id,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Strategy:  "incremental",
			BatchSize: 100,
		}
		if err := db.CreateRun(run); err != nil {
			t.Fatalf("Failed to create run %s: %v", id, err)
		}
	}

	// Empty run ID selects the most recent run
	report, err := GenerateSummaryReport(db, "", "")
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}
	if report.RunID != "run-new" {
		t.Errorf("Expected latest run 'run-new', got '%s'", report.RunID)
	}

	// Unknown run ID is an error
	if _, err := GenerateSummaryReport(db, "run-missing", ""); err == nil {
		t.Error("Expected error for unknown run, got nil")
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "reports", "summary.md")

	started := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	report := &SummaryReport{
		GeneratedAt:      time.Now(),
		RunID:            "run-42",
		Strategy:         "full-replace",
		GroupKey:         "C",
		SourceURL:        "https://example.com/ukulele.json",
		BatchSize:        100,
		Status:           ledger.StatusCompleted,
		StartedAt:        started,
		FinishedAt:       started.Add(2 * time.Minute),
		Duration:         2 * time.Minute,
		FetchedBytes:     500000,
		Transformed:      2024,
		SkippedPositions: 3,
		Duplicates:       12,
		Deleted:          2000,
		Succeeded:        1924,
		Failed:           100,
		Verified:         true,
		Expected:         1924,
		Actual:           1900,
		DatabasePath:     "/test/clm-state.db",
		EventLogPath:     "/test/events.jsonl",
		FailedChunks: []ChunkSummary{
			{Index: 7, Size: 100, Reason: "server rejected batch"},
		},
	}

	// Write report
	err := WriteMarkdownReport(report, outputPath)
	if err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Fatalf("Report file was not created at %s", outputPath)
	}

	// Read and verify content
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report file: %v", err)
	}

	contentStr := string(content)

	// Verify headers
	if !strings.Contains(contentStr, "# Chord Librarian - Migration Report") {
		t.Error("Report missing main header")
	}
	if !strings.Contains(contentStr, "## 📊 Overview") {
		t.Error("Report missing Overview section")
	}
	if !strings.Contains(contentStr, "## 📋 Transform") {
		t.Error("Report missing Transform section")
	}
	if !strings.Contains(contentStr, "## 🔗 Reconcile") {
		t.Error("Report missing Reconcile section")
	}
	if !strings.Contains(contentStr, "## ⚡ Writes") {
		t.Error("Report missing Writes section")
	}
	if !strings.Contains(contentStr, "## ⚠️ Failed Chunks") {
		t.Error("Report missing Failed Chunks section")
	}
	if !strings.Contains(contentStr, "## 🔍 Verification") {
		t.Error("Report missing Verification section")
	}

	// Verify statistics are present
	if !strings.Contains(contentStr, "500 kB") { // Payload fetched
		t.Error("Report missing fetched payload size")
	}
	if !strings.Contains(contentStr, "2,024") { // Voicings transformed
		t.Error("Report missing transformed count")
	}
	if !strings.Contains(contentStr, "server rejected batch") {
		t.Error("Report missing chunk failure reason")
	}

	// Verification mismatch guidance
	if !strings.Contains(contentStr, "❌ mismatch") {
		t.Error("Report missing mismatch indicator")
	}
	if !strings.Contains(contentStr, "Re-run `clm verify`") {
		t.Error("Report missing verification guidance")
	}

	// Verify run metadata
	if !strings.Contains(contentStr, "run-42") {
		t.Error("Report missing run ID")
	}
	if !strings.Contains(contentStr, "/test/clm-state.db") {
		t.Error("Report missing database path")
	}
	if !strings.Contains(contentStr, "✅ completed") {
		t.Error("Report missing status badge")
	}
}

func TestWriteMarkdownReport_VerificationMatch(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "summary.md")

	report := &SummaryReport{
		GeneratedAt: time.Now(),
		RunID:       "run-7",
		Strategy:    "incremental",
		BatchSize:   100,
		Status:      ledger.StatusCompleted,
		StartedAt:   time.Now(),
		Succeeded:   50,
		Verified:    true,
		Expected:    50,
		Actual:      50,
	}

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, _ := os.ReadFile(outputPath)
	contentStr := string(content)

	if !strings.Contains(contentStr, "✅ match") {
		t.Error("Report missing match indicator")
	}
	if strings.Contains(contentStr, "Re-run `clm verify`") {
		t.Error("Report should not include guidance when counts match")
	}
}

func TestMarkdownReportStructure(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "summary.md")

	// Minimal report
	report := &SummaryReport{
		GeneratedAt: time.Now(),
		RunID:       "run-min",
		Strategy:    "full-replace",
		BatchSize:   100,
		Status:      ledger.StatusRunning,
		StartedAt:   time.Now(),
	}

	err := WriteMarkdownReport(report, outputPath)
	if err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, _ := os.ReadFile(outputPath)
	contentStr := string(content)

	// Verify Markdown structure
	lines := strings.Split(contentStr, "\n")

	// Check for headers (should start with #)
	headerCount := 0
	tableCount := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			headerCount++
		}
		if strings.Contains(line, "|") {
			tableCount++
		}
	}

	if headerCount < 2 {
		t.Errorf("Expected at least 2 headers, got %d", headerCount)
	}
	if tableCount < 3 {
		t.Errorf("Expected at least 3 table rows, got %d", tableCount)
	}

	// Verify footer
	if !strings.Contains(contentStr, "Generated by") {
		t.Error("Report missing footer")
	}
}

func TestWriteMarkdownReport_FailedRun(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "failed.md")

	report := &SummaryReport{
		GeneratedAt: time.Now(),
		RunID:       "run-err",
		Strategy:    "full-replace",
		BatchSize:   100,
		Status:      ledger.StatusFailed,
		StartedAt:   time.Now(),
		Error:       "fetch failed: 3 attempts exhausted",
	}

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, _ := os.ReadFile(outputPath)
	contentStr := string(content)

	if !strings.Contains(contentStr, "## 🚨 Error") {
		t.Error("Report missing Error section")
	}
	if !strings.Contains(contentStr, "fetch failed: 3 attempts exhausted") {
		t.Error("Report missing error message")
	}
	if !strings.Contains(contentStr, "❌ failed") {
		t.Error("Report missing failed status badge")
	}
}
