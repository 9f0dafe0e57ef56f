package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/ledger"
	"github.com/nkoenig/chord-librarian/internal/source"
	"github.com/nkoenig/chord-librarian/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure clm can operate correctly.

This command checks:
- Destination credentials (VITE_INSTANTDB_APP_ID, INSTANTDB_ADMIN_TOKEN)
- SQLite version for the run ledger
- Ledger database accessibility and integrity
- Source dataset reachability
- Destination API reachability
- Artifacts directory write permission

Use this command to troubleshoot issues before running a migration.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("source", "", "Source dataset URL to check (default: the built-in chords-db URL)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== CLM Doctor - System Diagnostics ===")
	util.InfoLog("")

	appID := viper.GetString("app-id")
	adminToken := viper.GetString("admin-token")

	results := []checkResult{}

	// 1. Check destination credentials
	results = append(results, checkCredentials(appID, adminToken))

	// 2. Check SQLite
	results = append(results, checkSQLite())

	// 3. Check ledger database file
	dbPath := viper.GetString("db")
	results = append(results, checkDatabase(dbPath))

	// 4. Check the source dataset URL
	sourceURL, _ := cmd.Flags().GetString("source")
	if sourceURL == "" {
		sourceURL = source.DefaultURL
	}
	results = append(results, checkSource(sourceURL))

	// 5. Check the destination API (needs credentials)
	results = append(results, checkDestination(appID, adminToken, viper.GetString("base-url")))

	// 6. Check artifacts directory
	results = append(results, checkArtifactsDir("artifacts"))

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running a migration.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready for clm operations.")
	}

	return nil
}

// checkCredentials verifies both destination credentials are configured
func checkCredentials(appID, adminToken string) checkResult {
	missing := []string{}
	if appID == "" {
		missing = append(missing, "VITE_INSTANTDB_APP_ID")
	}
	if adminToken == "" {
		missing = append(missing, "INSTANTDB_ADMIN_TOKEN")
	}

	if len(missing) > 0 {
		return checkResult{
			name:    "Credentials",
			error:   true,
			message: fmt.Sprintf("missing %v (required for all write and lookup commands)", missing),
		}
	}

	return checkResult{
		name:    "Credentials",
		message: fmt.Sprintf("app %s…", truncateID(appID, 8)),
	}
}

// checkSQLite verifies the embedded SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite needs no external sqlite install, just report
	// the compiled-in version
	version := ledger.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the run ledger is accessible and intact
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Ledger",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Ledger",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := ledger.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	runCount, _ := db.CountRuns()
	size := humanize.Bytes(uint64(info.Size()))

	return checkResult{
		name:    "Ledger",
		message: fmt.Sprintf("%s (%s, %d runs)", dbPath, size, runCount),
	}
}

// checkSource verifies the source dataset URL answers
func checkSource(url string) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return checkResult{
			name:    "Source",
			error:   true,
			message: fmt.Sprintf("invalid URL %s: %v", url, err),
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return checkResult{
			name:    "Source",
			error:   true,
			message: fmt.Sprintf("cannot reach %s: %v", url, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return checkResult{
			name:    "Source",
			error:   true,
			message: fmt.Sprintf("%s answered %s", url, resp.Status),
		}
	}

	msg := url
	if resp.ContentLength > 0 {
		msg = fmt.Sprintf("%s (%s)", url, humanize.Bytes(uint64(resp.ContentLength)))
	}

	return checkResult{
		name:    "Source",
		message: msg,
	}
}

// checkDestination verifies the destination API accepts the credentials
func checkDestination(appID, adminToken, baseURL string) checkResult {
	if appID == "" || adminToken == "" {
		return checkResult{
			name:    "Destination",
			warning: true,
			message: "skipped (credentials not configured)",
		}
	}

	client, err := instant.New(instant.Config{
		AppID:      appID,
		AdminToken: adminToken,
		BaseURL:    baseURL,
	})
	if err != nil {
		return checkResult{
			name:    "Destination",
			error:   true,
			message: fmt.Sprintf("cannot build client: %v", err),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return checkResult{
			name:    "Destination",
			error:   true,
			message: fmt.Sprintf("query probe failed: %v", err),
		}
	}

	return checkResult{
		name:    "Destination",
		message: fmt.Sprintf("%s (namespace %q)", client.BaseURL(), client.Namespace()),
	}
}

// checkArtifactsDir verifies the artifacts directory is writable
func checkArtifactsDir(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Artifacts directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Artifacts directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".clm_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Artifacts directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// truncateID shortens an identifier for display
func truncateID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
