package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/ledger"
	"github.com/nkoenig/chord-librarian/internal/util"
	"github.com/nkoenig/chord-librarian/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Count the main-library partition and compare against a migration run",
	Long: `Count the records in the main-library partition and compare against the
expected count.

The expected count comes from --expected when given, otherwise from the most
recent migration run in the ledger. Use this after a run whose verification
was skipped or reported a mismatch; destination counts can lag briefly after
large writes.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Int("expected", 0, "Expected record count (default: taken from the latest run)")
	verifyCmd.Flags().Duration("settle", verify.DefaultSettleDelay, "Wait before counting so destination indexes settle")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	client, err := newInstantClient()
	if err != nil {
		return err
	}

	expected, _ := cmd.Flags().GetInt("expected")
	if !cmd.Flags().Changed("expected") {
		expected, err = expectedFromLedger()
		if err != nil {
			return err
		}
		util.InfoLog("Expected count from latest run: %d", expected)
	}

	settle, _ := cmd.Flags().GetDuration("settle")

	v := verify.New(&verify.Config{
		Counter:     client,
		Partition:   instant.MainPartition(),
		SettleDelay: settle,
	})

	rep, err := v.Verify(ctx, expected)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	util.InfoLog("")
	if rep.Matches() {
		util.SuccessLog("Partition holds %d records, as expected", rep.Actual)
	} else {
		util.WarnLog("Expected %d records, found %d", rep.Expected, rep.Actual)
		util.WarnLog("%s", rep.Guidance())
	}

	return nil
}

// expectedFromLedger derives the expected count from the most recent run:
// its verification target when one was recorded, otherwise what the run
// reported writing.
func expectedFromLedger() (int, error) {
	db, err := ledger.Open(viper.GetString("db"))
	if err != nil {
		return 0, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()

	run, err := db.LatestRun()
	if err != nil {
		return 0, fmt.Errorf("failed to read latest run: %w", err)
	}
	if run == nil {
		return 0, fmt.Errorf("no runs recorded yet; pass --expected")
	}

	if run.Expected > 0 {
		return run.Expected, nil
	}
	return run.Succeeded, nil
}
