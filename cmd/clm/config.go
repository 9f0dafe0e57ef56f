package main

import (
	"fmt"
	"os"

	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/source"
	"github.com/nkoenig/chord-librarian/internal/util"
	"github.com/nkoenig/chord-librarian/internal/writer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the settings the other commands will run with, after applying
the precedence flag > environment > config file > default.

Secrets are never printed; the command only reports whether they are set
and where they came from.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	util.InfoLog("=== Configuration ===")

	if cf := viper.ConfigFileUsed(); cf != "" {
		util.InfoLog("Config file: %s", cf)
	} else {
		util.InfoLog("Config file: none found")
	}

	util.InfoLog("Ledger database: %s", viper.GetString("db"))
	util.InfoLog("Source dataset: %s", source.DefaultURL)

	util.InfoLog("Destination:")
	if appID := viper.GetString("app-id"); appID != "" {
		util.InfoLog("  App ID: %s… (%s)", truncateID(appID, 8), settingOrigin("VITE_INSTANTDB_APP_ID"))
	} else {
		util.WarnLog("  App ID: not set (VITE_INSTANTDB_APP_ID)")
	}
	if viper.GetString("admin-token") != "" {
		util.InfoLog("  Admin token: set (%s)", settingOrigin("INSTANTDB_ADMIN_TOKEN"))
	} else {
		util.WarnLog("  Admin token: not set (INSTANTDB_ADMIN_TOKEN)")
	}

	baseURL := viper.GetString("base-url")
	if baseURL == "" {
		baseURL = instant.DefaultBaseURL
	}
	util.InfoLog("  Base URL: %s", baseURL)

	if size := viper.GetInt("batch-size"); size > 0 {
		util.InfoLog("Write batch size: %d (%s)", size, settingOrigin("BATCH_SIZE"))
	} else {
		util.InfoLog("Write batch size: %d (default)", writer.DefaultBatchSize)
	}

	util.InfoLog("Artifacts: artifacts/")

	return nil
}

// settingOrigin reports where a resolved value came from, as far as that can
// be told apart: the mandated env names are checked directly, everything
// else resolved through viper must have come from the config file
func settingOrigin(envName string) string {
	if os.Getenv(envName) != "" {
		return "env " + envName
	}
	if viper.ConfigFileUsed() != "" {
		return "config file"
	}
	return "config"
}

// newInstantClient builds the destination client from configuration.
// Missing credentials are fatal; the error names the environment variables
// operators actually set.
func newInstantClient() (*instant.Client, error) {
	appID := viper.GetString("app-id")
	adminToken := viper.GetString("admin-token")

	if appID == "" || adminToken == "" {
		return nil, fmt.Errorf("%w: set VITE_INSTANTDB_APP_ID and INSTANTDB_ADMIN_TOKEN",
			util.ErrMissingCredentials)
	}

	return instant.New(instant.Config{
		AppID:      appID,
		AdminToken: adminToken,
		BaseURL:    viper.GetString("base-url"),
	})
}

// resolveBatchSize picks the batch size: the flag when given, else the
// BATCH_SIZE environment variable, else zero so the writer's default applies
func resolveBatchSize(cmd *cobra.Command) int {
	if cmd.Flags().Changed("batch-size") {
		size, _ := cmd.Flags().GetInt("batch-size")
		return size
	}
	return viper.GetInt("batch-size")
}

// eventLogLevel maps the verbosity flags onto the event log's level
func eventLogLevel() report.EventLevel {
	if viper.GetBool("quiet") {
		return report.LevelWarning
	}
	if viper.GetBool("verbose") {
		return report.LevelDebug
	}
	return report.LevelInfo
}
