package main

import (
	"fmt"
	"os"

	"github.com/nkoenig/chord-librarian/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "clm",
		Short: "Chord Librarian - migrate and reconcile the shared chord library",
		Long: `clm (Chord Librarian) maintains the shared ukulele chord library.
It fetches the public chords-db dataset, flattens it into one record per
voicing, reconciles against the destination store and writes the result in
retried, verified batches with a local audit trail.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/clm.yaml)")
	rootCmd.PersistentFlags().String("db", "clm-state.db", "run ledger database file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	// ANSI colors only make sense on a live terminal
	util.SetColors(util.IsTerminal(os.Stderr.Fd()))

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("clm")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("CLM")
	viper.AutomaticEnv()

	// The destination credentials and batch size keep the env names the
	// original migration scripts used, unprefixed
	viper.BindEnv("app-id", "VITE_INSTANTDB_APP_ID")
	viper.BindEnv("admin-token", "INSTANTDB_ADMIN_TOKEN")
	viper.BindEnv("batch-size", "BATCH_SIZE")

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
