/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	exportCmd "github.com/mpapenbr/lapclock/pkg/cmd/export"
	resetCmd "github.com/mpapenbr/lapclock/pkg/cmd/reset"
	runCmd "github.com/mpapenbr/lapclock/pkg/cmd/run"
	showCmd "github.com/mpapenbr/lapclock/pkg/cmd/show"
	watchCmd "github.com/mpapenbr/lapclock/pkg/cmd/watch"
	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/display"
	"github.com/mpapenbr/lapclock/pkg/processing/lap"
	"github.com/mpapenbr/lapclock/pkg/processing/start"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
	"github.com/mpapenbr/lapclock/version"
)

const envPrefix = "LAPCLOCK"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "lapclock",
	Short:   "Lap timing for practice sessions",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:funlen // flag definitions
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.lapclock.yml)")

	rootCmd.PersistentFlags().StringVar(&config.StoreType,
		"store",
		string(snapshot.TypeFile),
		"snapshot store (memory, file, sqlite, nats)")
	rootCmd.PersistentFlags().StringVar(&config.StoreFile,
		"store-file",
		"lapclock.json",
		"snapshot file of the file store")
	rootCmd.PersistentFlags().StringVar(&config.SQLiteFile,
		"sqlite-file",
		"lapclock.db",
		"database file of the sqlite store")
	rootCmd.PersistentFlags().StringVar(&config.NatsURL,
		"nats-url",
		"nats://localhost:4222",
		"URL of the NATS server (nats store)")
	rootCmd.PersistentFlags().StringVar(&config.NatsBucket,
		"nats-bucket",
		snapshot.DefaultNatsBucket,
		"JetStream key/value bucket (nats store)")
	rootCmd.PersistentFlags().StringVar(&config.SnapshotKey,
		"snapshot-key",
		snapshot.DefaultKey,
		"key of the snapshot (sqlite and nats store)")

	rootCmd.PersistentFlags().DurationVar(&config.Debounce,
		"debounce",
		lap.DefaultDebounce,
		"minimum time between two laps of a participant")
	rootCmd.PersistentFlags().DurationVar(&config.LightDelay,
		"light-delay",
		start.DefaultDelay,
		"delay between two start lights")
	rootCmd.PersistentFlags().IntVar(&config.Lights,
		"lights",
		start.DefaultLights,
		"number of start lights")
	rootCmd.PersistentFlags().DurationVar(&config.RefreshInterval,
		"refresh-interval",
		display.DefaultRefreshInterval,
		"clock refresh interval while the session is running")

	rootCmd.PersistentFlags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat,
		"log-format",
		"text",
		"controls the log output format (json, text)")
	rootCmd.PersistentFlags().StringVar(&config.LogConfig,
		"log-config",
		"",
		"yaml file with log levels per logger")
	rootCmd.PersistentFlags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"writes metrics to stderr")

	// add commands here
	rootCmd.AddCommand(runCmd.NewRunCmd())
	rootCmd.AddCommand(showCmd.NewShowCmd())
	rootCmd.AddCommand(exportCmd.NewExportCmd())
	rootCmd.AddCommand(watchCmd.NewWatchCmd())
	rootCmd.AddCommand(resetCmd.NewResetCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".lapclock" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lapclock")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --store-file to LAPCLOCK_STORE_FILE
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
