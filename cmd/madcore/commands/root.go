package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/madcore/madcore/pkg/config"
	"github.com/madcore/madcore/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// app is built by the root command before any subcommand runs.
	app *config.Context
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if app != nil {
		shutdownTelemetry(app.Telemetry)
		if cerr := app.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close parameter store")
		}
		app = nil
	}
	return err
}

// shutdownTelemetry flushes spans and events and writes the metrics textfile.
func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "madcore",
		Short: "madcore - deployment controller for CloudFormation and Jenkins",
		Long: `madcore creates the CloudFormation stacks of a deployment, waits for its
Jenkins server and runs plugin jobs on it.

Settings are read from ~/.madcore/madcore.yaml unless --config is given.
Job parameters of successful runs are stored and offered again next time.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupApp(cmd.Context(), version); err != nil {
				return err
			}
			cmd.SetContext(app.Telemetry.WithContext(cmd.Context()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newStacksCommand())
	rootCmd.AddCommand(newPluginCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}

func setupApp(ctx context.Context, version string) error {
	home := config.DefaultHome()
	path := configPath
	if path == "" {
		path = filepath.Join(home, config.SettingsFile)
	} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("settings file %s does not exist", path)
	}

	settings, err := config.LoadSettings(path, home)
	if err != nil {
		return err
	}
	if verbose {
		settings.Telemetry.Logging.Level = "debug"
	}
	if settings.Telemetry.ServiceVersion == "dev" {
		settings.Telemetry.ServiceVersion = version
	}

	tel, err := telemetry.NewTelemetry(&settings.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	app, err = config.NewContext(ctx, home, settings, tel)
	if err != nil {
		shutdownTelemetry(tel)
		return err
	}
	log.Debug().Str("settings", path).Str("database", settings.Database.Path).Msg("Loaded settings")
	return nil
}
