package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flatwatch/internal/app"
	"flatwatch/internal/config"
	"flatwatch/internal/observability"
	"flatwatch/internal/version"
)

var (
	configPath string
	envFile    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "poll the listing page and notify about new apartments.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version.Print(cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	runCmd.Flags().StringVar(&envFile, "env", ".env", "optional env file with secrets")
}

func main() {
	rootCmd := &cobra.Command{Use: "flatwatch", SilenceUsage: true}
	rootCmd.AddCommand(runCmd, versionCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context) error {
	cfg, err := config.LoadConfig(configPath, envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(observability.Options{
		LogPath:  cfg.Observability.LogPath,
		LogLevel: cfg.Observability.LogLevel,
		Console:  cfg.Observability.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("Starting flatwatch", "version", version.GetVersion(), "config", configPath)

	ctx, cancel := app.GracefulShutdown(parent, logger)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build application", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close resources", "error", err)
		}
	}()

	err = a.Run(ctx)
	var te *app.ThresholdError
	switch {
	case errors.As(err, &te):
		logger.Error("Stopped after too many failures", "failures", te.Failures, "error", te.Last)
		return err
	case err != nil:
		logger.Error("Stopped with error", "error", err)
		return err
	}
	logger.Info("Stopped by signal")
	return nil
}
