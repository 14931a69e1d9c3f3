package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/levelhost/internal/app"
	"github.com/zeusync/levelhost/internal/injector"
)

// Build information set via ldflags
var (
	version = "dev"
	commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "levelhost",
	Short:         "Service runtime with asynchronous level loading",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start every configured service and serve until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rt, cleanup, err := injector.InitializeRuntime(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return rt.Run(ctx)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file without starting anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d services OK\n", configPath, len(cfg.Services))
		return nil
	},
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the service kinds a configuration may use",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(app.NewCatalog().Kinds(), "\n"))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "levelhost %s (%s)\n", version, commit)
	},
}

func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(app.NewCatalog()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/levelhost.yaml", "path to the YAML configuration")
	rootCmd.AddCommand(runCmd, validateCmd, kindsCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
