package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepfake-detector/api/internal/application"
	"github.com/deepfake-detector/api/internal/config"
)

// Set at build time with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

// startedAt doubles as the default model version for this process.
var startedAt = time.Now().UTC()

var configPath string

var rootCmd = &cobra.Command{
	Use:           "api",
	Short:         "Deepfake video classifier service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultPath := config.DefaultPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "config file (.yaml or .toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and model version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "build:  %s\nmodel:  %s\n", buildVersion, modelVersion(cfg))
		return nil
	},
}

func modelVersion(cfg *config.Config) string {
	if cfg.Model.Version != "" {
		return cfg.Model.Version
	}
	return application.ModelVersionAt(startedAt)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
