package main

import (
	"os"

	"github.com/spf13/cobra"

	"promptlab/internal/config"
	"promptlab/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "promptlab",
	Short: "Prompt library and workflow server",
	Long: `promptlab stores AI prompts, organises them with tags and pins, and
composes them into ordered workflows. It serves a REST API, an MCP endpoint
and the interactive API docs.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger it asks for.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, logger, nil
}
