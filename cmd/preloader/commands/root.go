// Package commands implements the preloader CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"pacs-preloader/lib/configutil"
	"pacs-preloader/lib/telemetry"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "preloader",
	Short: "preloader stages imaging studies from the vendor browser into local storage.",
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "config.json5", "path to the configuration file",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Config is the preloader's deployment configuration.
type Config struct {
	Port           int    `json:"port"`
	AgentBaseUrl   string `json:"agent_baseurl"`
	PacsBaseUrl    string `json:"pacs_baseurl"`
	StorageBaseUrl string `json:"storage_baseurl"`
	JournalPath    string `json:"journal_path"`

	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`
	PageSize               int `json:"page_size"`

	Regions    []string `json:"regions"`
	Modalities []string `json:"modalities"`

	Telemetry telemetry.Config `json:"telemetry"`
}

func loadConfig() (Config, error) {
	config, err := configutil.Read[Config](configPath)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", configPath, err)
	}
	if config.Port == 0 {
		config.Port = 8889
	}
	if config.JournalPath == "" {
		config.JournalPath = "preload.db"
	}
	if config.RefreshIntervalSeconds == 0 {
		config.RefreshIntervalSeconds = 60
	}
	return config, nil
}

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
