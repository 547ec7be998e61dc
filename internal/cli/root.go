// Package cli implements the geotool command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"GeoTool/internal/app"
	"GeoTool/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath   string
	platformName string
	logLevel     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "geotool",
	Short: "GEO consulting pipeline and platform integration",
	Long: `geotool runs the D→B→C→A prompt series for a client, extracts keywords and
questions from the matrix, asks AI engines those questions (pressure test) and keeps
project progress on Feishu or Notion.

Configuration is read from --config or GEOTOOL_CONFIG; credentials can be
supplied through FEISHU_APP_ID, FEISHU_APP_SECRET, NOTION_API_KEY and
DEEPSEEK_API_KEY.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&platformName, "platform", "", "collaboration platform (feishu|notion), overrides config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format (text|json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(pressureCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the geotool version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "geotool %s\n", version)
	},
}

// loadConfig resolves the configuration with flag overrides applied.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if platformName != "" {
		if _, err := config.ParsePlatform(platformName); err != nil {
			return config.Config{}, err
		}
		cfg.Platform.Default = platformName
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp builds the application for one command; cleanup closes it.
func newApp(ctx context.Context) (*app.Application, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			a.Logger().Warn("close application", "error", err)
		}
	}
	return a, cleanup, nil
}

func jsonOutput() bool {
	return outputFormat == "json"
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
