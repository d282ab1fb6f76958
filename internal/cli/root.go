package cli

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/feedforge/forger/internal/config"
)

// Execute runs the root command with OS args and returns its error for exit
// code mapping.
func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	var configPath string
	var cacheDir string
	var outputDir string
	var output string
	var outFmt OutputFormat
	var cfg config.Config
	var app *App

	output = string(OutputTable)

	getApp := func() *App { return app }
	getConfig := func() config.Config { return cfg }
	getOutput := func() OutputFormat { return outFmt }

	cmd := &cobra.Command{
		Use:           "forger",
		Short:         "Incremental feed aggregator: fetch, dedup, forge output feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			parsedFmt, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			outFmt = parsedFmt

			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			setupLogging(cfg.LogLevel)

			if !requiresApp(cmd) {
				return nil
			}
			if app != nil {
				return nil
			}
			a, err := NewApp(cfg)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				_ = app.Close()
				app = nil
			}
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: forger.toml, then XDG config)")
	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache directory override")
	cmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "Output directory override")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", output, "Output format: table, json")

	cmd.AddCommand(newRunCmd(getApp, getOutput))
	cmd.AddCommand(newCleanCmd(getApp, getOutput))
	cmd.AddCommand(newRecipesCmd(getConfig, getOutput))

	return cmd
}

func parseOutputFormat(raw string) (OutputFormat, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch OutputFormat(s) {
	case OutputTable, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q (expected table|json)", raw)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func requiresApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", "recipes":
			return false
		}
	}
	return true
}
