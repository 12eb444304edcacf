package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/quire/api"
)

// Config files looked up in the working directory when --config is unset.
var configNames = []string{"site.hcl", "site.json"}

var (
	configPath string
	logLevel   = levelFlag(slog.LevelInfo)
	logFormat  = formatAuto

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quire",
	Short: "Quire: compile a directory of content into a static site",
	Long: `Quire loads content directories into a virtual tree, runs an ordered list
of rules over it (markdown pages, Go listings, index pages, compressed
variants) and writes the published entries to disk, to a SQLite bundle,
or serves them live while watching the sources.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(os.Stderr, slog.Level(logLevel), logFormat)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to site.hcl or site.json (default: ./site.hcl, ./site.json, else ./content and ./static)")
	rootCmd.PersistentFlags().Var(&logLevel, "log-level", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Var(&logFormat, "log-format", "Log format: auto, text, json")
}

// loadSite reads the configured site file, falling back to the default
// layout of the working directory.
func loadSite() (*api.Site, error) {
	if configPath != "" {
		return api.LoadSite(configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working dir: %w", err)
	}
	for _, name := range configNames {
		p := filepath.Join(wd, name)
		if _, err := os.Stat(p); err == nil {
			return api.LoadSite(p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	logger.Debug("no site file, using default layout", "dir", wd)
	return api.DefaultSite(wd), nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
