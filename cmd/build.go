package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/publish"
	"github.com/agentic-research/quire/internal/site"
)

var (
	buildOut    string
	buildBundle string
	buildClean  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the site once and write the published entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSite()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("out") {
			cfg.Output = buildOut
		}
		if cmd.Flags().Changed("bundle") {
			cfg.Bundle = buildBundle
		}
		s, err := site.New(cfg)
		if err != nil {
			return err
		}
		cache, err := build.NewCache(build.DefaultCacheSize)
		if err != nil {
			return err
		}

		start := time.Now()
		tree, err := s.Build(cache, logger)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		out := osfs.New(cfg.Output)
		if buildClean {
			if err := publish.Clean(out); err != nil {
				return err
			}
		}
		written, err := publish.WriteDir(out, tree)
		if err != nil {
			return err
		}

		bundled := 0
		if cfg.Bundle != "" {
			if bundled, err = publish.WriteBundle(cfg.Bundle, tree); err != nil {
				return err
			}
		}

		stats := cache.Stats()
		logger.Info("site written",
			"output", cfg.Output,
			"files", written,
			"bundle", cfg.Bundle,
			"bundled", bundled,
			"entries", tree.Len(),
			"cache_hits", stats.Hits,
			"cache_misses", stats.Misses,
			"elapsed", time.Since(start))
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Output directory (overrides the site file)")
	buildCmd.Flags().StringVar(&buildBundle, "bundle", "", "Also write a SQLite bundle to this path")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Empty the output directory first")
	rootCmd.AddCommand(buildCmd)
}
