package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/serve"
	"github.com/agentic-research/quire/internal/site"
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Build the site once and mount the published tree read-only over NFS",
	Long: `Mount builds the site in memory and exports the result through a local
NFSv3 server, then mounts it (sudo). The mount stays up until interrupted.
Use serve --mount for a mount that follows source changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSite()
		if err != nil {
			return err
		}
		s, err := site.New(cfg)
		if err != nil {
			return err
		}
		cache, err := build.NewCache(build.DefaultCacheSize)
		if err != nil {
			return err
		}
		tree, err := s.Build(cache, logger)
		if err != nil {
			return err
		}
		state := serve.NewState()
		state.Replace(tree)

		unmount, err := exportNFS(state, args[0])
		if err != nil {
			return err
		}
		defer unmount()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
}
